package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/flarexio/docrag/embedding"
)

type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewModel returns an embedding.Model backed by an OpenAI-compatible
// embeddings endpoint.
func NewModel(cfg Config) (embedding.Model, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &model{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// Loader defers client construction until the first embedding request.
func Loader(cfg Config) embedding.Loader {
	return func(ctx context.Context) (embedding.Model, error) {
		return NewModel(cfg)
	}
}

type model struct {
	client *openai.Client
	cfg    Config
}

func (m *model) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.cfg.Model),
	}

	if m.cfg.Dimensions > 0 {
		req.Dimensions = m.cfg.Dimensions
	}

	resp, err := m.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", data.Index)
		}

		v := make([]float64, len(data.Embedding))
		for i, x := range data.Embedding {
			v[i] = float64(x)
		}

		vectors[data.Index] = v
	}

	return vectors, nil
}
