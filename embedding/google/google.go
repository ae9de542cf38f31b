package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/flarexio/docrag/embedding"
)

const DefaultModel = "text-embedding-004"

type Config struct {
	Model  string
	APIKey string
}

// Loader builds a genai client on first use. The client lives as long as the
// returned model.
func Loader(cfg Config) embedding.Loader {
	return func(ctx context.Context) (embedding.Model, error) {
		if cfg.APIKey == "" {
			return nil, errors.New("google: api key is required")
		}

		if cfg.Model == "" {
			cfg.Model = DefaultModel
		}

		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
		if err != nil {
			return nil, err
		}

		return &model{
			client: client,
			em:     client.EmbeddingModel(cfg.Model),
		}, nil
	}
}

type model struct {
	client *genai.Client
	em     *genai.EmbeddingModel
}

func (m *model) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	batch := m.em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := m.em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("google: sent %d texts, got %d embeddings", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("google: embedding %d is empty", i)
		}

		v := make([]float64, len(e.Values))
		for j, x := range e.Values {
			v[j] = float64(x)
		}

		vectors[i] = v
	}

	return vectors, nil
}

func (m *model) Close() error {
	return m.client.Close()
}
