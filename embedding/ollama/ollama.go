package ollama

import (
	"context"

	"github.com/philippgille/chromem-go"

	"github.com/flarexio/docrag/embedding"
)

const DefaultBaseURL = "http://localhost:11434/api"

type Config struct {
	Model   string
	BaseURL string
}

// NewModel wraps chromem's Ollama embedding function. Ollama embeds one text
// per request, so a batch is sent sequentially.
func NewModel(cfg Config) embedding.Model {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &model{
		embed: chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL),
	}
}

func Loader(cfg Config) embedding.Loader {
	return func(ctx context.Context) (embedding.Model, error) {
		return NewModel(cfg), nil
	}
}

type model struct {
	embed chromem.EmbeddingFunc
}

func (m *model) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		e, err := m.embed(ctx, text)
		if err != nil {
			return nil, err
		}

		v := make([]float64, len(e))
		for j, x := range e {
			v[j] = float64(x)
		}

		vectors[i] = v
	}

	return vectors, nil
}
