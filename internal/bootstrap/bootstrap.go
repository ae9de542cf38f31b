// Package bootstrap builds the configured store, embedding provider and
// dispatcher shared by the docrag binaries.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/embedding/google"
	"github.com/flarexio/docrag/embedding/ollama"
	"github.com/flarexio/docrag/embedding/openai"
	"github.com/flarexio/docrag/persistence/memory"
	"github.com/flarexio/docrag/persistence/mongo"
	"github.com/flarexio/docrag/persistence/sqlite"
	"github.com/flarexio/docrag/store"

	asynqQ "github.com/flarexio/docrag/queue/asynq"
)

// Flags are the configuration overrides every binary accepts.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "path",
			Usage: "Path to the DocRAG data directory",
		},
		&cli.StringFlag{
			Name:    "embedding-provider",
			Usage:   "Embedding backend (hash, openai, google, ollama)",
			Sources: cli.EnvVars("EMBEDDING_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Sources: cli.EnvVars("EMBEDDING_MODEL"),
		},
		&cli.StringFlag{
			Name:    "embedding-dimensions",
			Usage:   "Embedding vector dimensions",
			Sources: cli.EnvVars("EMBEDDING_DIMENSIONS"),
		},
		&cli.StringFlag{
			Name:    "embedding-api-key",
			Usage:   "API key of the embedding backend",
			Sources: cli.EnvVars("EMBEDDING_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "max-chunk-size",
			Usage:   "Maximum chunk size in characters",
			Sources: cli.EnvVars("MAX_CHUNK_SIZE"),
		},
		&cli.StringFlag{
			Name:    "chunk-overlap",
			Usage:   "Characters shared by consecutive chunks",
			Sources: cli.EnvVars("CHUNK_OVERLAP"),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address of the asynq ingestion queue",
			Sources: cli.EnvVars("REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:    "mongo-uri",
			Usage:   "MongoDB connection URI",
			Sources: cli.EnvVars("MONGO_URI"),
		},
	}
}

// LoadConfig reads config.yaml from the data directory and applies the flag
// overrides.
func LoadConfig(cmd *cli.Command, path string) (docrag.Config, error) {
	cfg, err := docrag.LoadConfig(filepath.Join(path, "config.yaml"))
	if err != nil {
		return cfg, err
	}

	if v := cmd.String("embedding-provider"); v != "" {
		cfg.Embedding.Provider = docrag.EmbeddingProvider(v)
	}

	if v := cmd.String("embedding-model"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := cmd.String("embedding-api-key"); v != "" {
		cfg.Embedding.APIKey = v
	}

	ints := []struct {
		flag string
		dst  *int
	}{
		{"embedding-dimensions", &cfg.Embedding.Dimensions},
		{"max-chunk-size", &cfg.Chunking.MaxChunkSize},
		{"chunk-overlap", &cfg.Chunking.Overlap},
	}

	for _, i := range ints {
		v := cmd.String(i.flag)
		if v == "" {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", i.flag, err)
		}

		*i.dst = n
	}

	if v := cmd.String("redis-addr"); v != "" {
		cfg.Ingestion.Redis.Addr = v
	}

	if v := cmd.String("mongo-uri"); v != "" {
		cfg.Store.URI = v
	}

	if cfg.Store.Driver == store.DriverSQLite && cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(path, "docrag.db")
	}

	return cfg, cfg.Validate()
}

func NewStore(ctx context.Context, cfg store.Config) (store.Store, error) {
	switch cfg.Driver {
	case store.DriverSQLite:
		return sqlite.NewStore(cfg.Path)
	case store.DriverMongo:
		return mongo.NewStore(ctx, cfg)
	case store.DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownDriver, cfg.Driver)
	}
}

// NewProvider builds the embedding provider. Remote backends are wrapped with
// a circuit breaker and an optional rate limit.
func NewProvider(cfg docrag.EmbeddingConfig) (embedding.Provider, error) {
	opts := embedding.Options{
		Name:          cfg.Model,
		Dimensions:    cfg.Dimensions,
		QueryPrefix:   cfg.QueryPrefix,
		PassagePrefix: cfg.PassagePrefix,
		Timeout:       cfg.Timeout.Duration(),
	}

	var loader embedding.Loader
	switch cfg.Provider {
	case docrag.ProviderHash:
		opts.Name = "hash"
		return embedding.NewProvider(opts, embedding.HashLoader(cfg.Dimensions)), nil

	case docrag.ProviderOpenAI:
		loader = openai.Loader(openai.Config{
			Model:      cfg.Model,
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})

	case docrag.ProviderGoogle:
		loader = google.Loader(google.Config{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		})

	case docrag.ProviderOllama:
		loader = ollama.Loader(ollama.Config{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	guarded := func(ctx context.Context) (embedding.Model, error) {
		model, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		return embedding.Guard(model, string(cfg.Provider), cfg.RequestsPerSecond), nil
	}

	return embedding.NewProvider(opts, guarded), nil
}

func AsynqConfig(cfg docrag.IngestionConfig) asynqQ.Config {
	return asynqQ.Config{
		Redis: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		Queue:   asynqQ.DefaultQueue,
		Timeout: cfg.TaskTimeout.Duration(),
	}
}

// Service assembles the core over the configured store and provider. Closing
// the service closes the store.
func Service(ctx context.Context, cfg docrag.Config, dispatcher docrag.Dispatcher) (docrag.Service, embedding.Provider, error) {
	st, err := NewStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	provider, err := NewProvider(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	zap.L().Info("service assembled",
		zap.String("store", string(cfg.Store.Driver)),
		zap.String("embedding_provider", string(cfg.Embedding.Provider)),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	return docrag.NewService(cfg, st, provider, dispatcher), provider, nil
}
