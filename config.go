package docrag

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/docrag/chunker"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/store"
	"github.com/flarexio/docrag/vector"
)

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Store     store.Config    `yaml:"store"`
}

type EmbeddingProvider string

const (
	ProviderHash   EmbeddingProvider = "hash"
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderGoogle EmbeddingProvider = "google"
	ProviderOllama EmbeddingProvider = "ollama"
)

type EmbeddingConfig struct {
	Provider          EmbeddingProvider `yaml:"provider"`
	Model             string            `yaml:"model"`
	BaseURL           string            `yaml:"baseURL"`
	APIKey            string            `yaml:"apiKey"`
	Dimensions        int               `yaml:"dimensions"`
	Timeout           Duration          `yaml:"timeout"`
	QueryPrefix       string            `yaml:"queryPrefix"`
	PassagePrefix     string            `yaml:"passagePrefix"`
	RequestsPerSecond float64           `yaml:"requestsPerSecond"`
}

type ChunkingConfig struct {
	MaxChunkSize int      `yaml:"maxChunkSize"`
	Overlap      int      `yaml:"overlap"`
	Separators   []string `yaml:"separators"`
}

type QueueKind string

const (
	QueueLocal QueueKind = "local"
	QueueAsynq QueueKind = "asynq"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type IngestionConfig struct {
	BatchSize     int         `yaml:"batchSize"`
	FastBatchSize int         `yaml:"fastBatchSize"`
	Workers       int         `yaml:"workers"`
	Queue         QueueKind   `yaml:"queue"`
	Redis         RedisConfig `yaml:"redis"`
	TaskTimeout   Duration    `yaml:"taskTimeout"`
}

type RetrievalConfig struct {
	DefaultK int `yaml:"defaultK"`
	MaxK     int `yaml:"maxK"`
}

func DefaultConfig() Config {
	return Config{
		Embedding: EmbeddingConfig{
			Provider:      ProviderHash,
			Model:         "all-mpnet-base-v2",
			Dimensions:    vector.DefaultDimensions,
			Timeout:       Duration(30 * time.Second),
			QueryPrefix:   embedding.DefaultQueryPrefix,
			PassagePrefix: embedding.DefaultPassagePrefix,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: chunker.DefaultMaxChunkSize,
			Overlap:      chunker.DefaultOverlap,
			Separators:   chunker.DefaultSeparators,
		},
		Ingestion: IngestionConfig{
			BatchSize:     32,
			FastBatchSize: 64,
			Workers:       2,
			Queue:         QueueLocal,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			TaskTimeout: Duration(10 * time.Minute),
		},
		Retrieval: RetrievalConfig{
			DefaultK: 6,
			MaxK:     10,
		},
		Store: store.Config{
			Driver: store.DriverSQLite,
		},
	}
}

// LoadConfig decodes the YAML file at path over DefaultConfig. A missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return cfg, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding %s: %w", path, err)
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	switch cfg.Embedding.Provider {
	case ProviderHash, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}

	if cfg.Chunking.MaxChunkSize <= 0 {
		return errors.New("max chunk size must be positive")
	}

	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.MaxChunkSize {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", cfg.Chunking.Overlap, cfg.Chunking.MaxChunkSize)
	}

	if cfg.Ingestion.BatchSize <= 0 || cfg.Ingestion.FastBatchSize <= 0 {
		return errors.New("batch sizes must be positive")
	}

	switch cfg.Ingestion.Queue {
	case QueueLocal, QueueAsynq:
	default:
		return fmt.Errorf("unknown ingestion queue %q", cfg.Ingestion.Queue)
	}

	if cfg.Retrieval.DefaultK <= 0 || cfg.Retrieval.MaxK < cfg.Retrieval.DefaultK {
		return fmt.Errorf("invalid retrieval k: default %d, max %d", cfg.Retrieval.DefaultK, cfg.Retrieval.MaxK)
	}

	return cfg.Store.Validate()
}
