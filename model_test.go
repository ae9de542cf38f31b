package docrag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/docrag/store"
)

func TestDurationJSONUnmarshal(t *testing.T) {
	assert := assert.New(t)

	var cfg struct {
		Timeout Duration `json:"timeout"`
	}

	if err := json.Unmarshal([]byte(`{"timeout": "45s"}`), &cfg); err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal(45*time.Second, cfg.Timeout.Duration())

	bs, err := json.Marshal(cfg)
	assert.NoError(err)
	assert.JSONEq(`{"timeout": "45s"}`, string(bs))
}

func TestConfigYAMLUnmarshal(t *testing.T) {
	assert := assert.New(t)

	input := `embedding:
  provider: openai
  model: intfloat/e5-base-v2
  baseURL: http://localhost:8000/v1
  timeout: 5s
chunking:
  maxChunkSize: 800
ingestion:
  queue: asynq
  redis:
    addr: redis:6379
store:
  driver: memory`

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(input), &cfg); err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal(ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(5*time.Second, cfg.Embedding.Timeout.Duration())
	assert.Equal(768, cfg.Embedding.Dimensions, "unset fields keep their defaults")
	assert.Equal("query: ", cfg.Embedding.QueryPrefix)
	assert.Equal(800, cfg.Chunking.MaxChunkSize)
	assert.Equal(200, cfg.Chunking.Overlap)
	assert.Equal(QueueAsynq, cfg.Ingestion.Queue)
	assert.Equal("redis:6379", cfg.Ingestion.Redis.Addr)
	assert.Equal(store.DriverMemory, cfg.Store.Driver)
	assert.NoError(cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.NoError(err)
	assert.Equal(DefaultConfig(), cfg)

	path := filepath.Join(dir, "config.yaml")
	err = os.WriteFile(path, []byte("retrieval:\n  defaultK: 4\n  maxK: 8\n"), 0600)
	assert.NoError(err)

	cfg, err = LoadConfig(path)
	assert.NoError(err)
	assert.Equal(4, cfg.Retrieval.DefaultK)
	assert.Equal(8, cfg.Retrieval.MaxK)
}

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Chunking.Overlap = cfg.Chunking.MaxChunkSize
	assert.Error(cfg.Validate())

	cfg = DefaultConfig()
	cfg.Embedding.Provider = "bert"
	assert.Error(cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retrieval.MaxK = 2
	assert.Error(cfg.Validate())

	cfg = DefaultConfig()
	cfg.Store.Driver = "postgres"
	assert.ErrorIs(cfg.Validate(), store.ErrUnknownDriver)
}
