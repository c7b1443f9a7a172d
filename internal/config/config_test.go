package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Vectorize.BatchSize)
	assert.Equal(t, 1000, cfg.Vectorize.ChunkSize)
	assert.Equal(t, 200, cfg.Vectorize.ChunkOverlap)
	assert.Equal(t, 4, cfg.Vectorize.CharsPerToken)
	assert.Equal(t, 1, cfg.Vectorize.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.Vectorize.BatchTimeout)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 3, cfg.Kafka.MaxAttempts)
	assert.Empty(t, cfg.Internal.APIKey)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
internal:
  api_key: "from-file"
vectorize:
  batch_size: 10
  concurrency: 4
  batch_timeout: 90s
embedding:
  model: "bge-m3"
  dimensions: 1024
  cache:
    enabled: true
    ttl: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Internal.APIKey)
	assert.Equal(t, 10, cfg.Vectorize.BatchSize)
	assert.Equal(t, 4, cfg.Vectorize.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Vectorize.BatchTimeout)
	assert.Equal(t, "bge-m3", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.True(t, cfg.Embedding.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Embedding.Cache.TTL)
	// untouched keys keep their defaults
	assert.Equal(t, 200, cfg.Vectorize.ChunkOverlap)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KBV_INTERNAL_API_KEY", "from-env")
	t.Setenv("KBV_VECTORIZE_BATCH_SIZE", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Internal.APIKey)
	assert.Equal(t, 25, cfg.Vectorize.BatchSize)
}

func TestLoadRejectsInvalidChunking(t *testing.T) {
	path := writeConfig(t, `
vectorize:
  chunk_size: 100
  chunk_overlap: 100
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestLoadRejectsStaleAfterWithinBatchTimeout(t *testing.T) {
	cases := map[string]string{
		"shorter than timeout": "  batch_timeout: 15m\n  stale_after: 10m\n",
		"equal to timeout":     "  batch_timeout: 15m\n  stale_after: 15m\n",
		"unbounded batches":    "  batch_timeout: 0s\n  stale_after: 30m\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "vectorize:\n"+body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "stale_after")
		})
	}

	cfg, err := Load(writeConfig(t, "vectorize:\n  batch_timeout: 0s\n  stale_after: 0s\n"))
	require.NoError(t, err, "recovery disabled needs no bound")
	assert.Zero(t, cfg.Vectorize.StaleAfter)

	cfg, err = Load(writeConfig(t, "vectorize:\n  batch_timeout: 15m\n  stale_after: 16m\n"))
	require.NoError(t, err)
	assert.Equal(t, 16*time.Minute, cfg.Vectorize.StaleAfter)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
