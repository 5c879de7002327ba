package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docchat_test")
	t.Setenv("CHUNK_MAX_TOKENS", "123")
	t.Setenv("RETRIEVAL_MIN_SCORE", "0.35")

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/docchat_test", cfg.DatabaseURL)
	assert.Equal(t, 123, cfg.ChunkMaxTokens)
	assert.InDelta(t, 0.35, cfg.RetrievalMinScore, 1e-9)

	// Untouched knobs keep their defaults.
	assert.Equal(t, "text-embedding-004", cfg.EmbedModel)
	assert.Equal(t, 5, cfg.RetrievalTopK)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, 2, cfg.IngestWorkers)
}

func TestLoadConfig_BadIntFallsBackToDefault(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docchat_test")
	t.Setenv("EMBED_BATCH_SIZE", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, 16, cfg.EmbedBatchSize)
}
