package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Run from a temp dir so no config.yaml is picked up.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Classify.BatchSize)
	assert.Equal(t, 5, cfg.Classify.MaxConcurrentBatches)
	assert.Equal(t, 5, cfg.Search.MaxSources)
	assert.Equal(t, 500, cfg.Search.SnippetLength)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, 60*time.Second, cfg.Anthropic.Timeout())
	assert.Equal(t, 30*time.Second, cfg.Perplexity.Timeout())
	assert.Equal(t, "xlsx", cfg.Output.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("CLASSIFY_CLASSIFY_BATCH_SIZE", "25")
	t.Setenv("CLASSIFY_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Classify.BatchSize)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
