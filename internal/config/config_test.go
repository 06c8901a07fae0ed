package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "photographic", cfg.Generation.DefaultStyle)
	assert.Equal(t, "1200x630", cfg.Generation.ImageSize)
	assert.Equal(t, 5, cfg.Generation.BatchSize)
	assert.Equal(t, 7, cfg.Generation.LogRetentionDays)
	assert.Equal(t, 5, cfg.Generation.QueueIntervalMinutes)
	assert.True(t, *cfg.Generation.CompletionEmail)
	assert.True(t, *cfg.Generation.ConceptExtraction)
	assert.Equal(t, "query", cfg.Gemini.TextAuth)
	assert.Equal(t, "header", cfg.Gemini.ImageAuth)
	assert.Equal(t, 3, cfg.Gemini.MaxRetries)
	assert.Equal(t, "local", cfg.Storage.Driver)
}

func TestLoadConfig_ExpandsEnvironment(t *testing.T) {
	t.Setenv("COVERLY_TEST_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := "gemini:\n  api_key: ${COVERLY_TEST_KEY}\ngeneration:\n  completion_email: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Gemini.APIKey)
	assert.False(t, *cfg.Generation.CompletionEmail)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
