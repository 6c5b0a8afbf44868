package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
bot_token = "token-123"
opencode_port = 5001
log_level = "debug"

[[repository]]
path = "/srv/repos/api"
name = "api"

[[model]]
provider_id = "anthropic"
model_id = "claude-sonnet-4-5"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "token-123", cfg.BotToken)
	assert.Equal(t, 5001, cfg.OpencodePort)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Repositories, 1)
	assert.Equal(t, "api", cfg.Repositories[0].Name)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "anthropic", cfg.Models[0].ProviderID)
	assert.NotEmpty(t, cfg.DataDir, "data dir defaults to the working directory")
}

func TestLoadDefaultsPort(t *testing.T) {
	path := writeConfig(t, `
bot_token = "t"

[[model]]
provider_id = "openai"
model_id = "gpt-5"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.OpencodePort)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadRequiresModels(t *testing.T) {
	path := writeConfig(t, `bot_token = "t"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models")
}
