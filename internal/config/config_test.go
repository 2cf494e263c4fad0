package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("ICM_CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "./data/icm.db", cfg.Store.Path)
	assert.Equal(t, "medium", cfg.Memory.DefaultImportance)
	assert.InDelta(t, 0.95, cfg.Memory.DecayRate, 1e-9)
	assert.Equal(t, 5, cfg.Recall.Limit)
	assert.Equal(t, "stdio", cfg.MCP.Transport)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ICM_STORE_PATH", "/tmp/custom.db")
	t.Setenv("ICM_RECALL_LIMIT", "10")
	t.Setenv("ICM_EXTRACTION_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.Equal(t, 10, cfg.Recall.Limit)
	assert.False(t, cfg.Extraction.Enabled)
}

func TestYAMLOverlayThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	yamlPath := dir + "/icm.yaml"
	require.NoError(t, writeFile(yamlPath, "store:\n  path: /from/yaml.db\nrecall:\n  limit: 7\n"))

	t.Setenv("ICM_CONFIG_FILE", yamlPath)
	t.Setenv("ICM_RECALL_LIMIT", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/yaml.db", cfg.Store.Path)
	assert.Equal(t, 42, cfg.Recall.Limit, "env override must win over yaml overlay")
}

func TestMissingYAMLFileIsNotAnError(t *testing.T) {
	t.Setenv("ICM_CONFIG_FILE", "/nonexistent/path/icm.yaml")
	_, err := Load()
	require.NoError(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
