package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, DefaultDeletionThreshold, cfg.DeletionThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aad.json")
	contents := `{"database_path": "custom.db", "deletion_threshold": 10}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom.db", cfg.DatabasePath)
	assert.Equal(t, 10, cfg.DeletionThreshold)
	// Omitted fields retain defaults.
	assert.Equal(t, DefaultSnapshotsDir, cfg.SnapshotsDir)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	_, err := Load("config.yaml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AAD_DB_PATH", "/tmp/env.db")
	t.Setenv("AAD_DELETION_THRESHOLD", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.DatabasePath)
	assert.Equal(t, 25, cfg.DeletionThreshold)
}

func TestValidateRejectsNegativeThreshold(t *testing.T) {
	cfg := Default()
	cfg.DeletionThreshold = -1
	assert.Error(t, cfg.Validate())
}
