package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 10, config.Storage.MaxJobs)
	assert.Equal(t, 100, config.Storage.MaxPendingJobs)
	assert.Equal(t, 3, config.Database.TransactionRetries)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stash.toml")
	content := `
[server]
port = 9090

[storage]
max_jobs = 2
max_pending_jobs = 5
blob_max_age = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 2, config.Storage.MaxJobs)
	assert.Equal(t, 5, config.Storage.MaxPendingJobs)
	assert.Equal(t, 30*time.Second, config.BlobMaxAge())
	// Untouched sections keep their defaults.
	assert.Equal(t, "sqlite", config.Database.Type)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STASH_SERVER_PORT", "7070")
	t.Setenv("STASH_STORAGE_MAX_JOBS", "42")
	t.Setenv("STASH_STORAGE_BLOB_MAX_AGE", "90s")
	t.Setenv("STASH_SECRET_KEY", "from-env")

	config, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 42, config.Storage.MaxJobs)
	assert.Equal(t, 90*time.Second, config.BlobMaxAge())
	assert.Equal(t, "from-env", config.Auth.SecretKey)
}

func TestEnvOverrideIgnoresBadDuration(t *testing.T) {
	t.Setenv("STASH_STORAGE_BLOB_MAX_AGE", "not-a-duration")

	config, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, config.BlobMaxAge())
}

func TestFlagOverridesWinOverEnv(t *testing.T) {
	t.Setenv("STASH_SERVER_PORT", "7070")

	config, err := LoadFromFile("")
	require.NoError(t, err)

	ApplyFlagOverrides(config, 6060, "0.0.0.0")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestValidateRejectsBadDuration(t *testing.T) {
	config := NewDefaultConfig()
	config.Storage.PruneInterval = "soon"
	assert.Error(t, config.Validate())
}

func TestValidateRejectsBadLevel(t *testing.T) {
	config := NewDefaultConfig()
	config.Logging.Level = "loud"
	assert.Error(t, config.Validate())
}

func TestValidateRejectsZeroMaxJobs(t *testing.T) {
	config := NewDefaultConfig()
	config.Storage.MaxJobs = 0
	assert.Error(t, config.Validate())
}
