package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "cosine", cfg.Database.DefaultDistance)
	assert.Equal(t, 1000, cfg.Database.BruteForceThreshold)
	assert.Equal(t, 10000, cfg.Database.RebuildThreshold)
	assert.True(t, cfg.Persistence.Enabled)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	os.Setenv("VECDB_DEFAULT_DISTANCE", "dot")
	os.Setenv("VECDB_BRUTE_FORCE_THRESHOLD", "50")
	defer os.Unsetenv("VECDB_DEFAULT_DISTANCE")
	defer os.Unsetenv("VECDB_BRUTE_FORCE_THRESHOLD")

	cfg := LoadFromEnv()
	assert.Equal(t, "dot", cfg.Database.DefaultDistance)
	assert.Equal(t, 50, cfg.Database.BruteForceThreshold)
}

func TestValidateRejectsBadDistance(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Database.DefaultDistance = "manhattan"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsRebuildBelowBruteForce(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Database.RebuildThreshold = cfg.Database.BruteForceThreshold
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresKeyPathWhenEncryptionEnabled(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Snapshot.EncryptionEnabled = true
	cfg.Snapshot.EncryptionKeyPath = ""
	assert.Error(t, cfg.Validate())
}

func TestStringOmitsSecrets(t *testing.T) {
	cfg := LoadFromEnv()
	assert.NotContains(t, cfg.String(), "key")
}
