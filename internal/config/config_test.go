package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/run", cfg.Run.Dir)
	assert.Equal(t, 0, cfg.Run.Epochs)
	assert.Equal(t, 1.0, cfg.Run.Effort)
	assert.GreaterOrEqual(t, cfg.Run.Jobs, 1, "jobs derives from CPU count")
	assert.Equal(t, "single", cfg.Run.Mode)
	assert.Equal(t, 1, cfg.Run.Points)
	assert.Equal(t, []string{"default"}, cfg.Run.Spaces)
	assert.True(t, cfg.Run.Refine)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("EPOCHS", "500")
	t.Setenv("JOBS", "6")
	t.Setenv("MODE", "shared")
	t.Setenv("SPACES", "buy,sell,roi")
	t.Setenv("RANDOM_STATE", "1234")
	t.Setenv("ACQ_REFINE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Run.Epochs)
	assert.Equal(t, 6, cfg.Run.Jobs)
	assert.Equal(t, "shared", cfg.Run.Mode)
	assert.Equal(t, []string{"buy", "sell", "roi"}, cfg.Run.Spaces)
	assert.Equal(t, int64(1234), cfg.Run.RandomState)
	assert.False(t, cfg.Run.Refine)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("EFFORT", "-1")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNegativeEpochs(t *testing.T) {
	t.Setenv("EPOCHS", "-5")
	_, err := Load()
	assert.Error(t, err)
}
