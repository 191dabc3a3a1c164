package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPollIntervalDefault(t *testing.T) {
	cfg := LoadConfig()
	assert.Equal(t, 10*time.Second, cfg.AccessPollInterval)
}

func TestLoadConfigPollIntervalFromEnv(t *testing.T) {
	t.Setenv("ACCESS_POLL_INTERVAL", "3s")
	cfg := LoadConfig()
	assert.Equal(t, 3*time.Second, cfg.AccessPollInterval)
}

func TestValidateRejectsNonPositivePollInterval(t *testing.T) {
	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	cfg.AccessPollInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_POLL_INTERVAL")
}
