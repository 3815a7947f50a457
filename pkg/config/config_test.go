package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gridcore/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	v := New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, defaultHealthcheckSeconds*time.Second, cfg.HealthcheckInterval)
	assert.Equal(t, 30*time.Second, cfg.PurgeInterval)
	assert.Equal(t, defaultDistributorPort, cfg.DistributorPort)
	assert.Empty(t, cfg.Secret)
}

func TestHealthcheckIntervalFloor(t *testing.T) {
	v := New()
	v.Set(KeyDistributorHealthcheckInterval, 0)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, minHealthcheckInterval, cfg.HealthcheckInterval)

	v.Set(KeyDistributorHealthcheckInterval, 600)
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, 600*time.Second, cfg.HealthcheckInterval)
}

func TestInvalidPurgeInterval(t *testing.T) {
	v := New()
	v.Set(KeyDistributorPurgeInterval, 0)
	_, err := Load(v)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestInvalidRequestTimeout(t *testing.T) {
	v := New()
	v.Set(KeySessionQueueRequestTimeout, "not-a-duration")
	_, err := Load(v)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestSecretFromEnv(t *testing.T) {
	t.Setenv("GRID_SECRET_VALUE", "s3cr3t")
	v := New()
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.Secret)
}

func TestAddr(t *testing.T) {
	cfg := &Config{DistributorHost: "127.0.0.1", DistributorPort: 4444}
	assert.Equal(t, "127.0.0.1:4444", cfg.Addr())
}
