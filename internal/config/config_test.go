package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytgrab/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Database.Driver)
	assert.Equal(t, "data/download_history.json", cfg.Database.Path)
	assert.Equal(t, "downloads", cfg.Download.Dir)
	assert.Equal(t, 3, cfg.Download.MaxConcurrent)
	assert.Empty(t, cfg.Storage.Bucket)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("YTGRAB_SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("YTGRAB_DATABASE_DRIVER", "sqlite")
	t.Setenv("YTGRAB_DOWNLOAD_MAXCONCURRENT", "5")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Download.MaxConcurrent)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("YTGRAB_DATABASE_DRIVER", "postgres")

	_, err := config.Load()
	assert.Error(t, err)
}
