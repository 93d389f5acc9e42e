package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retrofund/retrofund/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RETROFUND_DATADIR", t.TempDir())

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, uint32(config.DefaultPort), cfg.Port)
	require.Equal(t, "sqlite", cfg.DbType)
	require.False(t, cfg.EnableTestingApi)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RETROFUND_DATADIR", t.TempDir())
	t.Setenv("RETROFUND_PORT", "9999")
	t.Setenv("RETROFUND_DB_TYPE", "badger")
	t.Setenv("RETROFUND_ENABLE_TESTING_API", "true")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, uint32(9999), cfg.Port)
	require.Equal(t, "badger", cfg.DbType)
	require.True(t, cfg.EnableTestingApi)
}

func TestValidateUnsupportedDbType(t *testing.T) {
	t.Setenv("RETROFUND_DATADIR", t.TempDir())
	t.Setenv("RETROFUND_DB_TYPE", "mongo")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())
}

func TestValidateWiresServices(t *testing.T) {
	t.Setenv("RETROFUND_DATADIR", t.TempDir())
	t.Setenv("RETROFUND_DB_TYPE", "badger")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	t.Cleanup(cfg.RepoManager().Close)

	require.NotNil(t, cfg.AppService())
	require.NotNil(t, cfg.AdminService())
}
