package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paystream/go-session-client/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	require.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	require.Equal(t, 2*time.Minute, cfg.Session.WarningLead)
	require.Equal(t, 60*time.Second, cfg.Session.CheckInterval)
	require.Equal(t, 60*time.Second, cfg.Presence.Interval)
	require.Equal(t, 5*time.Second, cfg.Presence.GuardWindow)
	require.Equal(t, "./data", cfg.Storage.DataFolder)
	require.Less(t, cfg.Session.WarningLead, cfg.Session.IdleTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SESSIONCLIENT_ENVIRONMENT", "production")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
}
