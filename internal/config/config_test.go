package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.UDP.Host)
	assert.Equal(t, 3333, cfg.UDP.Port)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "data/esp32_data.db", cfg.Storage.DBPath)
	assert.Equal(t, 1000, cfg.Stream.EventBacklog)
	assert.Equal(t, 15, cfg.Stream.KeepAliveSeconds)
	assert.Equal(t, 200, cfg.Stream.HistoryRows)
	assert.Equal(t, 2, cfg.Episode.MinDurationSeconds)
	assert.Empty(t, cfg.Webhook.URL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UDP_PORT", "4444")
	t.Setenv("EVENT_BACKLOG", "50")
	t.Setenv("WEBHOOK_URL", "http://localhost:9000/hooks/episodes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4444, cfg.UDP.Port)
	assert.Equal(t, 50, cfg.Stream.EventBacklog)
	assert.Equal(t, "http://localhost:9000/hooks/episodes", cfg.Webhook.URL)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("UDP_PORT", "not-a-port")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3333, cfg.UDP.Port)
}
