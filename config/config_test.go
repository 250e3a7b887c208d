package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 3*time.Second, cfg.ReconnectDelay)
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"apiBaseUrl":     "https://api.example.com",
		"websocketUrl":   "wss://api.example.com/ws",
		"token":          "tok",
		"userId":         "u1",
		"httpTimeout":    "30s",
		"reconnectDelay": "5s",
		"sendQueueSize":  128,
	})
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	require.Equal(t, 128, cfg.SendQueueSize)
	// untouched keys keep defaults
	require.Equal(t, 25*time.Second, cfg.HeartbeatInterval)
}

func TestFromMapRejectsBadValues(t *testing.T) {
	_, err := FromMap(map[string]any{"apiBaseUrl": ""})
	require.Error(t, err)

	_, err = FromMap(map[string]any{"httpTimeout": "-1s"})
	require.Error(t, err)
}
