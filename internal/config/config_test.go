package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Port)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, []byte("test-secret"), cfg.JWT.Secret)
	require.Equal(t, 24*time.Hour, cfg.JWT.ExpiresIn)
	require.Equal(t, 256, cfg.Chat.OutboundQueueSize)
	require.Equal(t, 2*time.Second, cfg.Chat.TypingWindow)
	require.Empty(t, cfg.RateLimit.RedisAddr)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", ":9000")
	t.Setenv("STORE_DRIVER", "badger")
	t.Setenv("TYPING_WINDOW", "500ms")
	t.Setenv("OUTBOUND_QUEUE_SIZE", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Port)
	require.Equal(t, DriverBadger, cfg.Database.Driver)
	require.Equal(t, 500*time.Millisecond, cfg.Chat.TypingWindow)
	require.Equal(t, 8, cfg.Chat.OutboundQueueSize)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "STORE_DRIVER", "mongo"},
		{"zero queue", "OUTBOUND_QUEUE_SIZE", "0"},
		{"bad duration", "TYPING_WINDOW", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}
