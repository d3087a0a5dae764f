package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	l := New()

	require.NoError(t, l.SetLevel("debug"))
	require.True(t, l.Enabled(slog.LevelDebug))

	require.NoError(t, l.SetLevel("WARN"))
	require.False(t, l.Enabled(slog.LevelInfo))
	require.True(t, l.Enabled(slog.LevelError))

	require.Error(t, l.SetLevel("loud"))
	require.False(t, l.Enabled(slog.LevelInfo), "unknown level must not change the current one")
}
