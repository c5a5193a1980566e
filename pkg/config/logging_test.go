package config

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gowater/pkg/fault"
)

func TestLogConfig_SlogLevel(t *testing.T) {
	for _, tc := range []struct {
		level string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	} {
		lvl, err := LogConfig{Level: tc.level}.SlogLevel()
		require.NoError(t, err, tc.level)
		assert.Equal(t, tc.want, lvl, tc.level)
	}

	_, err := LogConfig{Level: "chatty"}.SlogLevel()
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := LogConfig{Level: "warn", NoColor: true}.NewLogger(&buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("pump stuck", "pot", "basil")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "pump stuck")
	assert.Contains(t, out, "pot=basil")
	assert.NotContains(t, out, "\x1b[")
}
