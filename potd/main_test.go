package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/menu"
)

func TestParseKey(t *testing.T) {
	for in, want := range map[string]menu.Event{
		"u":     menu.Up,
		" UP ":  menu.Up,
		"j":     menu.Down,
		"down":  menu.Down,
		"":      menu.Enter,
		"enter": menu.Enter,
	} {
		ev, ok := parseKey(in)
		require.True(t, ok, in)
		assert.Equal(t, want, ev, in)
	}
	_, ok := parseKey("x")
	assert.False(t, ok)
}

func TestRun_SimBoard(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "gowater.prom")
	cfg.Metrics.Interval = config.Duration(10 * time.Millisecond)
	require.NoError(t, cfg.Validate())

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx, cfg, log, false))

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gowater_threshold_percent{pot="pot1"} 40`)
	assert.Contains(t, logs.String(), "garden stopped")
}
