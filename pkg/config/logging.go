package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"github.com/itohio/gowater/pkg/fault"
)

// SlogLevel parses Level. An empty level means info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fault.Configf("log level %q: %v", l.Level, err)
	}
	return lvl, nil
}

// NewLogger returns a colourised slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		NoColor:    l.NoColor,
		TimeFormat: time.TimeOnly,
	})), nil
}
