// Package board opens the hardware backend selected in the configuration.
package board

import (
	"context"
	"log/slog"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/hal/bridge"
	"github.com/itohio/gowater/pkg/hal/periph"
	"github.com/itohio/gowater/pkg/hal/sim"
)

// Open returns the board named by cfg.Board.Type.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (hal.Board, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("board", cfg.Board.Type)

	var (
		b   hal.Board
		err error
	)
	switch cfg.Board.Type {
	case config.BoardSim:
		b, err = sim.New(cfg.Board.Sim, Wiring(cfg.Pots))
	case config.BoardSerial:
		b, err = bridge.Open(ctx, cfg.Board.Serial, log)
	case config.BoardPeriph:
		b, err = periph.Open(cfg.Board.Periph)
	default:
		return nil, fault.Configf("unknown board type %q", cfg.Board.Type)
	}
	if err != nil {
		return nil, err
	}
	log.Info("board opened")
	return b, nil
}

// Wiring returns the simulator wiring for the configured pots.
func Wiring(pots []config.PotConfig) []sim.Wiring {
	w := make([]sim.Wiring, 0, len(pots))
	for _, p := range pots {
		w = append(w, sim.Wiring{SensorPin: hal.Pin(p.SensorPin), MotorPin: hal.Pin(p.MotorPin)})
	}
	return w
}
