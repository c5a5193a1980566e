// Package garden runs a set of independent pots from one polling loop.
package garden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/pot"
	"github.com/itohio/gowater/pkg/sensor"
)

// DefaultPoll is the loop period used when none is given.
const DefaultPoll = 20 * time.Millisecond

// Event is a pot transition tagged with the pot's slot.
type Event struct {
	Slot int
	pot.Transition
}

// Reading is what one pot looked like at the end of a step.
type Reading struct {
	Slot      int
	Pot       string
	At        hal.TimePoint
	Raw       float32
	Percent   float32
	Threshold uint8
	Sampled   bool
	State     pot.State
	MotorOn   bool
}

// Garden owns one controller per configured pot, indexed by slot.
type Garden struct {
	board hal.Board
	log   *slog.Logger
	pots  []*pot.Pot

	mu        sync.Mutex
	listeners []func(Event)
	observers []func([]Reading)
}

// New builds a sensor and a controller for every row of the pot table. Slot
// ids are row indices.
func New(board hal.Board, pots []config.PotConfig, log *slog.Logger) (*Garden, error) {
	if board == nil {
		return nil, fault.Configf("garden: nil board")
	}
	if len(pots) == 0 {
		return nil, fault.Configf("garden: no pots")
	}
	if log == nil {
		log = slog.Default()
	}

	g := &Garden{board: board, log: log}
	for slot, pc := range pots {
		s, err := sensor.New(board, pc.Sensor())
		if err != nil {
			return nil, fmt.Errorf("pot %d (%s): %w", slot, pc.Name, err)
		}
		p, err := pot.New(board, s, pc.Controller(), log.With("slot", slot))
		if err != nil {
			return nil, fmt.Errorf("pot %d (%s): %w", slot, pc.Name, err)
		}
		slot := slot
		p.OnTransition(func(tr pot.Transition) { g.notify(Event{Slot: slot, Transition: tr}) })
		g.pots = append(g.pots, p)
	}
	return g, nil
}

// OnTransition registers a callback for transitions of any pot.
func (g *Garden) OnTransition(fn func(Event)) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

func (g *Garden) notify(ev Event) {
	g.mu.Lock()
	listeners := make([]func(Event), len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// OnStep registers a callback that receives a snapshot of every pot after each
// Step. Callbacks run on the loop goroutine and should return quickly.
func (g *Garden) OnStep(fn func([]Reading)) {
	g.mu.Lock()
	g.observers = append(g.observers, fn)
	g.mu.Unlock()
}

// Len returns the number of pots.
func (g *Garden) Len() int { return len(g.pots) }

// Pot returns the pot in slot, or nil if there is none.
func (g *Garden) Pot(slot int) *pot.Pot {
	if slot < 0 || slot >= len(g.pots) {
		return nil
	}
	return g.pots[slot]
}

// Pots returns all pots in slot order.
func (g *Garden) Pots() []*pot.Pot {
	return append([]*pot.Pot(nil), g.pots...)
}

// Board returns the board the pots are wired to.
func (g *Garden) Board() hal.Board { return g.board }

// Step calls Update on every pot in slot order and returns their states.
func (g *Garden) Step() []pot.State {
	states := make([]pot.State, len(g.pots))
	for i, p := range g.pots {
		states[i] = p.Update()
	}

	g.mu.Lock()
	observers := make([]func([]Reading), len(g.observers))
	copy(observers, g.observers)
	g.mu.Unlock()
	if len(observers) > 0 {
		snap := g.Snapshot()
		for _, fn := range observers {
			fn(snap)
		}
	}
	return states
}

// Snapshot reads the current sensor and controller state of every pot.
func (g *Garden) Snapshot() []Reading {
	now := g.board.Now()
	out := make([]Reading, len(g.pots))
	for i, p := range g.pots {
		s := p.Sensor()
		out[i] = Reading{
			Slot:      i,
			Pot:       p.Name(),
			At:        now,
			Raw:       s.RawValue(),
			Percent:   s.Percentage(),
			Threshold: s.Threshold(),
			Sampled:   s.Sampled(),
			State:     p.State(),
			MotorOn:   p.MotorOn(),
		}
	}
	return out
}

// Run steps the garden every poll until ctx is cancelled, then switches every
// motor off.
func (g *Garden) Run(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	g.log.Info("garden running", "pots", len(g.pots), "poll", poll)
	g.Step()
	for {
		select {
		case <-ctx.Done():
			return g.Stop()
		case <-ticker.C:
			g.Step()
		}
	}
}

// Stop switches every motor off.
func (g *Garden) Stop() error {
	var errs []error
	for _, p := range g.pots {
		if err := p.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("pot %s: %w", p.Name(), err))
		}
	}
	g.log.Info("garden stopped")
	return errors.Join(errs...)
}
