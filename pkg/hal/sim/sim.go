// Package sim simulates pots of soil wired to a board: probes read the soil
// moisture and motors wet it, while the soil slowly dries out.
package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/hal"
)

// FullScale is the reading of a disconnected probe held up by the input
// pull-up.
const FullScale uint16 = 1023

// Wiring connects a probe and a motor to one simulated pot.
type Wiring struct {
	SensorPin hal.Pin
	MotorPin  hal.Pin
}

type soil struct {
	wiring       Wiring
	moisture     float64 // percent
	disconnected bool
}

// Board is a simulated hal.Board. Virtual time runs Speedup times faster than
// wall time.
type Board struct {
	cfg config.SimConfig

	mu       sync.RWMutex
	wall     func() time.Time
	start    time.Time
	advanced time.Duration // virtual time the soil model has been integrated to
	closed   bool

	bySensor map[hal.Pin]*soil
	byMotor  map[hal.Pin]*soil
	levels   map[hal.Pin]bool
}

var _ hal.Board = (*Board)(nil)

// New creates a simulated board with one pot of soil per wiring.
func New(cfg config.SimConfig, wiring []Wiring) (*Board, error) {
	if cfg.Speedup <= 0 {
		return nil, fmt.Errorf("sim: speedup must be positive, got %v", cfg.Speedup)
	}
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("sim: step must be positive")
	}
	if cfg.DryRaw == cfg.WetRaw {
		return nil, fmt.Errorf("sim: dry and wet readings must differ")
	}

	b := &Board{
		cfg:      cfg,
		wall:     time.Now,
		bySensor: make(map[hal.Pin]*soil),
		byMotor:  make(map[hal.Pin]*soil),
		levels:   make(map[hal.Pin]bool),
	}
	b.start = b.wall()

	for _, w := range wiring {
		if _, ok := b.bySensor[w.SensorPin]; ok {
			return nil, fmt.Errorf("sim: sensor pin %s wired twice", w.SensorPin)
		}
		s := &soil{wiring: w, moisture: clamp(cfg.InitialMoisture)}
		b.bySensor[w.SensorPin] = s
		b.byMotor[w.MotorPin] = s
	}
	return b, nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func (b *Board) virtualLocked() time.Duration {
	return time.Duration(float64(b.wall().Sub(b.start)) * b.cfg.Speedup)
}

// Now returns virtual milliseconds since the board was created.
func (b *Board) Now() hal.TimePoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return hal.TimePoint(b.virtualLocked()/time.Millisecond) + 1
}

// Sleep blocks for d of virtual time.
func (b *Board) Sleep(d time.Duration) {
	time.Sleep(time.Duration(float64(d) / b.cfg.Speedup))
}

// SetPin drives an output. Motor pins wet their soil while high.
func (b *Board) SetPin(pin hal.Pin, high bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("sim: board closed")
	}
	b.integrateLocked()
	b.levels[pin] = high
	return nil
}

// ReadAnalog returns the probe reading of the soil wired to pin.
func (b *Board) ReadAnalog(pin hal.Pin) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, fmt.Errorf("sim: board closed")
	}
	s, ok := b.bySensor[pin]
	if !ok {
		return 0, fmt.Errorf("sim: no probe on pin %s", pin)
	}
	b.integrateLocked()
	if s.disconnected {
		return FullScale, nil
	}
	return b.rawLocked(s), nil
}

// rawLocked converts moisture to a probe reading with a little deterministic
// noise on top.
func (b *Board) rawLocked(s *soil) uint16 {
	dry, wet := float64(b.cfg.DryRaw), float64(b.cfg.WetRaw)
	raw := dry + (wet-dry)*s.moisture/100

	t := b.advanced.Seconds()
	raw += (math.Sin(t*1.7+float64(s.wiring.SensorPin)) + math.Cos(t*0.37)) * b.cfg.Noise * 0.5

	return uint16(math.Max(0, math.Min(float64(FullScale), math.Round(raw))))
}

// integrateLocked advances the soil model in fixed steps up to the current
// virtual time.
func (b *Board) integrateLocked() {
	now := b.virtualLocked()
	step := b.cfg.Step.D()
	for b.advanced+step <= now {
		dt := step.Seconds()
		for _, s := range b.bySensor {
			if b.levels[s.wiring.MotorPin] {
				s.moisture += b.cfg.WettingPerSec * dt
			} else {
				s.moisture -= b.cfg.DryingPerHour / 3600 * dt
			}
			s.moisture = clamp(s.moisture)
		}
		b.advanced += step
	}
}

// Moisture returns the true moisture in percent of the soil wired to the
// probe on pin.
func (b *Board) Moisture(sensorPin hal.Pin) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.bySensor[sensorPin]
	if !ok {
		return 0, false
	}
	b.integrateLocked()
	return s.moisture, true
}

// SetMoisture overrides the moisture of the soil wired to the probe on pin.
func (b *Board) SetMoisture(sensorPin hal.Pin, pct float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.bySensor[sensorPin]; ok {
		b.integrateLocked()
		s.moisture = clamp(pct)
	}
}

// Disconnect simulates a broken probe wire. A disconnected probe reads
// FullScale.
func (b *Board) Disconnect(sensorPin hal.Pin, disconnected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.bySensor[sensorPin]; ok {
		s.disconnected = disconnected
	}
}

// Level returns the last level written to pin.
func (b *Board) Level(pin hal.Pin) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.levels[pin]
}

// Close stops the board. Further I/O fails.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
