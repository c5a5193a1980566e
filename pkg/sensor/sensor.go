// Package sensor reads resistive/capacitive soil moisture probes.
package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/filter"
	"github.com/itohio/gowater/pkg/hal"
)

// DefaultPowerSettle is how long a switched probe is powered before reading.
const DefaultPowerSettle = 10 * time.Millisecond

// IO is the part of a board a moisture probe needs.
type IO interface {
	hal.AnalogInput
	hal.DigitalOutput
	hal.Sleeper
}

// Config describes one probe.
//
// MinRange is the raw reading that maps to 0 % and MaxRange the one that maps
// to 100 %. Either may be the larger one: a probe that reads lower when wet
// simply has MinRange > MaxRange.
type Config struct {
	DataPin     hal.Pin
	PowerPin    hal.Pin // hal.NoPin if the probe is always powered
	PowerSettle time.Duration
	MinRange    uint16
	MaxRange    uint16
	Threshold   uint8 // trigger threshold in percent, 0 < Threshold < 100
	Invert      bool  // trigger when percentage >= Threshold
	FilterAlpha float32
}

// Moisture is a calibrated moisture probe with a low-pass filtered reading.
// It must be created with New.
type Moisture struct {
	io  IO
	cfg Config

	mu     sync.Mutex
	filter *filter.LowPass
}

// New validates cfg and returns a probe. The power pin, if any, is driven low.
func New(io IO, cfg Config) (*Moisture, error) {
	if io == nil {
		return nil, fault.Configf("sensor: nil board")
	}
	if !cfg.DataPin.Valid() {
		return nil, fault.Configf("sensor: data pin not set")
	}
	if cfg.MinRange == cfg.MaxRange {
		return nil, fault.Configf("sensor: calibration bounds must differ, both are %d", cfg.MinRange)
	}
	if cfg.Threshold == 0 || cfg.Threshold >= 100 {
		return nil, fault.Configf("sensor: threshold %d%% outside (0,100)", cfg.Threshold)
	}
	if cfg.FilterAlpha == 0 {
		cfg.FilterAlpha = filter.DefaultAlpha
	}
	if cfg.PowerPin.Valid() && cfg.PowerSettle == 0 {
		cfg.PowerSettle = DefaultPowerSettle
	}

	lp, err := filter.New(cfg.FilterAlpha)
	if err != nil {
		return nil, fmt.Errorf("sensor: %w", err)
	}

	if cfg.PowerPin.Valid() {
		if err := io.SetPin(cfg.PowerPin, false); err != nil {
			return nil, fmt.Errorf("sensor: power pin %s: %w", cfg.PowerPin, err)
		}
	}

	return &Moisture{io: io, cfg: cfg, filter: lp}, nil
}

func (m *Moisture) require() {
	fault.Require(m != nil && m.filter != nil, "moisture sensor used before construction")
}

// Initialized reports whether the sensor was built by New.
func (m *Moisture) Initialized() bool {
	return m != nil && m.filter != nil
}

// Sample powers the probe, waits for it to settle, reads it and feeds the
// reading through the filter. The probe is powered down even if the read
// fails.
func (m *Moisture) Sample() error {
	m.require()

	if m.cfg.PowerPin.Valid() {
		if err := m.io.SetPin(m.cfg.PowerPin, true); err != nil {
			return fmt.Errorf("power probe on pin %s: %w", m.cfg.PowerPin, err)
		}
		m.io.Sleep(m.cfg.PowerSettle)
	}

	raw, readErr := m.io.ReadAnalog(m.cfg.DataPin)

	if m.cfg.PowerPin.Valid() {
		if err := m.io.SetPin(m.cfg.PowerPin, false); err != nil && readErr == nil {
			readErr = fmt.Errorf("power probe off on pin %s: %w", m.cfg.PowerPin, err)
		}
	}
	if readErr != nil {
		return fmt.Errorf("read probe on pin %s: %w", m.cfg.DataPin, readErr)
	}

	m.mu.Lock()
	m.filter.Filter(float32(raw))
	m.mu.Unlock()
	return nil
}

// RawValue returns the filtered raw reading, or 0 before the first sample.
func (m *Moisture) RawValue() float32 {
	m.require()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter.Value()
}

// Sampled reports whether at least one reading went through the filter.
func (m *Moisture) Sampled() bool {
	m.require()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter.Primed()
}

// Percentage maps the filtered reading onto 0..100 using the calibration
// bounds. Readings outside the bounds are clamped.
func (m *Moisture) Percentage() float32 {
	m.require()
	m.mu.Lock()
	defer m.mu.Unlock()
	return percentage(m.filter.Value(), m.cfg.MinRange, m.cfg.MaxRange)
}

func percentage(raw float32, minRange, maxRange uint16) float32 {
	lo, hi := float32(minRange), float32(maxRange)
	raw = math32.Max(math32.Min(lo, hi), math32.Min(raw, math32.Max(lo, hi)))
	return (raw - lo) / (hi - lo) * 100
}

// Triggered reports whether the soil is dry enough to water.
func (m *Moisture) Triggered() bool {
	m.require()
	m.mu.Lock()
	defer m.mu.Unlock()
	pct := percentage(m.filter.Value(), m.cfg.MinRange, m.cfg.MaxRange)
	thr := float32(m.cfg.Threshold)
	if m.cfg.Invert {
		return pct >= thr
	}
	return pct < thr
}

// Threshold returns the trigger threshold in percent.
func (m *Moisture) Threshold() uint8 {
	m.require()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Threshold
}

// SetThreshold changes the trigger threshold. Values outside (0,100) are
// rejected and leave the threshold unchanged.
func (m *Moisture) SetThreshold(t uint8) error {
	m.require()
	if t == 0 || t >= 100 {
		return fault.Preconditionf("threshold %d%% outside (0,100)", t)
	}
	m.mu.Lock()
	m.cfg.Threshold = t
	m.mu.Unlock()
	return nil
}

// Inverted reports whether the trigger polarity is inverted.
func (m *Moisture) Inverted() bool {
	m.require()
	return m.cfg.Invert
}

// MinRange returns the raw reading mapped to 0 %.
func (m *Moisture) MinRange() uint16 {
	m.require()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.MinRange
}

// MaxRange returns the raw reading mapped to 100 %.
func (m *Moisture) MaxRange() uint16 {
	m.require()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.MaxRange
}

// SetCalibration replaces both calibration bounds.
func (m *Moisture) SetCalibration(minRange, maxRange uint16) error {
	m.require()
	if minRange == maxRange {
		return fault.Preconditionf("calibration bounds must differ, both are %d", minRange)
	}
	m.mu.Lock()
	m.cfg.MinRange = minRange
	m.cfg.MaxRange = maxRange
	m.mu.Unlock()
	return nil
}

// DataPin returns the analog pin the probe is read from.
func (m *Moisture) DataPin() hal.Pin {
	m.require()
	return m.cfg.DataPin
}
