// Package pot implements the per-pot watering controller.
package pot

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/sensor"
)

// Default cadences and timings.
const (
	DefaultIdleInterval   = time.Second
	DefaultActiveInterval = 100 * time.Millisecond
	DefaultPWMPeriod      = time.Second
)

// IO is the part of a board a controller needs.
type IO interface {
	hal.Clock
	hal.DigitalOutput
	hal.Sleeper
}

// Config holds the construction-time settings of one pot.
type Config struct {
	Name        string
	MotorPin    hal.Pin
	ErrorLEDPin hal.Pin // hal.NoPin if there is no LED

	// Intensity is the motor duty cycle in percent, 1..100. Below 100 the
	// motor is pulsed in software with period PWMPeriod.
	Intensity uint8
	PWMPeriod time.Duration

	WateringTime     time.Duration // upper bound of a single watering
	SoakTime         time.Duration // pause after watering
	MinWaterInterval time.Duration // shortest plausible time between waterings

	IdleInterval   time.Duration // evaluation cadence outside Watering
	ActiveInterval time.Duration // evaluation cadence while Watering
	RelaySettle    time.Duration // pause after switching the motor on
}

// Transition describes a state change.
type Transition struct {
	Pot    string
	From   State
	To     State
	At     hal.TimePoint
	Reason string
	Cycle  string // id of the watering cycle, empty outside one
}

// Pot is the watering state machine of a single pot. It must be created with
// New. Update is meant to be called from a single loop; the accessors and
// Reset may be called from other goroutines.
type Pot struct {
	io     IO
	sensor *sensor.Moisture
	cfg    Config
	log    *slog.Logger

	mu         sync.Mutex
	state      State
	started    bool
	lastUpdate hal.TimePoint
	lastWater  hal.TimePoint
	motorStart hal.TimePoint
	motorOn    bool
	ledOn      bool
	cycle      string
	listeners  []func(Transition)
}

// New validates cfg and returns a controller in the Idle state with the motor
// and error LED switched off.
func New(io IO, s *sensor.Moisture, cfg Config, log *slog.Logger) (*Pot, error) {
	if io == nil {
		return nil, fault.Configf("pot %q: nil board", cfg.Name)
	}
	if !s.Initialized() {
		return nil, fault.Configf("pot %q: sensor not configured", cfg.Name)
	}
	if !cfg.MotorPin.Valid() {
		return nil, fault.Configf("pot %q: motor pin not set", cfg.Name)
	}
	if cfg.Intensity == 0 || cfg.Intensity > 100 {
		return nil, fault.Configf("pot %q: intensity %d%% outside 1..100", cfg.Name, cfg.Intensity)
	}
	if cfg.WateringTime <= 0 {
		return nil, fault.Configf("pot %q: watering time must be positive", cfg.Name)
	}
	if cfg.MinWaterInterval <= 0 {
		return nil, fault.Configf("pot %q: minimum water interval must be positive", cfg.Name)
	}
	if cfg.SoakTime < 0 || cfg.RelaySettle < 0 || cfg.PWMPeriod < 0 {
		return nil, fault.Configf("pot %q: negative duration", cfg.Name)
	}
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.ActiveInterval == 0 {
		cfg.ActiveInterval = DefaultActiveInterval
	}
	if cfg.PWMPeriod == 0 {
		cfg.PWMPeriod = DefaultPWMPeriod
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Pot{
		io:     io,
		sensor: s,
		cfg:    cfg,
		log:    log.With("pot", cfg.Name),
	}
	if err := p.setMotor(false); err != nil {
		return nil, fmt.Errorf("pot %q: %w", cfg.Name, err)
	}
	if err := p.setLED(false); err != nil {
		return nil, fmt.Errorf("pot %q: %w", cfg.Name, err)
	}
	return p, nil
}

func (p *Pot) require() {
	fault.Require(p != nil && p.sensor != nil, "pot controller used before construction")
}

// OnTransition registers a callback invoked after every state change. The
// callback runs on the goroutine that caused the change without any lock held.
func (p *Pot) OnTransition(fn func(Transition)) {
	p.require()
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Update runs one tick of the state machine and returns the resulting state.
//
// The first call always evaluates. Later calls only evaluate once the idle
// cadence (or the active cadence while Watering) has passed since the last
// evaluation; in between they only refresh the software PWM output.
func (p *Pot) Update() State {
	p.require()

	p.mu.Lock()
	now := p.io.Now()
	if p.started && now.Sub(p.lastUpdate) < p.intervalLocked() {
		p.driveLocked(now)
		st := p.state
		p.mu.Unlock()
		return st
	}
	p.started = true
	p.lastUpdate = now

	tr, ok := p.stepLocked(now)
	st := p.state
	var listeners []func(Transition)
	if ok {
		listeners = append(listeners, p.listeners...)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(tr)
	}
	return st
}

func (p *Pot) intervalLocked() time.Duration {
	if p.state == Watering {
		return p.cfg.ActiveInterval
	}
	return p.cfg.IdleInterval
}

func (p *Pot) stepLocked(now hal.TimePoint) (Transition, bool) {
	sampleErr := p.sensor.Sample()
	if sampleErr != nil {
		p.log.Warn("sensor sample failed", "state", p.state, "err", sampleErr)
	}

	switch p.state {
	case Idle:
		if sampleErr != nil || !p.sensor.Triggered() {
			p.driveLocked(now)
			return Transition{}, false
		}
		if !p.lastWater.IsZero() && now.Sub(p.lastWater) < p.cfg.MinWaterInterval {
			p.logIOError(p.setMotor(false))
			p.logIOError(p.setLED(true))
			p.log.Error("triggered again within minimum water interval",
				"since_last_water", now.Sub(p.lastWater),
				"min_interval", p.cfg.MinWaterInterval,
				"percent", p.sensor.Percentage())
			return p.transitionLocked(MinWaterIntervalError, now, "triggered within minimum water interval"), true
		}
		p.cycle = uuid.NewString()
		p.motorStart = now
		p.logIOError(p.setMotor(true))
		if p.cfg.RelaySettle > 0 {
			p.io.Sleep(p.cfg.RelaySettle)
		}
		return p.transitionLocked(Watering, now, "soil dry"), true

	case Watering:
		var reason string
		switch {
		case sampleErr != nil:
			reason = "sensor sample failed"
		case !p.sensor.Triggered():
			reason = "moisture recovered"
		case now.Sub(p.motorStart) > p.cfg.WateringTime:
			reason = "watering time elapsed"
		}
		if reason == "" {
			p.driveLocked(now)
			return Transition{}, false
		}
		p.logIOError(p.setMotor(false))
		p.lastWater = now
		return p.transitionLocked(Waiting, now, reason), true

	case Waiting:
		p.driveLocked(now)
		if now.Sub(p.lastWater) > p.cfg.SoakTime {
			tr := p.transitionLocked(Idle, now, "soak time elapsed")
			p.cycle = ""
			return tr, true
		}
	default:
		p.driveLocked(now)
	}
	return Transition{}, false
}

func (p *Pot) transitionLocked(to State, now hal.TimePoint, reason string) Transition {
	tr := Transition{
		Pot:    p.cfg.Name,
		From:   p.state,
		To:     to,
		At:     now,
		Reason: reason,
		Cycle:  p.cycle,
	}
	p.state = to
	p.log.Info("state changed", "from", tr.From, "to", tr.To, "reason", reason, "cycle", tr.Cycle)
	return tr
}

// driveLocked brings the motor output in line with the current state. While
// Watering it applies the software duty cycle; otherwise it retries switching
// the motor off if an earlier write failed.
func (p *Pot) driveLocked(now hal.TimePoint) {
	want := false
	if p.state == Watering {
		want = p.pwmLevel(now)
	}
	if want != p.motorOn {
		p.logIOError(p.setMotor(want))
	}
}

func (p *Pot) pwmLevel(now hal.TimePoint) bool {
	if p.cfg.Intensity >= 100 {
		return true
	}
	period := p.cfg.PWMPeriod
	on := period * time.Duration(p.cfg.Intensity) / 100
	phase := now.Sub(p.motorStart) % period
	return phase < on
}

func (p *Pot) setMotor(on bool) error {
	if err := p.io.SetPin(p.cfg.MotorPin, on); err != nil {
		return fmt.Errorf("motor pin %s: %w", p.cfg.MotorPin, err)
	}
	p.motorOn = on
	return nil
}

func (p *Pot) setLED(on bool) error {
	if !p.cfg.ErrorLEDPin.Valid() {
		p.ledOn = on
		return nil
	}
	if err := p.io.SetPin(p.cfg.ErrorLEDPin, on); err != nil {
		return fmt.Errorf("error LED pin %s: %w", p.cfg.ErrorLEDPin, err)
	}
	p.ledOn = on
	return nil
}

func (p *Pot) logIOError(err error) {
	if err != nil {
		p.log.Error("output write failed", "err", err)
	}
}

// Reset returns the controller to the state of a freshly constructed one:
// Idle, motor and LED off, never watered. It is the only way out of
// MinWaterIntervalError.
func (p *Pot) Reset() error {
	p.require()

	p.mu.Lock()
	motorErr := p.setMotor(false)
	ledErr := p.setLED(false)
	from := p.state
	p.state = Idle
	p.started = false
	p.lastUpdate = 0
	p.lastWater = 0
	p.motorStart = 0
	p.cycle = ""
	now := p.io.Now()
	var listeners []func(Transition)
	if from != Idle {
		listeners = append(listeners, p.listeners...)
	}
	p.mu.Unlock()

	if from != Idle {
		p.log.Info("state changed", "from", from, "to", Idle, "reason", "reset")
	}
	tr := Transition{Pot: p.cfg.Name, From: from, To: Idle, At: now, Reason: "reset"}
	for _, fn := range listeners {
		fn(tr)
	}

	if motorErr != nil {
		return motorErr
	}
	return ledErr
}

// Stop switches the motor off and leaves the state machine where it is.
// It is used on shutdown.
func (p *Pot) Stop() error {
	p.require()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setMotor(false)
}

// State returns the current state without evaluating a tick.
func (p *Pot) State() State {
	p.require()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsIdle reports whether the pot is Idle.
func (p *Pot) IsIdle() bool {
	return p.State() == Idle
}

// Sensor returns the probe the pot reads.
func (p *Pot) Sensor() *sensor.Moisture {
	p.require()
	return p.sensor
}

// Initialized reports whether the pot was built by New.
func (p *Pot) Initialized() bool {
	return p != nil && p.sensor != nil
}

// Name returns the configured name.
func (p *Pot) Name() string {
	p.require()
	return p.cfg.Name
}

// Config returns the effective configuration with defaults applied.
func (p *Pot) Config() Config {
	p.require()
	return p.cfg
}

// MotorOn reports the last level successfully written to the motor pin.
func (p *Pot) MotorOn() bool {
	p.require()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.motorOn
}

// ErrorLED reports whether the error LED is lit.
func (p *Pot) ErrorLED() bool {
	p.require()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledOn
}

// LastWatered returns when the last watering ended, or zero if never.
func (p *Pot) LastWatered() hal.TimePoint {
	p.require()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWater
}
