package pot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/hal/fake"
	"github.com/itohio/gowater/pkg/sensor"
)

const (
	probePin hal.Pin = 0
	motorPin hal.Pin = 5
	ledPin   hal.Pin = 6

	// Raw readings for a 300..700 calibration.
	dry uint16 = 420 // 30 %
	wet uint16 = 540 // 60 %
)

func testConfig() Config {
	return Config{
		Name:             "basil",
		MotorPin:         motorPin,
		ErrorLEDPin:      ledPin,
		Intensity:        100,
		WateringTime:     10 * time.Second,
		SoakTime:         time.Minute,
		MinWaterInterval: 30 * time.Minute,
	}
}

func newPot(t *testing.T, mutate func(*Config)) (*Pot, *fake.Board) {
	t.Helper()
	b := fake.New(1000)
	b.SetAnalog(probePin, wet)
	s, err := sensor.New(b, sensor.Config{
		DataPin:     probePin,
		PowerPin:    hal.NoPin,
		MinRange:    300,
		MaxRange:    700,
		Threshold:   40,
		FilterAlpha: 1,
	})
	require.NoError(t, err)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(b, s, cfg, nil)
	require.NoError(t, err)
	return p, b
}

// runUntilChange advances the clock in steps and calls Update after each step
// until limit has elapsed or the state moves away from the starting one.
func runUntilChange(p *Pot, b *fake.Board, step, limit time.Duration) (State, time.Duration) {
	start := p.State()
	var elapsed time.Duration
	for elapsed < limit {
		b.Advance(step)
		elapsed += step
		if st := p.Update(); st != start {
			return st, elapsed
		}
	}
	return start, elapsed
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero watering time", func(c *Config) { c.WateringTime = 0 }},
		{"zero min interval", func(c *Config) { c.MinWaterInterval = 0 }},
		{"zero intensity", func(c *Config) { c.Intensity = 0 }},
		{"intensity above 100", func(c *Config) { c.Intensity = 101 }},
		{"no motor pin", func(c *Config) { c.MotorPin = hal.NoPin }},
		{"negative soak", func(c *Config) { c.SoakTime = -time.Second }},
	}

	b := fake.New(1)
	s, err := sensor.New(b, sensor.Config{DataPin: probePin, PowerPin: hal.NoPin, MinRange: 300, MaxRange: 700, Threshold: 40})
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			p, err := New(b, s, cfg, nil)
			assert.ErrorIs(t, err, fault.ErrConfiguration)
			assert.Nil(t, p)
		})
	}

	t.Run("nil sensor", func(t *testing.T) {
		_, err := New(b, nil, testConfig(), nil)
		assert.ErrorIs(t, err, fault.ErrConfiguration)
	})
	t.Run("unconstructed sensor", func(t *testing.T) {
		_, err := New(b, &sensor.Moisture{}, testConfig(), nil)
		assert.ErrorIs(t, err, fault.ErrConfiguration)
	})
	t.Run("nil board", func(t *testing.T) {
		_, err := New(nil, s, testConfig(), nil)
		assert.ErrorIs(t, err, fault.ErrConfiguration)
	})
}

func TestNew_Defaults(t *testing.T) {
	p, b := newPot(t, nil)

	assert.True(t, p.Initialized())
	assert.Equal(t, Idle, p.State())
	assert.True(t, p.IsIdle())
	assert.Equal(t, "basil", p.Name())
	assert.Equal(t, DefaultIdleInterval, p.Config().IdleInterval)
	assert.Equal(t, DefaultActiveInterval, p.Config().ActiveInterval)
	assert.False(t, b.Level(motorPin))
	assert.False(t, b.Level(ledPin))
	assert.True(t, p.LastWatered().IsZero())
	assert.NotNil(t, p.Sensor())
}

func TestUpdate_NormalCycle(t *testing.T) {
	p, b := newPot(t, nil)
	b.SetAnalog(probePin, dry)

	assert.Equal(t, Watering, p.Update())
	assert.True(t, b.Level(motorPin))
	assert.True(t, p.MotorOn())

	st, elapsed := runUntilChange(p, b, 100*time.Millisecond, time.Minute)
	assert.Equal(t, Waiting, st)
	assert.Equal(t, 10*time.Second+100*time.Millisecond, elapsed)
	assert.False(t, b.Level(motorPin))
	assert.Equal(t, hal.TimePoint(1000+10100), p.LastWatered())

	st, elapsed = runUntilChange(p, b, time.Second, 5*time.Minute)
	assert.Equal(t, Idle, st)
	assert.Equal(t, 61*time.Second, elapsed)
	assert.False(t, b.Level(ledPin))
}

func TestUpdate_EarlyRecovery(t *testing.T) {
	p, b := newPot(t, nil)
	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())

	for i := 0; i < 30; i++ {
		b.Advance(100 * time.Millisecond)
		require.Equal(t, Watering, p.Update())
	}
	b.SetAnalog(probePin, wet)
	b.Advance(100 * time.Millisecond)

	assert.Equal(t, Waiting, p.Update())
	assert.False(t, b.Level(motorPin))
	assert.Equal(t, hal.TimePoint(1000+3100), p.LastWatered())
}

func TestUpdate_MinWaterIntervalLatch(t *testing.T) {
	p, b := newPot(t, func(c *Config) { c.SoakTime = 5 * time.Second })

	var transitions []Transition
	p.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())
	b.SetAnalog(probePin, wet)
	b.Advance(time.Second)
	require.Equal(t, Waiting, p.Update())

	st, _ := runUntilChange(p, b, time.Second, time.Minute)
	require.Equal(t, Idle, st)

	b.SetAnalog(probePin, dry)
	b.Advance(time.Second)
	assert.Equal(t, MinWaterIntervalError, p.Update())
	assert.False(t, b.Level(motorPin))
	assert.True(t, b.Level(ledPin))
	assert.True(t, p.ErrorLED())

	for i := 0; i < 10; i++ {
		b.Advance(time.Hour)
		assert.Equal(t, MinWaterIntervalError, p.Update())
		assert.False(t, b.Level(motorPin))
	}

	require.Len(t, transitions, 4)
	assert.Equal(t, []State{Watering, Waiting, Idle, MinWaterIntervalError},
		[]State{transitions[0].To, transitions[1].To, transitions[2].To, transitions[3].To})
	assert.NotEmpty(t, transitions[0].Cycle)
	assert.Equal(t, transitions[0].Cycle, transitions[1].Cycle)
	assert.Equal(t, "moisture recovered", transitions[1].Reason)
	assert.Empty(t, transitions[3].Cycle)
}

func TestUpdate_AllowedAfterMinInterval(t *testing.T) {
	p, b := newPot(t, func(c *Config) {
		c.SoakTime = time.Second
		c.MinWaterInterval = time.Minute
	})

	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())
	b.SetAnalog(probePin, wet)
	b.Advance(time.Second)
	require.Equal(t, Waiting, p.Update())
	b.Advance(2 * time.Second)
	require.Equal(t, Idle, p.Update())

	b.Advance(time.Minute)
	b.SetAnalog(probePin, dry)
	assert.Equal(t, Watering, p.Update())
}

func TestUpdate_Throttle(t *testing.T) {
	p, b := newPot(t, nil)

	require.Equal(t, Idle, p.Update())
	reads := b.Reads()

	b.SetAnalog(probePin, dry)
	b.Advance(50 * time.Millisecond)
	assert.Equal(t, Idle, p.Update())
	assert.Equal(t, Idle, p.Update())
	assert.Equal(t, reads, b.Reads(), "sensor sampled inside the throttle window")

	b.Advance(949 * time.Millisecond)
	assert.Equal(t, Idle, p.Update())

	b.Advance(time.Millisecond)
	assert.Equal(t, Watering, p.Update())

	// Active cadence while watering.
	b.Advance(99 * time.Millisecond)
	reads = b.Reads()
	p.Update()
	assert.Equal(t, reads, b.Reads())
	b.Advance(time.Millisecond)
	p.Update()
	assert.Equal(t, reads+1, b.Reads())
}

func TestUpdate_SoftwarePWM(t *testing.T) {
	p, b := newPot(t, func(c *Config) {
		c.Intensity = 50
		c.PWMPeriod = time.Second
	})
	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())
	assert.True(t, b.Level(motorPin))

	levels := make([]bool, 0, 20)
	for i := 0; i < 20; i++ {
		b.Advance(100 * time.Millisecond)
		require.Equal(t, Watering, p.Update())
		levels = append(levels, b.Level(motorPin))
	}

	want := []bool{
		true, true, true, true, false, false, false, false, false, true,
		true, true, true, true, false, false, false, false, false, true,
	}
	assert.Equal(t, want, levels)
}

func TestUpdate_SampleErrorWhileIdle(t *testing.T) {
	p, b := newPot(t, nil)
	b.SetAnalog(probePin, dry)
	b.FailRead(probePin, errors.New("adc stuck"))

	assert.Equal(t, Idle, p.Update())
	assert.False(t, b.Level(motorPin))
}

func TestUpdate_SampleErrorWhileWatering(t *testing.T) {
	p, b := newPot(t, nil)
	var last Transition
	p.OnTransition(func(tr Transition) { last = tr })

	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())

	b.FailRead(probePin, errors.New("adc stuck"))
	b.Advance(100 * time.Millisecond)
	assert.Equal(t, Waiting, p.Update())
	assert.False(t, b.Level(motorPin))
	assert.Equal(t, "sensor sample failed", last.Reason)
}

func TestUpdate_MotorOffRetried(t *testing.T) {
	p, b := newPot(t, nil)
	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())

	b.FailWrite(motorPin, errors.New("relay driver"))
	b.SetAnalog(probePin, wet)
	b.Advance(100 * time.Millisecond)
	require.Equal(t, Waiting, p.Update())
	assert.True(t, p.MotorOn())

	b.FailWrite(motorPin, nil)
	b.Advance(10 * time.Millisecond)
	p.Update()
	assert.False(t, p.MotorOn())
	assert.False(t, b.Level(motorPin))
}

func TestUpdate_RelaySettle(t *testing.T) {
	p, b := newPot(t, func(c *Config) { c.RelaySettle = 50 * time.Millisecond })
	b.SetAnalog(probePin, dry)

	require.Equal(t, Watering, p.Update())
	assert.Equal(t, hal.TimePoint(1050), b.Now())
}

func TestReset(t *testing.T) {
	p, b := newPot(t, func(c *Config) { c.SoakTime = 0 })

	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())
	b.Advance(11 * time.Second)
	require.Equal(t, Waiting, p.Update())
	b.Advance(time.Second)
	require.Equal(t, Idle, p.Update())
	b.Advance(time.Second)
	require.Equal(t, MinWaterIntervalError, p.Update())

	var got Transition
	p.OnTransition(func(tr Transition) { got = tr })
	require.NoError(t, p.Reset())

	assert.Equal(t, Idle, p.State())
	assert.False(t, b.Level(ledPin))
	assert.True(t, p.LastWatered().IsZero())
	assert.Equal(t, MinWaterIntervalError, got.From)
	assert.Equal(t, "reset", got.Reason)

	// A fresh pot waters on the very first tick.
	assert.Equal(t, Watering, p.Update())
}

func TestStop(t *testing.T) {
	p, b := newPot(t, nil)
	b.SetAnalog(probePin, dry)
	require.Equal(t, Watering, p.Update())

	require.NoError(t, p.Stop())
	assert.False(t, b.Level(motorPin))
	assert.Equal(t, Watering, p.State())
}

func TestZeroValuePanics(t *testing.T) {
	var p Pot
	assert.False(t, p.Initialized())
	assert.Panics(t, func() { p.Update() })
	assert.Panics(t, func() { p.State() })
	assert.Panics(t, func() { _ = p.Reset() })
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "watering", Watering.String())
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "min_water_interval_error", MinWaterIntervalError.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.True(t, MinWaterIntervalError.Fault())
	assert.False(t, Waiting.Fault())
}
