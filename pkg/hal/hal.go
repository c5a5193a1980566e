// Package hal is the hardware boundary of the watering controller. Everything
// above it talks to pins, analog inputs and the clock only through these
// interfaces, so the same control code runs against a simulator, a serial
// MCU bridge or a Linux single-board computer.
package hal

import (
	"fmt"
	"io"
	"time"
)

// Pin identifies a digital or analog pin on a board.
type Pin uint8

// NoPin marks an optional pin as not connected.
const NoPin Pin = 0xFF

// Valid reports whether p refers to a real pin.
func (p Pin) Valid() bool { return p != NoPin }

func (p Pin) String() string {
	if p == NoPin {
		return "none"
	}
	return fmt.Sprintf("%d", uint8(p))
}

// TimePoint is a monotonic timestamp in milliseconds since board start.
type TimePoint int64

// Sub returns the duration t-u.
func (t TimePoint) Sub(u TimePoint) time.Duration {
	return time.Duration(t-u) * time.Millisecond
}

// Add returns t+d truncated to milliseconds.
func (t TimePoint) Add(d time.Duration) TimePoint {
	return t + TimePoint(d/time.Millisecond)
}

// Before reports whether t is before u.
func (t TimePoint) Before(u TimePoint) bool { return t < u }

// After reports whether t is after u.
func (t TimePoint) After(u TimePoint) bool { return t > u }

// IsZero reports whether t is the zero time point.
func (t TimePoint) IsZero() bool { return t == 0 }

// Clock provides monotonic time.
type Clock interface {
	Now() TimePoint
}

// DigitalOutput drives output pins.
type DigitalOutput interface {
	SetPin(pin Pin, high bool) error
}

// AnalogInput samples analog pins. Values are scaled to 16 bits.
type AnalogInput interface {
	ReadAnalog(pin Pin) (uint16, error)
}

// Sleeper blocks the caller for a duration.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Board bundles every capability the controller needs from hardware.
type Board interface {
	Clock
	DigitalOutput
	AnalogInput
	Sleeper
	io.Closer
}

// SystemClock is a Clock and Sleeper backed by the host monotonic clock.
// The zero value starts counting at the first call to Now.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock whose epoch is the moment of the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns milliseconds elapsed since the clock was created. The result is
// never zero so callers may use zero as a "never" sentinel.
func (c *SystemClock) Now() TimePoint {
	if c.start.IsZero() {
		c.start = time.Now()
	}
	return TimePoint(time.Since(c.start)/time.Millisecond) + 1
}

// Sleep blocks for d.
func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
