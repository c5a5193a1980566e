// Package fake provides a deterministic in-memory board for tests.
package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/itohio/gowater/pkg/hal"
)

// Write records a single digital output change.
type Write struct {
	Pin  hal.Pin
	High bool
	At   hal.TimePoint
}

// Board is a hal.Board whose clock only moves when told to. Sleep advances the
// clock instead of blocking.
type Board struct {
	mu       sync.Mutex
	now      hal.TimePoint
	levels   map[hal.Pin]bool
	analog   map[hal.Pin]uint16
	readErr  map[hal.Pin]error
	writeErr map[hal.Pin]error
	writes   []Write
	reads    int
	closed   bool
}

var _ hal.Board = (*Board)(nil)

// New returns a board whose clock starts at start.
func New(start hal.TimePoint) *Board {
	return &Board{
		now:      start,
		levels:   make(map[hal.Pin]bool),
		analog:   make(map[hal.Pin]uint16),
		readErr:  make(map[hal.Pin]error),
		writeErr: make(map[hal.Pin]error),
	}
}

// Now returns the current fake time.
func (b *Board) Now() hal.TimePoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// Advance moves the clock forward by d.
func (b *Board) Advance(d time.Duration) {
	b.mu.Lock()
	b.now = b.now.Add(d)
	b.mu.Unlock()
}

// Set moves the clock to t.
func (b *Board) Set(t hal.TimePoint) {
	b.mu.Lock()
	b.now = t
	b.mu.Unlock()
}

// Sleep advances the clock by d.
func (b *Board) Sleep(d time.Duration) {
	b.Advance(d)
}

// SetPin records the new level of pin.
func (b *Board) SetPin(pin hal.Pin, high bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("board closed")
	}
	if err := b.writeErr[pin]; err != nil {
		return err
	}
	b.levels[pin] = high
	b.writes = append(b.writes, Write{Pin: pin, High: high, At: b.now})
	return nil
}

// ReadAnalog returns the value configured with SetAnalog.
func (b *Board) ReadAnalog(pin hal.Pin) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, fmt.Errorf("board closed")
	}
	if err := b.readErr[pin]; err != nil {
		return 0, err
	}
	b.reads++
	return b.analog[pin], nil
}

// SetAnalog sets the value subsequent reads of pin return.
func (b *Board) SetAnalog(pin hal.Pin, v uint16) {
	b.mu.Lock()
	b.analog[pin] = v
	b.mu.Unlock()
}

// FailRead makes reads of pin return err. A nil err clears the failure.
func (b *Board) FailRead(pin hal.Pin, err error) {
	b.mu.Lock()
	b.readErr[pin] = err
	b.mu.Unlock()
}

// FailWrite makes writes to pin return err. A nil err clears the failure.
func (b *Board) FailWrite(pin hal.Pin, err error) {
	b.mu.Lock()
	b.writeErr[pin] = err
	b.mu.Unlock()
}

// Level returns the last level written to pin.
func (b *Board) Level(pin hal.Pin) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[pin]
}

// Writes returns a copy of every recorded write.
func (b *Board) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Write(nil), b.writes...)
}

// Reads returns the number of successful analog reads.
func (b *Board) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

// Close marks the board closed. Further I/O fails.
func (b *Board) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
