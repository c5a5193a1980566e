// Package history keeps a sliding window of pot readings and watering spans
// for charts and the simulator.
package history

import (
	"sync"
	"time"

	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/garden"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/pot"
)

// Default window sizes.
const (
	DefaultWindow     = time.Hour
	DefaultResolution = time.Second
)

// Reading is a single recorded point of one pot.
type Reading struct {
	At        hal.TimePoint
	Raw       float32
	Percent   float32
	Threshold uint8
	State     pot.State
}

// Span is one watering, from entering Watering until leaving it. End is zero
// while the pot is still watering.
type Span struct {
	Start hal.TimePoint
	End   hal.TimePoint
	Cycle string
}

// Open reports whether the watering is still running.
func (s Span) Open() bool { return s.End.IsZero() }

// Duration returns the span length, measured up to now for open spans.
func (s Span) Duration(now hal.TimePoint) time.Duration {
	if s.Open() {
		return now.Sub(s.Start)
	}
	return s.End.Sub(s.Start)
}

// Recorder holds per-slot FIFO buffers of readings and spans. Buffers are
// ordered oldest first and trimmed by timestamp, not by count.
type Recorder struct {
	window     time.Duration
	resolution time.Duration

	mu       sync.RWMutex
	readings [][]Reading
	spans    [][]Span

	cbMu      sync.RWMutex
	callbacks []func(slot int, readings []Reading, spans []Span)
}

// New creates a recorder for slots pots. A reading is stored at most once per
// resolution unless the pot changed state in between.
func New(slots int, window, resolution time.Duration) (*Recorder, error) {
	if slots <= 0 {
		return nil, fault.Configf("history: %d slots", slots)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if resolution < 0 {
		return nil, fault.Configf("history: negative resolution %s", resolution)
	}
	if resolution >= window {
		return nil, fault.Configf("history: resolution %s not below window %s", resolution, window)
	}
	return &Recorder{
		window:     window,
		resolution: resolution,
		readings:   make([][]Reading, slots),
		spans:      make([][]Span, slots),
	}, nil
}

// Attach subscribes the recorder to the garden's steps and transitions.
func (r *Recorder) Attach(g *garden.Garden) {
	g.OnStep(r.Observe)
	g.OnTransition(func(ev garden.Event) { r.Transition(ev.Slot, ev.Transition) })
}

// Observe records a garden snapshot. Pots that have not been sampled yet are
// skipped.
func (r *Recorder) Observe(snap []garden.Reading) {
	for _, s := range snap {
		if !s.Sampled {
			continue
		}
		r.Record(s.Slot, Reading{
			At:        s.At,
			Raw:       s.Raw,
			Percent:   s.Percent,
			Threshold: s.Threshold,
			State:     s.State,
		})
	}
}

// Record appends a reading for slot. It reports whether the reading was kept.
func (r *Recorder) Record(slot int, rd Reading) bool {
	r.mu.Lock()
	if slot < 0 || slot >= len(r.readings) {
		r.mu.Unlock()
		return false
	}

	buf := r.readings[slot]
	if n := len(buf); n > 0 {
		last := buf[n-1]
		if rd.At.Before(last.At) {
			r.mu.Unlock()
			return false
		}
		if rd.State == last.State && rd.At.Sub(last.At) < r.resolution {
			r.mu.Unlock()
			return false
		}
	}
	buf = append(buf, rd)

	cutoff := rd.At.Add(-r.window)
	drop := 0
	for drop < len(buf) && buf[drop].At.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		buf = append(buf[:0], buf[drop:]...)
	}
	r.readings[slot] = buf
	r.spans[slot] = trimSpans(r.spans[slot], cutoff)
	r.mu.Unlock()

	r.notify(slot)
	return true
}

// trimSpans removes closed spans that ended before cutoff.
func trimSpans(spans []Span, cutoff hal.TimePoint) []Span {
	drop := 0
	for drop < len(spans) && !spans[drop].Open() && spans[drop].End.Before(cutoff) {
		drop++
	}
	if drop == 0 {
		return spans
	}
	return append(spans[:0], spans[drop:]...)
}

// Transition opens a span when a pot starts watering and closes it when the
// pot leaves Watering.
func (r *Recorder) Transition(slot int, tr pot.Transition) {
	r.mu.Lock()
	if slot < 0 || slot >= len(r.spans) {
		r.mu.Unlock()
		return
	}

	spans := r.spans[slot]
	switch {
	case tr.To == pot.Watering:
		spans = append(spans, Span{Start: tr.At, Cycle: tr.Cycle})
	case tr.From == pot.Watering:
		if n := len(spans); n > 0 && spans[n-1].Open() {
			spans[n-1].End = tr.At
		}
	default:
		r.mu.Unlock()
		return
	}
	r.spans[slot] = spans
	r.mu.Unlock()

	r.notify(slot)
}

// Slots returns the number of pots tracked.
func (r *Recorder) Slots() int { return len(r.readings) }

// Window returns the retention window.
func (r *Recorder) Window() time.Duration { return r.window }

// Readings returns a copy of the readings of slot, oldest first.
func (r *Recorder) Readings(slot int) []Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if slot < 0 || slot >= len(r.readings) {
		return nil
	}
	return append([]Reading(nil), r.readings[slot]...)
}

// Spans returns a copy of the watering spans of slot, oldest first.
func (r *Recorder) Spans(slot int) []Span {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if slot < 0 || slot >= len(r.spans) {
		return nil
	}
	return append([]Span(nil), r.spans[slot]...)
}

// Latest returns the newest reading of slot.
func (r *Recorder) Latest(slot int) (Reading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if slot < 0 || slot >= len(r.readings) || len(r.readings[slot]) == 0 {
		return Reading{}, false
	}
	buf := r.readings[slot]
	return buf[len(buf)-1], true
}

// OnUpdate registers a callback invoked after a slot changed. The callback
// receives private copies and must not block for long.
func (r *Recorder) OnUpdate(cb func(slot int, readings []Reading, spans []Span)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

func (r *Recorder) notify(slot int) {
	r.cbMu.RLock()
	callbacks := make([]func(int, []Reading, []Span), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.cbMu.RUnlock()
	if len(callbacks) == 0 {
		return
	}

	readings := r.Readings(slot)
	spans := r.Spans(slot)
	for _, cb := range callbacks {
		if cb != nil {
			cb(slot, readings, spans)
		}
	}
}

// Downsample reduces readings to at most maxPoints by decimation. dst is
// reused when it has enough capacity.
func Downsample(dst, readings []Reading, maxPoints int) []Reading {
	if maxPoints <= 0 {
		return dst[:0]
	}
	if len(readings) <= maxPoints {
		if cap(dst) < len(readings) {
			dst = make([]Reading, len(readings))
		}
		dst = dst[:len(readings)]
		copy(dst, readings)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Reading, 0, maxPoints)
	}

	// Keep the newest point so the chart ends at the current value.
	if maxPoints == 1 {
		return append(dst, readings[len(readings)-1])
	}
	step := float64(len(readings)-1) / float64(maxPoints-1)
	for i := range maxPoints {
		dst = append(dst, readings[int(float64(i)*step+0.5)])
	}
	return dst
}
