package main

import (
	"sync"
	"time"

	"github.com/itohio/gowater/pkg/history"
)

// newThrottle wraps a history callback so that each slot is forwarded at most
// once per interval. Fyne cannot keep up with one redraw per loop tick.
func newThrottle(interval time.Duration, fn func(slot int, readings []history.Reading, spans []history.Span)) func(int, []history.Reading, []history.Span) {
	var (
		mu   sync.Mutex
		last = make(map[int]time.Time)
	)
	return func(slot int, readings []history.Reading, spans []history.Span) {
		now := time.Now()
		mu.Lock()
		if now.Sub(last[slot]) < interval {
			mu.Unlock()
			return
		}
		last[slot] = now
		mu.Unlock()

		fn(slot, readings, spans)
	}
}
