// Package scope provides a Fyne chart of one pot's moisture history.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/history"
)

const maxDisplayPoints = 600

// ScopeWidget draws moisture over time with the trigger threshold and the
// watering spans of a single pot.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	// Data (protected by mu)
	mu        sync.RWMutex
	title     string
	spans     []history.Span
	threshold float32
	now       hal.TimePoint

	// Reused for downsampling
	display []history.Reading
}

// New creates a chart covering window.
func New(title string, window time.Duration) *ScopeWidget {
	if window <= 0 {
		window = history.DefaultWindow
	}
	s := &ScopeWidget{
		title:   title,
		window:  window,
		display: make([]history.Reading, 0, maxDisplayPoints),
	}
	s.ExtendBaseWidget(s)
	return s
}

// SetTitle changes the caption drawn in the top left corner.
func (s *ScopeWidget) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	s.Refresh()
}

// UpdateData replaces the plotted data. now is the right edge of the chart.
// Call it on the Fyne goroutine (fyne.Do) when fed from a history callback.
func (s *ScopeWidget) UpdateData(readings []history.Reading, spans []history.Span, now hal.TimePoint) {
	s.mu.Lock()
	s.display = history.Downsample(s.display, readings, maxDisplayPoints)
	s.spans = spans
	s.now = now
	if n := len(readings); n > 0 {
		s.threshold = float32(readings[n-1].Threshold)
		if readings[n-1].At.After(now) {
			s.now = readings[n-1].At
		}
	}
	s.mu.Unlock()

	s.Refresh()
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}

// axis maps timestamps and percentages onto the plot area.
type axis struct {
	x, y, w, h float32
	start, end hal.TimePoint
}

func (a axis) px(t hal.TimePoint) float32 {
	span := float32(a.end.Sub(a.start))
	if span <= 0 {
		return a.x + a.w
	}
	f := float32(t.Sub(a.start)) / span
	return a.x + clamp01(f)*a.w
}

func (a axis) py(percent float32) float32 {
	return a.y + a.h - clamp01(percent/100)*a.h
}

func clamp01(f float32) float32 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
