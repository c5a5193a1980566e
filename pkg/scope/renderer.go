package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/gowater/pkg/history"
	"github.com/itohio/gowater/pkg/pot"
)

var (
	gridColor      = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor     = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	moistureColor  = color.RGBA{R: 80, G: 200, B: 120, A: 255}
	thresholdColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	spanColor      = color.RGBA{R: 0, G: 100, B: 200, A: 80}
	faultColor     = color.RGBA{R: 220, G: 40, B: 40, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	bg       *canvas.Rectangle
	objects  []fyne.CanvasObject
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 200)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the canvas objects from the current data.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	title := r.scope.title
	readings := r.scope.display
	spans := r.scope.spans
	threshold := r.scope.threshold
	now := r.scope.now
	window := r.scope.window
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	r.objects = []fyne.CanvasObject{r.bg}
	if size.Width == 0 || size.Height == 0 {
		return
	}

	const (
		marginLeft   = 45
		marginRight  = 15
		marginTop    = 20
		marginBottom = 25
	)
	a := axis{
		x:     marginLeft,
		y:     marginTop,
		w:     size.Width - marginLeft - marginRight,
		h:     size.Height - marginTop - marginBottom,
		start: now.Add(-window),
		end:   now,
	}

	r.drawSpans(a, spans)
	r.drawGrid(a, window)
	if threshold > 0 {
		r.drawThreshold(a, threshold)
	}
	r.drawMoisture(a, readings)
	r.drawTitle(a, title, readings)
}

func (r *scopeRenderer) drawGrid(a axis, window time.Duration) {
	for pct := 0; pct <= 100; pct += 25 {
		y := a.py(float32(pct))
		r.line(gridColor, 1, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y))
		r.text(fmt.Sprintf("%d%%", pct), labelColor, fyne.TextAlignTrailing, fyne.NewPos(a.x-5, y-6))
	}

	const numVLines = 6
	for i := range numVLines + 1 {
		x := a.x + float32(i)*a.w/numVLines
		r.line(gridColor, 1, fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.h))
		ago := window - time.Duration(i)*window/numVLines
		r.text(formatAgo(ago), labelColor, fyne.TextAlignCenter, fyne.NewPos(x-20, a.y+a.h+5))
	}
}

func (r *scopeRenderer) drawSpans(a axis, spans []history.Span) {
	for _, s := range spans {
		end := s.End
		if s.Open() {
			end = a.end
		}
		x1, x2 := a.px(s.Start), a.px(end)
		if x2 <= x1 {
			continue
		}
		rect := canvas.NewRectangle(spanColor)
		rect.Move(fyne.NewPos(x1, a.y))
		rect.Resize(fyne.NewSize(x2-x1, a.h))
		r.objects = append(r.objects, rect)
	}
}

func (r *scopeRenderer) drawThreshold(a axis, threshold float32) {
	y := a.py(threshold)
	r.line(thresholdColor, 1, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y))
}

func (r *scopeRenderer) drawMoisture(a axis, readings []history.Reading) {
	var prev fyne.Position
	for i, rd := range readings {
		p := fyne.NewPos(a.px(rd.At), a.py(rd.Percent))
		if i > 0 && readings[i-1].At.After(a.start) {
			c := moistureColor
			if rd.State == pot.MinWaterIntervalError {
				c = faultColor
			}
			r.line(c, 1.5, prev, p)
		}
		prev = p
	}
}

func (r *scopeRenderer) drawTitle(a axis, title string, readings []history.Reading) {
	if n := len(readings); n > 0 {
		last := readings[n-1]
		title = fmt.Sprintf("%s  %.0f%%  %s", title, last.Percent, last.State)
	}
	t := canvas.NewText(title, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	t.TextSize = 11
	t.Move(fyne.NewPos(a.x+5, 3))
	r.objects = append(r.objects, t)
}

func (r *scopeRenderer) line(c color.Color, width float32, p1, p2 fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = p1
	l.Position2 = p2
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, c color.Color, align fyne.TextAlign, pos fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = 10
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

// formatAgo renders an axis label such as "-15m" or "now".
func formatAgo(d time.Duration) string {
	switch {
	case d <= 0:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("-%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("-%dm", int(d/time.Minute))
	}
	h := d.Hours()
	if h == float64(int(h)) {
		return fmt.Sprintf("-%dh", int(h))
	}
	return fmt.Sprintf("-%.1fh", h)
}
