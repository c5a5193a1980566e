package menu

import (
	"fmt"
	"strings"

	"github.com/itohio/gowater/pkg/pot"
)

// PotsPerRow is how many pots share one text row of the moisture screen.
const PotsPerRow = 2

// MoistureScreen is the overview shown when the menu is closed: the moisture
// of every pot, two per row, scrolled a page at a time.
type MoistureScreen struct {
	pots       []*pot.Pot
	rows, cols int

	top     int
	changed bool
	shown   []string
}

// NewMoistureScreen returns a screen for pots on a rows x cols display.
func NewMoistureScreen(pots []*pot.Pot, rows, cols int) *MoistureScreen {
	return &MoistureScreen{pots: pots, rows: rows, cols: cols, changed: true}
}

func (s *MoistureScreen) cell(slot int, p *pot.Pot) string {
	if p.State().Fault() {
		return fmt.Sprintf("P%d:ERR", slot+1)
	}
	return fmt.Sprintf("P%d:%d%%", slot+1, int(p.Sensor().Percentage()))
}

// textRows formats every initialized pot, PotsPerRow per row.
func (s *MoistureScreen) textRows() []string {
	var rows []string
	var cells []string
	for slot, p := range s.pots {
		if !p.Initialized() {
			continue
		}
		cells = append(cells, s.cell(slot, p))
		if len(cells) == PotsPerRow {
			rows = append(rows, strings.Join(cells, " "))
			cells = cells[:0]
		}
	}
	if len(cells) > 0 {
		rows = append(rows, strings.Join(cells, " "))
	}
	return rows
}

func (s *MoistureScreen) lastTop() int {
	n := len(s.textRows())
	if n == 0 {
		return 0
	}
	return (n - 1) / s.rows * s.rows
}

// Up scrolls one page up.
func (s *MoistureScreen) Up() {
	if top := max(s.top-s.rows, 0); top != s.top {
		s.top = top
		s.changed = true
	}
}

// Down scrolls one page down.
func (s *MoistureScreen) Down() {
	if top := min(s.top+s.rows, s.lastTop()); top != s.top {
		s.top = top
		s.changed = true
	}
}

// Top returns the index of the first text row on screen.
func (s *MoistureScreen) Top() int { return s.top }

// Changed reports whether Render would produce something different from what
// was last rendered.
func (s *MoistureScreen) Changed() bool {
	if s.changed {
		return true
	}
	page := s.page()
	for i := range page {
		if page[i] != s.shown[i] {
			return true
		}
	}
	return false
}

func (s *MoistureScreen) page() []string {
	all := s.textRows()
	out := make([]string, s.rows)
	for row := range out {
		text := ""
		if i := s.top + row; i < len(all) {
			text = all[i]
		}
		out[row] = fit(text, s.cols)
	}
	return out
}

// Render returns the current page and clears the changed flag.
func (s *MoistureScreen) Render() []string {
	s.shown = s.page()
	s.changed = false
	return append([]string(nil), s.shown...)
}
