package menu

import (
	"strings"

	"github.com/itohio/gowater/pkg/fault"
)

// Glyphs used when rendering. They are plain ASCII so any HD44780 style
// display can show them.
const (
	CursorGlyph     = '>'
	EditCursorGlyph = '*'
	UpGlyph         = '^'
	DownGlyph       = 'v'
	BackLabel       = ".."
)

// Menu tracks navigation through a tree of items rooted at a List.
type Menu struct {
	rows, cols int
	stack      []Item
}

// New returns a menu showing root on a rows x cols display.
func New(root *List, rows, cols int) (*Menu, error) {
	if root == nil {
		return nil, fault.Configf("menu: nil root")
	}
	if len(root.Items) == 0 {
		return nil, fault.Configf("menu: root list is empty")
	}
	if rows < 1 || cols < 4 {
		return nil, fault.Configf("menu: display %dx%d too small", rows, cols)
	}
	return &Menu{rows: rows, cols: cols, stack: []Item{root}}, nil
}

// Current returns the active item.
func (m *Menu) Current() Item {
	return m.stack[len(m.stack)-1]
}

// Depth returns how many items deep the menu is; the root is depth 1.
func (m *Menu) Depth() int { return len(m.stack) }

// Reset returns to the root with the cursor on the first entry.
func (m *Menu) Reset() {
	m.stack = m.stack[:1]
	m.stack[0].(*List).reset()
}

func (m *Menu) push(it Item) {
	if l, ok := it.(*List); ok {
		l.reset()
	}
	if t, ok := it.(*Text); ok && t.OnEnter != nil {
		t.OnEnter()
	}
	m.stack = append(m.stack, it)
}

func (m *Menu) pop() {
	if len(m.stack) > 1 {
		m.stack = m.stack[:len(m.stack)-1]
	}
}

// Handle applies ev to the active item. It returns true when ".." is entered
// on the root list, meaning the user left the menu.
func (m *Menu) Handle(ev Event) bool {
	switch it := m.Current().(type) {
	case *List:
		switch ev {
		case Up:
			it.up()
		case Down:
			it.down(m.rows)
		case Enter:
			if it.cursor == -1 {
				if len(m.stack) == 1 {
					it.reset()
					return true
				}
				m.pop()
				return false
			}
			m.push(it.Items[it.cursor])
		}
	case *EditField:
		switch ev {
		case Up:
			it.adjust(it.Step)
		case Down:
			it.adjust(-it.Step)
		case Enter:
			m.pop()
		}
	case *Text:
		m.pop()
	}
	return false
}

// Render returns the display contents, one string of exactly cols runes per
// row.
func (m *Menu) Render() []string {
	switch it := m.Current().(type) {
	case *List:
		return m.renderList(it, false)
	case *EditField:
		parent := m.stack[len(m.stack)-2].(*List)
		return m.renderList(parent, true)
	case *Text:
		lines := []string{it.Title}
		if it.Body != nil {
			lines = append(lines, it.Body()...)
		}
		out := make([]string, m.rows)
		for row := range out {
			text := ""
			if row < len(lines) {
				text = lines[row]
			}
			out[row] = fit(text, m.cols)
		}
		return out
	}
	return nil
}

func (m *Menu) renderList(l *List, editing bool) []string {
	out := make([]string, m.rows)
	for row := 0; row < m.rows; row++ {
		idx := l.top + row
		var b strings.Builder
		switch {
		case idx == l.cursor && editing:
			b.WriteRune(EditCursorGlyph)
		case idx == l.cursor:
			b.WriteRune(CursorGlyph)
		default:
			b.WriteRune(' ')
		}
		switch {
		case idx == -1:
			b.WriteString(BackLabel)
		case idx < len(l.Items):
			b.WriteString(l.Items[idx].Label())
		}
		out[row] = fit(b.String(), m.cols-1) + " "
	}

	if l.top > -1 {
		out[0] = setLast(out[0], UpGlyph)
	}
	if l.top+m.rows-1 < len(l.Items)-1 {
		out[m.rows-1] = setLast(out[m.rows-1], DownGlyph)
	}
	return out
}

// fit truncates or pads s to exactly n runes.
func fit(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s + strings.Repeat(" ", n-len(r))
}

func setLast(s string, glyph rune) string {
	r := []rune(s)
	r[len(r)-1] = glyph
	return string(r)
}
