// Package menu is the on-device character display menu: a tree of text
// entries, lists and numeric edit fields driven by Up, Down and Enter events
// from a rotary encoder or buttons.
package menu

import "fmt"

// Event is a user input.
type Event int

const (
	Up Event = iota
	Down
	Enter
)

func (e Event) String() string {
	switch e {
	case Up:
		return "up"
	case Down:
		return "down"
	case Enter:
		return "enter"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Item is a menu entry. The set of implementations is closed: *Text, *List
// and *EditField.
type Item interface {
	Label() string
	item()
}

// Text is a read-only entry. Entering it shows Title followed by Body; any
// event returns to the parent list.
type Text struct {
	Title   string
	Body    func() []string // optional, evaluated on every render
	OnEnter func()          // optional, called when the entry is opened
}

// Label returns the title.
func (t *Text) Label() string { return t.Title }

func (*Text) item() {}

// List is a scrollable list of entries. Cursor position -1 is the ".." entry
// that returns to the parent.
type List struct {
	Title string
	Items []Item

	cursor int
	top    int
}

// NewList returns a list with the cursor on the first entry.
func NewList(title string, items ...Item) *List {
	return &List{Title: title, Items: items}
}

// Label returns the title.
func (l *List) Label() string { return l.Title }

func (*List) item() {}

// Cursor returns the index of the selected entry, -1 for "..".
func (l *List) Cursor() int { return l.cursor }

func (l *List) up() {
	l.cursor = max(l.cursor-1, -1)
	if l.cursor < l.top {
		l.top = l.cursor
	}
}

func (l *List) down(rows int) {
	l.cursor = min(l.cursor+1, len(l.Items)-1)
	if l.cursor-l.top > rows-1 {
		l.top = l.cursor - rows + 1
	}
}

func (l *List) reset() {
	l.cursor, l.top = 0, 0
	if len(l.Items) == 0 {
		l.cursor, l.top = -1, -1
	}
}

// EditField edits an integer in place. While active, Up and Down change the
// value by Step within [Min, Max] and Enter returns to the parent list.
type EditField struct {
	Format string // label format with a single integer verb, e.g. "Thr: %d%%"
	Get    func() int
	Set    func(int) error
	Step   int
	Min    int
	Max    int

	err error
}

// Label formats the current value.
func (e *EditField) Label() string { return fmt.Sprintf(e.Format, e.Get()) }

func (*EditField) item() {}

// Err returns the error of the last rejected Set, if any.
func (e *EditField) Err() error { return e.err }

func (e *EditField) adjust(delta int) {
	v := min(max(e.Get()+delta, e.Min), e.Max)
	if v == e.Get() {
		return
	}
	e.err = e.Set(v)
}
