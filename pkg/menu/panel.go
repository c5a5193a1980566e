package menu

import (
	"slices"
	"sync"

	"github.com/itohio/gowater/pkg/pot"
)

// Panel is the front panel of the controller: the moisture screen while idle,
// the settings menu after Enter. A rotary encoder or three buttons produce the
// events. Panel is safe for use from several goroutines.
type Panel struct {
	mu      sync.Mutex
	screen  *MoistureScreen
	menu    *Menu
	display Display

	open  bool
	shown []string
}

// NewPanel builds the moisture screen and settings menu for pots.
func NewPanel(pots []*pot.Pot, rows, cols int, display Display) (*Panel, error) {
	m, err := New(PotMenu(pots), rows, cols)
	if err != nil {
		return nil, err
	}
	return &Panel{
		screen:  NewMoistureScreen(pots, rows, cols),
		menu:    m,
		display: display,
	}, nil
}

// MenuOpen reports whether the settings menu is showing.
func (p *Panel) MenuOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Handle routes an input event to the screen or the menu.
func (p *Panel) Handle(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		switch ev {
		case Up:
			p.screen.Up()
		case Down:
			p.screen.Down()
		case Enter:
			p.menu.Reset()
			p.open = true
		}
		return
	}
	if p.menu.Handle(ev) {
		p.open = false
		p.shown = nil
	}
}

// Render returns what the display should show now.
func (p *Panel) Render() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderLocked()
}

func (p *Panel) renderLocked() []string {
	if p.open {
		return p.menu.Render()
	}
	return p.screen.Render()
}

// Refresh pushes the current frame to the display if it differs from the last
// one shown. It reports whether anything was written.
func (p *Panel) Refresh() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open && p.shown != nil && !p.screen.Changed() {
		return false, nil
	}
	lines := p.renderLocked()
	if slices.Equal(lines, p.shown) {
		return false, nil
	}
	if p.display != nil {
		if err := p.display.Show(lines); err != nil {
			return false, err
		}
	}
	p.shown = lines
	return true, nil
}
