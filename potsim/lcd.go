package main

import (
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gowater/pkg/menu"
)

var _ menu.Display = (*lcd)(nil)

// lcd imitates the character display and the three panel buttons.
type lcd struct {
	grid   *widget.TextGrid
	object fyne.CanvasObject
}

func newLCD(state *appState) *lcd {
	grid := widget.NewTextGrid()
	grid.SetText(strings.Repeat(" ", state.cfg.Display.Cols))

	up := widget.NewButtonWithIcon("", theme.MoveUpIcon(), func() { state.handleKey(menu.Up) })
	down := widget.NewButtonWithIcon("", theme.MoveDownIcon(), func() { state.handleKey(menu.Down) })
	enter := widget.NewButtonWithIcon("", theme.ConfirmIcon(), func() { state.handleKey(menu.Enter) })

	return &lcd{
		grid: grid,
		object: container.NewVBox(
			widget.NewCard("", "", grid),
			container.NewGridWithColumns(3, up, down, enter),
		),
	}
}

// Object returns the widget tree of the display and its buttons.
func (l *lcd) Object() fyne.CanvasObject { return l.object }

// Show implements menu.Display. It may be called from any goroutine.
func (l *lcd) Show(lines []string) error {
	text := strings.Join(lines, "\n")
	fyne.Do(func() { l.grid.SetText(text) })
	return nil
}
