package main

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/hal/sim"
	"github.com/itohio/gowater/pkg/pot"
)

// potControls lets the user play with the simulated soil of one pot and shows
// what the controller does with it.
type potControls struct {
	board     *sim.Board
	pot       *pot.Pot
	sensorPin hal.Pin

	status   *widget.Label
	soil     *widget.Slider
	motorBtn *widget.Button
	ledBtn   *widget.Button
	object   fyne.CanvasObject
}

func newPotControls(window fyne.Window, b *sim.Board, slot int, p *pot.Pot, pc config.PotConfig) *potControls {
	c := &potControls{
		board:     b,
		pot:       p,
		sensorPin: hal.Pin(pc.SensorPin),
		status:    widget.NewLabel(""),
	}

	c.soil = widget.NewSlider(0, 100)
	c.soil.Step = 1
	if m, ok := b.Moisture(c.sensorPin); ok {
		c.soil.SetValue(m)
	}
	c.soil.OnChangeEnded = func(v float64) {
		b.SetMoisture(c.sensorPin, v)
	}

	disconnect := widget.NewCheck("Probe disconnected", func(on bool) {
		b.Disconnect(c.sensorPin, on)
	})

	// The motor button only mirrors the pin. The fault button also clears a
	// latched fault.
	c.motorBtn = widget.NewButtonWithIcon("Motor", theme.MediaPlayIcon(), nil)
	c.ledBtn = widget.NewButtonWithIcon("Fault", theme.ErrorIcon(), func() {
		if err := p.Reset(); err != nil {
			dialog.ShowError(fmt.Errorf("reset %s: %w", p.Name(), err), window)
		}
	})

	title := widget.NewLabelWithStyle(fmt.Sprintf("P%d %s", slot+1, p.Name()), fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	c.object = container.NewVBox(
		container.NewBorder(nil, nil, title, container.NewHBox(c.motorBtn, c.ledBtn), nil),
		c.status,
		container.NewBorder(nil, nil, widget.NewLabel("Soil"), nil, c.soil),
		disconnect,
		widget.NewSeparator(),
	)
	c.update()
	return c
}

// Object returns the widget tree.
func (c *potControls) Object() fyne.CanvasObject { return c.object }

// update refreshes the indicators. Must run on the Fyne goroutine.
func (c *potControls) update() {
	s := c.pot.Sensor()
	soil, _ := c.board.Moisture(c.sensorPin)
	c.status.SetText(fmt.Sprintf("%s  probe %.0f%%  soil %.0f%%  thr %d%%",
		c.pot.State(), s.Percentage(), soil, s.Threshold()))

	setIndicator(c.motorBtn, c.pot.MotorOn(), widget.HighImportance)
	setIndicator(c.ledBtn, c.pot.ErrorLED(), widget.DangerImportance)
}

// setIndicator updates a single indicator button's visual state.
func setIndicator(btn *widget.Button, on bool, active widget.Importance) {
	want := widget.LowImportance
	if on {
		want = active
	}
	if btn.Importance == want {
		return
	}
	btn.Importance = want
	btn.Refresh()
}
