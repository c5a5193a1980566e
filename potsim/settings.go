package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gowater/pkg/config"
)

// showSettingsDialog displays a settings dialog with one tab per pot plus the
// simulation parameters. Each tab edits a private copy and on submit merges
// only its own section into the current configuration, which is then
// validated, saved and used to restart the simulation.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(createSimTab(state))
	for slot := range state.cfg.Pots {
		tabs.Append(createPotTab(state, slot))
	}

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// cloneConfig returns a copy of cfg that can be edited without touching the
// running configuration.
func cloneConfig(cfg *config.Config) *config.Config {
	next := *cfg
	next.Pots = slices.Clone(cfg.Pots)
	for i := range next.Pots {
		if d := next.Pots[i].SoakTime; d != nil {
			v := *d
			next.Pots[i].SoakTime = &v
		}
	}
	return &next
}

// applyConfig validates next, saves it and restarts the simulation with it.
func applyConfig(state *appState, next *config.Config) {
	if err := next.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := next.Save(state.cfgPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	state.cfg = next
	if err := state.restart(); err != nil {
		dialog.ShowError(err, state.window)
	}
}

// field is a form entry bound to a config value.
type field struct {
	label string
	entry *widget.Entry
	parse func(string) error
}

func formItems(fields []field) []*widget.FormItem {
	items := make([]*widget.FormItem, len(fields))
	for i, f := range fields {
		items[i] = &widget.FormItem{Text: f.label, Widget: f.entry}
	}
	return items
}

// parseFields parses every field and reports all failures at once.
func parseFields(fields []field) error {
	var errs []error
	for _, f := range fields {
		if err := f.parse(f.entry.Text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.label, err))
		}
	}
	return errors.Join(errs...)
}

func floatField(label string, v *float64) field {
	e := widget.NewEntry()
	e.SetText(strconv.FormatFloat(*v, 'f', -1, 64))
	return field{label, e, func(s string) error {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*v = f
		return nil
	}}
}

func percentField(label string, v *uint8) field {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(int(*v)))
	return field{label, e, func(s string) error {
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return err
		}
		*v = uint8(n)
		return nil
	}}
}

func rawField(label string, v *uint16) field {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(int(*v)))
	return field{label, e, func(s string) error {
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return err
		}
		*v = uint16(n)
		return nil
	}}
}

// durationField accepts Go ("30m") and ISO 8601 ("PT30M") durations.
func durationField(label string, v *config.Duration) field {
	e := widget.NewEntry()
	e.SetText(v.String())
	return field{label, e, func(s string) error {
		d, err := config.ParseDuration(s)
		if err != nil {
			return err
		}
		*v = d
		return nil
	}}
}

// createSimTab creates the Simulation configuration tab.
func createSimTab(state *appState) *container.TabItem {
	next := cloneConfig(state.cfg)
	sc := &next.Board.Sim
	fields := []field{
		floatField("Speed-up", &sc.Speedup),
		floatField("Initial moisture (%)", &sc.InitialMoisture),
		floatField("Drying (%/h)", &sc.DryingPerHour),
		floatField("Wetting (%/s)", &sc.WettingPerSec),
		floatField("Noise (counts)", &sc.Noise),
		rawField("Dry reading", &sc.DryRaw),
		rawField("Wet reading", &sc.WetRaw),
		durationField("Loop poll", &next.Loop.Poll),
	}

	form := &widget.Form{
		Items: formItems(fields),
		OnSubmit: func() {
			if err := parseFields(fields); err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			fresh := cloneConfig(state.cfg)
			fresh.Board.Sim = *sc
			fresh.Loop = next.Loop
			applyConfig(state, fresh)
		},
	}
	return container.NewTabItem("Simulation", form)
}

// createPotTab creates the configuration tab of one pot.
func createPotTab(state *appState, slot int) *container.TabItem {
	next := cloneConfig(state.cfg)
	pc := &next.Pots[slot]
	if pc.SoakTime == nil {
		soak := config.Duration(pc.Controller().SoakTime)
		pc.SoakTime = &soak
	}

	invert := widget.NewCheck("", nil)
	invert.SetChecked(pc.Invert)

	fields := []field{
		percentField("Threshold (%)", &pc.Threshold),
		rawField("Min range", &pc.MinRange),
		rawField("Max range", &pc.MaxRange),
		percentField("Intensity (%)", &pc.Intensity),
		durationField("Watering time", &pc.WateringTime),
		durationField("Soak time", pc.SoakTime),
		durationField("Min water interval", &pc.MinWaterInterval),
	}

	items := formItems(fields)
	items = append(items, &widget.FormItem{Text: "Inverted", Widget: invert})
	form := &widget.Form{
		Items: items,
		OnSubmit: func() {
			if err := parseFields(fields); err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			pc.Invert = invert.Checked
			fresh := cloneConfig(state.cfg)
			fresh.Pots[slot] = *pc
			applyConfig(state, fresh)
		},
	}
	return container.NewTabItem(fmt.Sprintf("P%d %s", slot+1, pc.Name), form)
}
