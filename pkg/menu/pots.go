package menu

import (
	"fmt"
	"math"

	"github.com/itohio/gowater/pkg/pot"
)

// PotMenu builds the settings tree for pots: one list per pot with its
// threshold and calibration bounds, a status page and a fault reset entry.
func PotMenu(pots []*pot.Pot) *List {
	root := NewList("Settings")
	for slot, p := range pots {
		root.Items = append(root.Items, potList(slot, p))
	}
	return root
}

func potList(slot int, p *pot.Pot) *List {
	s := p.Sensor()
	return NewList(fmt.Sprintf("P%d %s", slot+1, p.Name()),
		&Text{
			Title: "Status",
			Body: func() []string {
				return []string{
					fmt.Sprintf("%s %d%%", p.State(), int(s.Percentage())),
					fmt.Sprintf("raw %d", int(s.RawValue())),
				}
			},
		},
		&EditField{
			Format: "Thr: %d%%",
			Get:    func() int { return int(s.Threshold()) },
			Set:    func(v int) error { return s.SetThreshold(uint8(v)) },
			Step:   1,
			Min:    1,
			Max:    99,
		},
		&EditField{
			Format: "Min: %d",
			Get:    func() int { return int(s.MinRange()) },
			Set:    func(v int) error { return s.SetCalibration(uint16(v), s.MaxRange()) },
			Step:   10,
			Min:    0,
			Max:    math.MaxUint16,
		},
		&EditField{
			Format: "Max: %d",
			Get:    func() int { return int(s.MaxRange()) },
			Set:    func(v int) error { return s.SetCalibration(s.MinRange(), uint16(v)) },
			Step:   10,
			Min:    0,
			Max:    math.MaxUint16,
		},
		resetEntry(p),
	)
}

// resetEntry clears a latched fault when opened. A failed output write is
// kept and shown until the next successful reset.
func resetEntry(p *pot.Pot) *Text {
	var err error
	return &Text{
		Title: "Reset fault",
		Body: func() []string {
			if err != nil {
				return []string{"reset failed", err.Error()}
			}
			return []string{p.State().String()}
		},
		OnEnter: func() {
			if p.State().Fault() {
				err = p.Reset()
			}
		},
	}
}
