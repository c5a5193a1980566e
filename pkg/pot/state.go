package pot

import "fmt"

// State is the watering controller state.
type State int

const (
	// Idle waits for the soil to dry out.
	Idle State = iota
	// Watering has the motor running.
	Watering
	// Waiting lets water soak in before the soil is checked again.
	Waiting
	// MinWaterIntervalError is latched when the probe asks for water again
	// sooner than the minimum interval allows. Only Reset leaves it.
	MinWaterIntervalError
)

// States lists every state in declaration order.
var States = []State{Idle, Watering, Waiting, MinWaterIntervalError}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watering:
		return "watering"
	case Waiting:
		return "waiting"
	case MinWaterIntervalError:
		return "min_water_interval_error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Fault reports whether s is a latched fault.
func (s State) Fault() bool {
	return s == MinWaterIntervalError
}
