// Package fault defines the error categories shared by the watering packages.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is wrapped by every error caused by invalid
	// construction arguments or configuration values.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrPrecondition is wrapped by errors and panics caused by calling an
	// operation in a state or with an argument it does not accept.
	ErrPrecondition = errors.New("precondition violated")
)

// Configf returns a configuration error with a formatted message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Preconditionf returns a precondition error with a formatted message.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// Violation is the panic value raised when a component is used before it
// was constructed.
type Violation struct {
	Msg string
}

func (v *Violation) Error() string {
	return "precondition violated: " + v.Msg
}

func (v *Violation) Unwrap() error {
	return ErrPrecondition
}

// Require panics with a *Violation if cond is false.
func Require(cond bool, msg string) {
	if !cond {
		panic(&Violation{Msg: msg})
	}
}
