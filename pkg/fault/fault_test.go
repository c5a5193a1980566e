package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigf(t *testing.T) {
	err := Configf("intensity %d out of range", 120)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "intensity 120 out of range")
}

func TestPreconditionf(t *testing.T) {
	err := Preconditionf("threshold %d", 0)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.False(t, errors.Is(err, ErrConfiguration))
}

func TestRequire(t *testing.T) {
	assert.NotPanics(t, func() { Require(true, "ok") })

	defer func() {
		r := recover()
		v, ok := r.(*Violation)
		if assert.True(t, ok, "expected *Violation, got %T", r) {
			assert.ErrorIs(t, v, ErrPrecondition)
			assert.Equal(t, "precondition violated: filter not constructed", v.Error())
		}
	}()
	Require(false, "filter not constructed")
}
