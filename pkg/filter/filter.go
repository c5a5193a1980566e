// Package filter implements the exponential smoothing used on sensor readings.
package filter

import (
	"github.com/chewxy/math32"

	"github.com/itohio/gowater/pkg/fault"
)

// DefaultAlpha is the smoothing factor used when none is configured.
const DefaultAlpha float32 = 0.3

// LowPass is a single-pole exponential low-pass filter:
//
//	estimate = alpha*x + (1-alpha)*estimate
//
// A LowPass must be created with New or NewWithStart.
type LowPass struct {
	alpha    float32
	estimate float32
	primed   bool
	ok       bool
}

// New returns a filter that seeds its estimate with the first input.
func New(alpha float32) (*LowPass, error) {
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}
	return &LowPass{alpha: alpha, ok: true}, nil
}

// NewWithStart returns a filter whose estimate starts at start.
func NewWithStart(alpha, start float32) (*LowPass, error) {
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}
	if math32.IsNaN(start) || math32.IsInf(start, 0) {
		return nil, fault.Configf("filter start value %v is not finite", start)
	}
	return &LowPass{alpha: alpha, estimate: start, primed: true, ok: true}, nil
}

func validateAlpha(alpha float32) error {
	if math32.IsNaN(alpha) || alpha <= 0 || alpha > 1 {
		return fault.Configf("filter alpha %v outside (0,1]", alpha)
	}
	return nil
}

// Filter folds x into the estimate and returns the new estimate.
func (f *LowPass) Filter(x float32) float32 {
	fault.Require(f != nil && f.ok, "low-pass filter used before construction")
	if !f.primed {
		f.estimate = x
		f.primed = true
		return f.estimate
	}
	f.estimate = f.alpha*x + (1-f.alpha)*f.estimate
	return f.estimate
}

// Value returns the current estimate without changing it.
func (f *LowPass) Value() float32 {
	fault.Require(f != nil && f.ok, "low-pass filter used before construction")
	return f.estimate
}

// Alpha returns the smoothing factor.
func (f *LowPass) Alpha() float32 {
	fault.Require(f != nil && f.ok, "low-pass filter used before construction")
	return f.alpha
}

// Primed reports whether the estimate holds a real value.
func (f *LowPass) Primed() bool {
	return f != nil && f.primed
}

// Reset forgets the estimate. The next input seeds it again.
func (f *LowPass) Reset() {
	fault.Require(f != nil && f.ok, "low-pass filter used before construction")
	f.estimate = 0
	f.primed = false
}
