package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gowater/pkg/fault"
)

func TestNew_Alpha(t *testing.T) {
	tests := []struct {
		name  string
		alpha float32
		ok    bool
	}{
		{"zero", 0, false},
		{"negative", -0.1, false},
		{"above one", 1.01, false},
		{"small", 0.01, true},
		{"default", DefaultAlpha, true},
		{"one", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.alpha)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.alpha, f.Alpha())
			} else {
				assert.ErrorIs(t, err, fault.ErrConfiguration)
				assert.Nil(t, f)
			}
		})
	}
}

func TestFilter_Smoothing(t *testing.T) {
	f, err := NewWithStart(0.5, 0)
	require.NoError(t, err)

	assert.InDelta(t, 50, f.Filter(100), 1e-4)
	assert.InDelta(t, 75, f.Filter(100), 1e-4)
	assert.InDelta(t, 75, f.Value(), 1e-4)
}

func TestFilter_AlphaOneTracksInput(t *testing.T) {
	f, err := NewWithStart(1, 10)
	require.NoError(t, err)

	for _, x := range []float32{3, 900, 42} {
		assert.Equal(t, x, f.Filter(x))
	}
}

func TestFilter_SeedsFromFirstInput(t *testing.T) {
	f, err := New(0.3)
	require.NoError(t, err)
	assert.False(t, f.Primed())

	assert.Equal(t, float32(600), f.Filter(600))
	assert.True(t, f.Primed())
	assert.InDelta(t, 0.3*300+0.7*600, f.Filter(300), 1e-3)

	f.Reset()
	assert.False(t, f.Primed())
	assert.Equal(t, float32(200), f.Filter(200))
}

func TestFilter_ConvergesToConstant(t *testing.T) {
	f, err := NewWithStart(0.3, 0)
	require.NoError(t, err)

	var v float32
	for i := 0; i < 100; i++ {
		v = f.Filter(512)
	}
	assert.InDelta(t, 512, v, 0.01)
}

func TestFilter_StaysWithinInputRange(t *testing.T) {
	f, err := New(0.2)
	require.NoError(t, err)

	inputs := []float32{400, 800, 100, 700, 300, 650}
	for _, x := range inputs {
		v := f.Filter(x)
		assert.GreaterOrEqual(t, v, float32(100))
		assert.LessOrEqual(t, v, float32(800))
	}
}

func TestNewWithStart_RejectsNonFinite(t *testing.T) {
	var zero float32
	_, err := NewWithStart(0.5, 1/zero)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestFilter_ZeroValuePanics(t *testing.T) {
	var f LowPass
	assert.PanicsWithError(t,
		"precondition violated: low-pass filter used before construction",
		func() { f.Filter(1) })

	func() {
		defer func() {
			err, ok := recover().(error)
			require.True(t, ok)
			var v *fault.Violation
			require.ErrorAs(t, err, &v)
			assert.ErrorIs(t, err, fault.ErrPrecondition)
		}()
		f.Value()
	}()

	var nilFilter *LowPass
	assert.Panics(t, func() { nilFilter.Value() })
	assert.False(t, nilFilter.Primed())
}
