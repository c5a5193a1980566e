package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/gowater/pkg/hal"
)

func TestAxis(t *testing.T) {
	a := axis{x: 10, y: 20, w: 100, h: 50, start: 1000, end: 2000}

	assert.Equal(t, float32(10), a.px(1000))
	assert.Equal(t, float32(60), a.px(1500))
	assert.Equal(t, float32(110), a.px(2000))
	// Outside the window is pinned to the edges.
	assert.Equal(t, float32(10), a.px(1))
	assert.Equal(t, float32(110), a.px(5000))

	assert.Equal(t, float32(70), a.py(0))
	assert.Equal(t, float32(20), a.py(100))
	assert.Equal(t, float32(45), a.py(50))
	assert.Equal(t, float32(70), a.py(-5))

	empty := axis{x: 10, w: 100, start: hal.TimePoint(5), end: hal.TimePoint(5)}
	assert.Equal(t, float32(110), empty.px(5))
}

func TestFormatAgo(t *testing.T) {
	for _, tc := range []struct {
		d    time.Duration
		want string
	}{
		{0, "now"},
		{30 * time.Second, "-30s"},
		{10 * time.Minute, "-10m"},
		{time.Hour, "-1h"},
		{90 * time.Minute, "-1.5h"},
	} {
		assert.Equal(t, tc.want, formatAgo(tc.d), tc.d.String())
	}
}
