package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/garden"
	"github.com/itohio/gowater/pkg/hal/fake"
	"github.com/itohio/gowater/pkg/pot"
)

func TestObserve(t *testing.T) {
	c := New(nil)
	c.Observe([]garden.Reading{
		{Slot: 0, Pot: "basil", Raw: 550, Percent: 50, Threshold: 40, Sampled: true, State: pot.Watering},
		{Slot: 1, Pot: "mint", Threshold: 30, State: pot.Idle},
	})

	assert.Equal(t, 50.0, testutil.ToFloat64(c.moisture.WithLabelValues("basil")))
	assert.Equal(t, 550.0, testutil.ToFloat64(c.raw.WithLabelValues("basil")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.threshold.WithLabelValues("basil")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("basil", "watering")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("basil", "idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("mint", "idle")))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.threshold.WithLabelValues("mint")))

	// Unsampled pots export no moisture yet.
	assert.Equal(t, 1, testutil.CollectAndCount(c.moisture))
}

func TestTransition(t *testing.T) {
	c := New(nil)
	for _, to := range []pot.State{pot.Watering, pot.Waiting, pot.Idle, pot.Watering, pot.MinWaterIntervalError} {
		c.Transition(garden.Event{Slot: 0, Transition: pot.Transition{Pot: "basil", To: to}})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cycles.WithLabelValues("basil")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.faults.WithLabelValues("basil")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("basil", "watering")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("basil", "min_water_interval_error")))
}

func TestAttach(t *testing.T) {
	b := fake.New(1)
	b.SetAnalog(0, 800)

	pc := config.DefaultPot("basil", 0, 10, nil)
	pc.FilterAlpha = 1
	pc.RelaySettle = 0
	g, err := garden.New(b, []config.PotConfig{pc}, nil)
	require.NoError(t, err)

	c := New(nil)
	c.Attach(g)
	g.Step()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("basil")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("basil", "watering")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.moisture.WithLabelValues("basil")))
}

func TestWriteTextfile(t *testing.T) {
	c := New(nil)
	c.Observe([]garden.Reading{{Pot: "basil", Percent: 42, Sampled: true}})

	path := filepath.Join(t.TempDir(), "gowater.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gowater_moisture_percent{pot="basil"} 42`)
	assert.Contains(t, string(data), "# TYPE gowater_pot_state gauge")

	err = c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	c := New(nil)
	path := filepath.Join(t.TempDir(), "gowater.prom")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, path, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.FileExists(t, path)

	assert.NoError(t, c.Run(context.Background(), "", time.Second))
}
