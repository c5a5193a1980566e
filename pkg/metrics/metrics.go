// Package metrics exports pot readings and controller activity in the
// Prometheus text format. There is no HTTP listener; the collector writes a
// node_exporter textfile.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/itohio/gowater/pkg/garden"
	"github.com/itohio/gowater/pkg/pot"
)

const namespace = "gowater"

// Collector owns a private registry so that library users do not see the
// process-wide default collectors.
type Collector struct {
	registry *prometheus.Registry
	log      *slog.Logger

	moisture    *prometheus.GaugeVec
	raw         *prometheus.GaugeVec
	state       *prometheus.GaugeVec
	threshold   *prometheus.GaugeVec
	cycles      *prometheus.CounterVec
	faults      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// New creates a collector with every metric registered.
func New(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		log:      log,
		moisture: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_percent",
			Help:      "Filtered soil moisture in percent.",
		}, []string{"pot"}),
		raw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_raw",
			Help:      "Filtered raw ADC reading of the moisture probe.",
		}, []string{"pot"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pot_state",
			Help:      "1 for the current controller state of the pot, 0 otherwise.",
		}, []string{"pot", "state"}),
		threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_percent",
			Help:      "Moisture trigger threshold in percent.",
		}, []string{"pot"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watering_cycles_total",
			Help:      "Number of started waterings.",
		}, []string{"pot"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Number of times the pot latched the minimum water interval fault.",
		}, []string{"pot"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Controller state transitions by target state.",
		}, []string{"pot", "to"}),
	}
	c.registry.MustRegister(c.moisture, c.raw, c.state, c.threshold, c.cycles, c.faults, c.transitions)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Attach subscribes the collector to the garden's steps and transitions.
func (c *Collector) Attach(g *garden.Garden) {
	g.OnStep(c.Observe)
	g.OnTransition(c.Transition)
}

// Observe updates the gauges from a garden snapshot.
func (c *Collector) Observe(snap []garden.Reading) {
	for _, r := range snap {
		if r.Sampled {
			c.moisture.WithLabelValues(r.Pot).Set(float64(r.Percent))
			c.raw.WithLabelValues(r.Pot).Set(float64(r.Raw))
		}
		c.threshold.WithLabelValues(r.Pot).Set(float64(r.Threshold))
		for _, s := range pot.States {
			v := 0.0
			if s == r.State {
				v = 1
			}
			c.state.WithLabelValues(r.Pot, s.String()).Set(v)
		}
	}
}

// Transition counts a controller transition.
func (c *Collector) Transition(ev garden.Event) {
	c.transitions.WithLabelValues(ev.Pot, ev.To.String()).Inc()
	switch ev.To {
	case pot.Watering:
		c.cycles.WithLabelValues(ev.Pot).Inc()
	case pot.MinWaterIntervalError:
		c.faults.WithLabelValues(ev.Pot).Inc()
	}
}

// WriteTextfile writes all metrics to path. The registry is rendered to a
// temporary file that is then renamed over path, so readers never see a
// partial file.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

// Run writes the textfile every interval until ctx is done, and once more on
// the way out. Write errors are logged and do not stop the loop.
func (c *Collector) Run(ctx context.Context, path string, interval time.Duration) error {
	if path == "" {
		return nil
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Info("metrics textfile export", "path", path, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return c.WriteTextfile(path)
		case <-ticker.C:
			if err := c.WriteTextfile(path); err != nil {
				c.log.Warn("metrics export failed", "err", err)
			}
		}
	}
}
