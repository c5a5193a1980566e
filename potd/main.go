// Command potd runs the watering loop headless against the configured board.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/itohio/gowater/pkg/board"
	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/garden"
	"github.com/itohio/gowater/pkg/hal/bridge"
	"github.com/itohio/gowater/pkg/menu"
	"github.com/itohio/gowater/pkg/metrics"
)

func main() {
	var (
		configFlag  = flag.String("config", "gowater.yaml", "Configuration file path (.yaml or .toml)")
		envFlag     = flag.String("env", ".env", "Environment file with GOWATER_* overrides")
		boardFlag   = flag.String("board", "", "Board override: sim, serial or periph")
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		metricsFlag = flag.String("metrics", "", "Prometheus textfile path override")
		levelFlag   = flag.String("log-level", "", "Log level override")
		lcdFlag     = flag.Bool("lcd", false, "Draw the front panel on stdout and read u/d/e commands from stdin")
		listFlag    = flag.Bool("list-ports", false, "List serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		if err := listPorts(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := config.LoadEnv(*envFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFlag, err)
		os.Exit(2)
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	if *boardFlag != "" {
		cfg.Board.Type = *boardFlag
	}
	if *portFlag != "" {
		cfg.Board.Serial.Port = *portFlag
	}
	if *metricsFlag != "" {
		cfg.Metrics.Textfile = *metricsFlag
	}
	if *levelFlag != "" {
		cfg.Log.Level = *levelFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	log, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *lcdFlag); err != nil {
		log.Error("potd failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, lcd bool) error {
	b, err := board.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("closing board", "err", err)
		}
	}()

	g, err := garden.New(b, cfg.Pots, log)
	if err != nil {
		return err
	}
	g.OnTransition(func(ev garden.Event) {
		log.Info("transition", "slot", ev.Slot, "pot", ev.Pot, "from", ev.From, "to", ev.To, "reason", ev.Reason, "cycle", ev.Cycle)
	})

	collector := metrics.New(log)
	collector.Attach(g)

	var wg sync.WaitGroup
	if cfg.Metrics.Textfile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := collector.Run(ctx, cfg.Metrics.Textfile, cfg.Metrics.Interval.D()); err != nil {
				log.Warn("final metrics export", "err", err)
			}
		}()
	}

	if lcd {
		panel, err := menu.NewPanel(g.Pots(), cfg.Display.Rows, cfg.Display.Cols, menu.TextDisplay{W: os.Stdout})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			drivePanel(ctx, panel, os.Stdin, log)
		}()
	}

	err = g.Run(ctx, cfg.Loop.Poll.D())
	wg.Wait()
	return err
}

// drivePanel refreshes the panel a few times a second and feeds it key
// commands read from in.
func drivePanel(ctx context.Context, panel *menu.Panel, in io.Reader, log *slog.Logger) {
	events := make(chan menu.Event)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			ev, ok := parseKey(sc.Text())
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			panel.Handle(ev)
		case <-ticker.C:
		}
		if _, err := panel.Refresh(); err != nil {
			log.Warn("panel refresh", "err", err)
		}
	}
}

func parseKey(s string) (menu.Event, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u", "up", "k":
		return menu.Up, true
	case "d", "down", "j":
		return menu.Down, true
	case "e", "enter", "":
		return menu.Enter, true
	}
	return 0, false
}

func listPorts(w io.Writer) error {
	ports, err := bridge.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		return errors.New("no serial ports found")
	}
	for _, p := range ports {
		fmt.Fprintln(w, p.Name)
	}
	return nil
}
