// Command potsim is a desktop simulator: the watering loop runs against
// simulated soil and the front panel, charts and probes are shown in a Fyne
// window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gowater/pkg/board"
	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/garden"
	"github.com/itohio/gowater/pkg/hal/sim"
	"github.com/itohio/gowater/pkg/history"
	"github.com/itohio/gowater/pkg/menu"
	"github.com/itohio/gowater/pkg/scope"
)

// uiRefresh is how often the panel and pot controls are redrawn.
const uiRefresh = 200 * time.Millisecond

func main() {
	var (
		configFlag  = flag.String("config", "gowater.yaml", "Configuration file path (.yaml or .toml)")
		envFlag     = flag.String("env", ".env", "Environment file with GOWATER_* overrides")
		speedupFlag = flag.Float64("speedup", 0, "Simulation speed-up override (e.g. 60 for a minute per second)")
	)
	flag.Parse()

	if err := config.LoadEnv(*envFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFlag, err)
		os.Exit(2)
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	cfg.Board.Type = config.BoardSim
	if *speedupFlag > 0 {
		cfg.Board.Sim.Speedup = *speedupFlag
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

	application := app.NewWithID("com.itohio.gowater")
	window := application.NewWindow("Plant Watering Simulator")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:     cfg,
		cfgPath: *configFlag,
		log:     log,
		window:  window,
	}
	state.lcd = newLCD(state)

	toolbar := createToolbar(state)
	state.potBox = container.NewVBox()
	state.scopeBox = container.NewVBox()

	left := container.NewVBox(state.lcd.Object(), widget.NewSeparator(), state.potBox)
	content := container.NewBorder(
		toolbar,
		nil,
		container.NewVScroll(left),
		nil,
		container.NewVScroll(state.scopeBox),
	)
	window.SetContent(content)
	window.SetOnClosed(state.stop)

	if err := state.start(); err != nil {
		dialog.ShowError(err, window)
	}
	window.ShowAndRun()
}

// appState holds the application state. The simulation part is rebuilt by
// start after settings change.
type appState struct {
	cfg     *config.Config
	cfgPath string
	log     *slog.Logger
	window  fyne.Window

	lcd      *lcd
	potBox   *fyne.Container
	scopeBox *fyne.Container
	runBtn   *widget.Button

	mu       sync.Mutex
	board    *sim.Board
	garden   *garden.Garden
	recorder *history.Recorder
	panel    *menu.Panel
	scopes   []*scope.ScopeWidget
	controls []*potControls
	cancel   context.CancelFunc
	done     chan struct{}
}

// createToolbar creates the toolbar with Run/Stop and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	runBtn := widget.NewButtonWithIcon("", theme.MediaPauseIcon(), func() {
		if state.running() {
			state.stop()
			return
		}
		if err := state.start(); err != nil {
			dialog.ShowError(err, state.window)
		}
	})
	state.runBtn = runBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewBorder(nil, nil, container.NewHBox(runBtn, settingsBtn), nil, nil)
}

func (s *appState) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// start builds a fresh simulated board and garden from cfg and runs the loop.
func (s *appState) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	b, err := sim.New(s.cfg.Board.Sim, board.Wiring(s.cfg.Pots))
	if err != nil {
		return err
	}
	g, err := garden.New(b, s.cfg.Pots, s.log)
	if err != nil {
		b.Close()
		return err
	}
	rec, err := history.New(g.Len(), s.cfg.History.Window.D(), s.cfg.History.Resolution.D())
	if err != nil {
		b.Close()
		return err
	}
	rec.Attach(g)
	panel, err := menu.NewPanel(g.Pots(), s.cfg.Display.Rows, s.cfg.Display.Cols, s.lcd)
	if err != nil {
		b.Close()
		return err
	}
	g.OnTransition(func(ev garden.Event) {
		s.log.Info("transition", "pot", ev.Pot, "from", ev.From, "to", ev.To, "reason", ev.Reason)
	})

	s.board, s.garden, s.recorder, s.panel = b, g, rec, panel
	s.buildPotViews()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := g.Run(ctx, s.cfg.Loop.Poll.D()); err != nil {
			s.log.Warn("garden stopped with error", "err", err)
		}
	}(s.done)
	go s.refreshLoop(ctx, panel)

	s.runBtn.SetIcon(theme.MediaPauseIcon())
	return nil
}

// stop halts the loop, switching every motor off, and closes the board.
func (s *appState) stop() {
	s.mu.Lock()
	cancel, done, b := s.cancel, s.done, s.board
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	if err := b.Close(); err != nil {
		s.log.Warn("closing board", "err", err)
	}
	s.runBtn.SetIcon(theme.MediaPlayIcon())
}

// restart applies a changed configuration.
func (s *appState) restart() error {
	s.stop()
	return s.start()
}

// buildPotViews recreates the per-pot controls and charts. Called with mu held.
func (s *appState) buildPotViews() {
	s.potBox.RemoveAll()
	s.scopeBox.RemoveAll()
	s.controls = s.controls[:0]
	s.scopes = s.scopes[:0]

	for slot, p := range s.garden.Pots() {
		pc := s.cfg.Pots[slot]
		ctl := newPotControls(s.window, s.board, slot, p, pc)
		s.controls = append(s.controls, ctl)
		s.potBox.Add(ctl.Object())

		sc := scope.New(fmt.Sprintf("P%d %s", slot+1, p.Name()), s.recorder.Window())
		s.scopes = append(s.scopes, sc)
		s.scopeBox.Add(sc)
	}

	scopes := append([]*scope.ScopeWidget(nil), s.scopes...)
	b := s.board
	s.recorder.OnUpdate(newThrottle(uiRefresh, func(slot int, readings []history.Reading, spans []history.Span) {
		now := b.Now()
		fyne.Do(func() {
			if slot < len(scopes) {
				scopes[slot].UpdateData(readings, spans, now)
			}
		})
	}))
}

// refreshLoop redraws the front panel and pot controls until ctx is done.
func (s *appState) refreshLoop(ctx context.Context, panel *menu.Panel) {
	ticker := time.NewTicker(uiRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := panel.Refresh(); err != nil {
			s.log.Warn("panel refresh", "err", err)
		}
		s.mu.Lock()
		controls := append([]*potControls(nil), s.controls...)
		s.mu.Unlock()
		fyne.Do(func() {
			for _, c := range controls {
				c.update()
			}
		})
	}
}

// handleKey forwards a front panel button to the active panel and redraws.
func (s *appState) handleKey(ev menu.Event) {
	s.mu.Lock()
	panel := s.panel
	s.mu.Unlock()
	if panel == nil {
		return
	}
	panel.Handle(ev)
	if _, err := panel.Refresh(); err != nil {
		s.log.Warn("panel refresh", "err", err)
	}
}
