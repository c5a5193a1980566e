// Package bridge drives a microcontroller running the gowater bridge firmware
// over a serial port. The MCU owns the pins; the host sends one ASCII command
// per line and waits for the reply:
//
//	W <pin> <0|1>   ->  OK
//	R <pin>         ->  V <pin> <value>
//	P               ->  PONG
//
// Any command may be answered with "ERR <text>".
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.bug.st/serial"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/hal/bridge/wire"
)

const (
	// DefaultBaudRate is the baud rate the firmware listens on.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds the wait for a reply.
	DefaultTimeout = 500 * time.Millisecond
)

var (
	// ErrTimeout is returned when the MCU does not answer in time.
	ErrTimeout = errors.New("bridge: reply timeout")
	// ErrClosed is returned after the link is closed or lost.
	ErrClosed = errors.New("bridge: link closed")
	// ErrLinkDown is returned while the circuit breaker is open.
	ErrLinkDown = errors.New("bridge: link down")
)

// DeviceError is an "ERR" reply from the firmware.
type DeviceError struct {
	Cmd string
	Msg string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("bridge: %q rejected: %s", e.Cmd, e.Msg)
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Board is a hal.Board backed by the bridge firmware. Time is kept by the
// host.
type Board struct {
	*hal.SystemClock

	timeout time.Duration
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker

	mu     sync.Mutex // serializes commands
	conn   io.ReadWriteCloser
	lines  chan string
	ctx    context.Context
	cancel context.CancelFunc
}

var _ hal.Board = (*Board)(nil)

// Open opens the serial port, retrying with exponential backoff until
// cfg.OpenTimeout passes or ctx is cancelled, and checks that the firmware
// answers.
func Open(ctx context.Context, cfg config.SerialConfig, log *slog.Logger) (*Board, error) {
	if log == nil {
		log = slog.Default()
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaudRate
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 250 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = cfg.OpenTimeout.D()

	var port serial.Port
	open := func() error {
		p, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
		if err != nil {
			var perr *serial.PortError
			if errors.As(err, &perr) && perr.Code() == serial.InvalidSerialPort {
				return backoff.Permanent(err)
			}
			return err
		}
		port = p
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Warn("serial port not ready", "port", cfg.Port, "retry_in", next, "err", err)
	}
	if err := backoff.RetryNotify(open, backoff.WithContext(eb, ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	b := newBoard(port, cfg.Port, cfg.Timeout.D(), log)
	if err := b.Ping(); err != nil {
		b.Close()
		return nil, fmt.Errorf("bridge on %s not responding: %w", cfg.Port, err)
	}
	log.Info("bridge connected", "port", cfg.Port, "baud", baud)
	return b, nil
}

func newBoard(conn io.ReadWriteCloser, name string, timeout time.Duration, log *slog.Logger) *Board {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Board{
		SystemClock: hal.NewSystemClock(),
		timeout:     timeout,
		log:         log,
		conn:        conn,
		lines:       make(chan string, 16),
		ctx:         ctx,
		cancel:      cancel,
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bridge " + name,
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("bridge link state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	go b.readLines()
	return b
}

// readLines feeds non-empty lines from the port into b.lines until the port
// fails or the board is closed.
func (b *Board) readLines() {
	defer close(b.lines)

	scanner := bufio.NewScanner(b.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case b.lines <- line:
		case <-b.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && b.ctx.Err() == nil {
		b.log.Error("serial read failed", "err", err)
	}
}

// Do sends cmd and returns the reply line. Link failures trip the circuit
// breaker; firmware "ERR" replies are returned as *DeviceError and do not.
func (b *Board) Do(cmd string) (string, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.roundTrip(cmd)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrLinkDown, err)
	}
	if err != nil {
		return "", err
	}
	reply := res.(string)
	if msg, ok := wire.IsError(reply); ok {
		return "", &DeviceError{Cmd: cmd, Msg: msg}
	}
	return reply, nil
}

func (b *Board) roundTrip(cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return "", ErrClosed
	}

	// Drop late replies to commands that already timed out.
	for drained := false; !drained; {
		select {
		case _, ok := <-b.lines:
			if !ok {
				return "", ErrClosed
			}
		default:
			drained = true
		}
	}

	if _, err := io.WriteString(b.conn, cmd+"\n"); err != nil {
		return "", fmt.Errorf("bridge: write %q: %w", cmd, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case line, ok := <-b.lines:
		if !ok {
			return "", ErrClosed
		}
		return line, nil
	case <-timer.C:
		return "", fmt.Errorf("%w after %q", ErrTimeout, cmd)
	case <-b.ctx.Done():
		return "", ErrClosed
	}
}

// Ping checks that the firmware answers.
func (b *Board) Ping() error {
	reply, err := b.Do(wire.Command{Op: wire.OpPing}.String())
	if err != nil {
		return err
	}
	if reply != wire.ReplyPong {
		return fmt.Errorf("bridge: unexpected ping reply %q", reply)
	}
	return nil
}

// SetPin drives a digital output on the MCU.
func (b *Board) SetPin(pin hal.Pin, high bool) error {
	reply, err := b.Do(wire.Command{Op: wire.OpWrite, Pin: uint8(pin), High: high}.String())
	if err != nil {
		return err
	}
	if reply != wire.ReplyOK {
		return fmt.Errorf("bridge: unexpected reply %q to write of pin %d", reply, pin)
	}
	return nil
}

// ReadAnalog samples an analog input on the MCU.
func (b *Board) ReadAnalog(pin hal.Pin) (uint16, error) {
	reply, err := b.Do(wire.Command{Op: wire.OpRead, Pin: uint8(pin)}.String())
	if err != nil {
		return 0, err
	}
	v, err := wire.ParseValue(reply, uint8(pin))
	if err != nil {
		return 0, fmt.Errorf("bridge: %w", err)
	}
	return v, nil
}

// Close closes the port. The firmware switches its outputs off once the host
// goes quiet.
func (b *Board) Close() error {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}
