package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMCU answers bridge commands on one end of a pipe.
type fakeMCU struct {
	mu      sync.Mutex
	pins    map[string]string
	analog  map[string]string
	silent  bool
	history []string
}

func (m *fakeMCU) serve(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := scanner.Text()
		m.mu.Lock()
		m.history = append(m.history, cmd)
		silent := m.silent
		reply := m.reply(cmd)
		m.mu.Unlock()
		if silent {
			continue
		}
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

func (m *fakeMCU) reply(cmd string) string {
	f := strings.Fields(cmd)
	switch {
	case len(f) == 1 && f[0] == "P":
		return "PONG"
	case len(f) == 3 && f[0] == "W":
		if f[1] == "99" {
			return "ERR bad pin"
		}
		m.pins[f[1]] = f[2]
		return "OK"
	case len(f) == 2 && f[0] == "R":
		v, ok := m.analog[f[1]]
		if !ok {
			return "ERR no adc"
		}
		return "V " + f[1] + " " + v
	}
	return "ERR unknown"
}

func (m *fakeMCU) setSilent(v bool) {
	m.mu.Lock()
	m.silent = v
	m.mu.Unlock()
}

func newTestBoard(t *testing.T) (*Board, *fakeMCU) {
	t.Helper()
	host, dev := net.Pipe()
	mcu := &fakeMCU{
		pins:   make(map[string]string),
		analog: map[string]string{"0": "512", "1": "1023"},
	}
	go mcu.serve(dev)
	t.Cleanup(func() { dev.Close() })

	b := newBoard(host, "pipe", 50*time.Millisecond, slog.Default())
	t.Cleanup(func() { b.Close() })
	return b, mcu
}

func TestBoard_Commands(t *testing.T) {
	b, mcu := newTestBoard(t)

	require.NoError(t, b.Ping())
	require.NoError(t, b.SetPin(10, true))
	require.NoError(t, b.SetPin(11, false))

	v, err := b.ReadAnalog(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(512), v)

	mcu.mu.Lock()
	assert.Equal(t, "1", mcu.pins["10"])
	assert.Equal(t, "0", mcu.pins["11"])
	assert.Equal(t, []string{"P", "W 10 1", "W 11 0", "R 0"}, mcu.history)
	mcu.mu.Unlock()
}

func TestBoard_DeviceError(t *testing.T) {
	b, _ := newTestBoard(t)

	err := b.SetPin(99, true)
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "bad pin", devErr.Msg)

	_, err = b.ReadAnalog(7)
	require.True(t, errors.As(err, &devErr))

	// Firmware errors do not count as link failures.
	for i := 0; i < 5; i++ {
		_ = b.SetPin(99, true)
	}
	assert.NoError(t, b.Ping())
}

func TestBoard_TimeoutTripsBreaker(t *testing.T) {
	b, mcu := newTestBoard(t)
	mcu.setSilent(true)

	for i := 0; i < 3; i++ {
		err := b.SetPin(10, true)
		assert.ErrorIs(t, err, ErrTimeout)
	}

	start := time.Now()
	err := b.SetPin(10, true)
	assert.ErrorIs(t, err, ErrLinkDown)
	assert.Less(t, time.Since(start), 40*time.Millisecond, "open breaker should fail fast")
}

func TestBoard_LateReplyDropped(t *testing.T) {
	b, mcu := newTestBoard(t)

	mcu.setSilent(true)
	assert.ErrorIs(t, b.Ping(), ErrTimeout)
	mcu.setSilent(false)

	v, err := b.ReadAnalog(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1023), v)
}

func TestBoard_Closed(t *testing.T) {
	b, _ := newTestBoard(t)
	require.NoError(t, b.Close())

	err := b.SetPin(10, true)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, b.Close())
}

func TestBoard_Clock(t *testing.T) {
	b, _ := newTestBoard(t)
	assert.False(t, b.Now().IsZero())
}
