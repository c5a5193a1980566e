// Package periph drives pots from a Linux single-board computer: motors, LEDs
// and probe power through GPIO, probes through an ADS1115 ADC on I²C.
//
// Digital pin N is the host pin named "GPIO<N>". Analog pins 0..3 are the
// ADS1115 single-ended inputs A0..A3.
package periph

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/hal"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// txer is the part of an I²C device the ADC driver uses.
type txer interface {
	Tx(w, r []byte) error
}

// Board is a hal.Board on top of periph.io.
type Board struct {
	*hal.SystemClock

	adc      txer
	bus      i2c.BusCloser
	dataRate int
	lookup   func(name string) gpio.PinIO

	mu   sync.Mutex
	pins map[hal.Pin]gpio.PinIO
}

var _ hal.Board = (*Board)(nil)

// Open initializes the host drivers and opens the ADC.
func Open(cfg config.PeriphConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: cfg.ADCAddress, Bus: bus}

	b := newBoard(dev, cfg.DataRate, gpioreg.ByName)
	b.bus = bus
	return b, nil
}

func newBoard(adc txer, dataRate int, lookup func(string) gpio.PinIO) *Board {
	return &Board{
		SystemClock: hal.NewSystemClock(),
		adc:         adc,
		dataRate:    dataRate,
		lookup:      lookup,
		pins:        make(map[hal.Pin]gpio.PinIO),
	}
}

// SetPin drives GPIO<pin>.
func (b *Board) SetPin(pin hal.Pin, high bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pins[pin]
	if !ok {
		name := fmt.Sprintf("GPIO%d", pin)
		p = b.lookup(name)
		if p == nil {
			return fmt.Errorf("gpio %s not found", name)
		}
		b.pins[pin] = p
	}
	if err := p.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("gpio %s: %w", p.Name(), err)
	}
	return nil
}

// ReadAnalog runs a single-shot conversion on ADS1115 input pin and returns
// it scaled to 16 bits. Negative readings are clamped to zero.
func (b *Board) ReadAnalog(pin hal.Pin) (uint16, error) {
	msb, lsb, err := configForChannel(int(pin), b.dataRate)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.adc.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	time.Sleep(conversionTime(b.dataRate))

	buf := make([]byte, 2)
	if err := b.adc.Tx([]byte{pointerConv}, buf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(buf[0])<<8 | int16(buf[1])
	if raw < 0 {
		raw = 0
	}
	return uint16(raw) << 1, nil
}

func conversionTime(dataRate int) time.Duration {
	if dataRate <= 0 {
		dataRate = 128
	}
	return time.Duration(1000/dataRate+2) * time.Millisecond
}

// configForChannel builds the ADS1115 config register for a single-shot,
// single-ended conversion at ±4.096 V full scale.
func configForChannel(channel, dataRate int) (byte, byte, error) {
	if channel < 0 || channel > 3 {
		return 0, 0, fmt.Errorf("invalid ADC channel %d", channel)
	}
	mux := byte(0x4 + channel)
	pga := byte(0x1)

	var dr byte
	switch dataRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4 // 128 SPS
	}

	var cfg uint16 = 0x8000 // start conversion
	cfg |= uint16(mux) << 12
	cfg |= uint16(pga) << 9
	cfg |= 1 << 8 // single-shot
	cfg |= uint16(dr) << 5
	cfg |= 0x3 // comparator off
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}

// Close drives every used GPIO low and releases the I²C bus.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, p := range b.pins {
		if err := p.Out(gpio.Low); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.bus != nil {
		if err := b.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.bus = nil
	}
	return firstErr
}
