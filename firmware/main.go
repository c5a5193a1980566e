//go:build tinygo

//go:generate tinygo flash -target=pico

// Command firmware is the MCU side of the serial bridge. It owns the motor,
// LED and probe pins and answers one line protocol command at a time.
package main

import (
	"machine"
	"time"

	"github.com/itohio/gowater/pkg/hal/bridge/wire"
)

var (
	uart = machine.Serial
	adcs [len(analogs)]machine.ADC

	// Serial buffer for reading lines
	line    [LINE_MAX]byte
	linePos int
	lineBad bool

	lastCommand time.Time
	outputsSafe bool
)

func main() {
	for _, o := range outputs {
		o.gpio.Configure(machine.PinConfig{Mode: machine.PinOutput})
		o.gpio.Low()
	}
	outputsSafe = true

	machine.InitADC()
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	for i, p := range analogs {
		adcs[i] = machine.ADC{Pin: p}
		adcs[i].Configure(adcConfig)
	}

	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})
	lastCommand = time.Now()

	for {
		processSerial()

		if !outputsSafe && time.Since(lastCommand) >= HOST_TIMEOUT_MS*time.Millisecond {
			allLow()
		}

		time.Sleep(time.Millisecond)
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if linePos > 0 && !lineBad {
				reply(handle(string(line[:linePos])))
			} else if lineBad {
				reply(wire.Error("line too long"))
			}
			linePos = 0
			lineBad = false
			continue
		}

		if linePos >= len(line) {
			lineBad = true
			continue
		}
		line[linePos] = data
		linePos++
	}
}

func handle(s string) string {
	cmd, err := wire.ParseCommand(s)
	if err != nil {
		return wire.Error("syntax")
	}
	lastCommand = time.Now()

	switch cmd.Op {
	case wire.OpPing:
		return wire.ReplyPong
	case wire.OpWrite:
		p, ok := outputPin(cmd.Pin)
		if !ok {
			return wire.Error("bad pin")
		}
		p.Set(cmd.High)
		if cmd.High {
			outputsSafe = false
		}
		return wire.ReplyOK
	case wire.OpRead:
		if int(cmd.Pin) >= len(adcs) {
			return wire.Error("no adc")
		}
		// Get returns a left aligned 16 bit value.
		v := adcs[cmd.Pin].Get() >> (16 - ADC_RESOLUTION)
		return wire.Value(cmd.Pin, v)
	}
	return wire.Error("unknown")
}

// allLow switches every output off after the host went silent.
func allLow() {
	for _, o := range outputs {
		o.gpio.Low()
	}
	outputsSafe = true
}

func reply(s string) {
	uart.Write([]byte(s))
	uart.Write([]byte{'\n'})
}
