//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Outputs are switched off when the host has been silent this long.
	HOST_TIMEOUT_MS = 5000

	// Longest accepted command line, "W 255 1" plus some slack.
	LINE_MAX = 16

	UART_BAUD_RATE = 115200
)

type output struct {
	pin  uint8
	gpio machine.Pin
}

// outputs maps bridge pin numbers to GPIOs.
var outputs = []output{
	{10, machine.GPIO10}, // pot1 motor
	{11, machine.GPIO11}, // pot2 motor
	{12, machine.GPIO12}, // error LED
	{13, machine.GPIO13}, // probe power
	{14, machine.GPIO14},
	{15, machine.GPIO15},
}

func outputPin(pin uint8) (machine.Pin, bool) {
	for _, o := range outputs {
		if o.pin == pin {
			return o.gpio, true
		}
	}
	return machine.NoPin, false
}

// analogs maps bridge analog channels to ADC pins.
var analogs = [...]machine.Pin{
	0: machine.ADC0, // pot1 probe
	1: machine.ADC1, // pot2 probe
	2: machine.ADC2,
}
