package periph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type fakeADC struct {
	writes [][]byte
	conv   []byte
	err    error
}

func (f *fakeADC) Tx(w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, append([]byte(nil), w...))
	if r != nil {
		copy(r, f.conv)
	}
	return nil
}

func TestConfigForChannel(t *testing.T) {
	tests := []struct {
		channel, rate int
		msb, lsb      byte
	}{
		{0, 128, 0xC3, 0x83},
		{1, 128, 0xD3, 0x83},
		{3, 128, 0xF3, 0x83},
		{0, 8, 0xC3, 0x03},
		{0, 860, 0xC3, 0xE3},
		{0, 999, 0xC3, 0x83},
	}
	for _, tt := range tests {
		msb, lsb, err := configForChannel(tt.channel, tt.rate)
		require.NoError(t, err)
		assert.Equal(t, tt.msb, msb, "channel %d @ %d", tt.channel, tt.rate)
		assert.Equal(t, tt.lsb, lsb, "channel %d @ %d", tt.channel, tt.rate)
	}

	_, _, err := configForChannel(4, 128)
	assert.Error(t, err)
	_, _, err = configForChannel(-1, 128)
	assert.Error(t, err)
}

func newTestBoard(adc *fakeADC) (*Board, map[string]*gpiotest.Pin) {
	pins := map[string]*gpiotest.Pin{
		"GPIO17": {N: "GPIO17", Num: 17},
		"GPIO27": {N: "GPIO27", Num: 27},
	}
	lookup := func(name string) gpio.PinIO {
		if p, ok := pins[name]; ok {
			return p
		}
		return nil
	}
	return newBoard(adc, 860, lookup), pins
}

func TestReadAnalog(t *testing.T) {
	adc := &fakeADC{conv: []byte{0x12, 0x34}}
	b, _ := newTestBoard(adc)

	v, err := b.ReadAnalog(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234)<<1, v)
	require.Len(t, adc.writes, 2)
	assert.Equal(t, []byte{pointerConfig, 0xD3, 0xE3}, adc.writes[0])
	assert.Equal(t, []byte{pointerConv}, adc.writes[1])

	adc.conv = []byte{0xFF, 0x00}
	v, err = b.ReadAnalog(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v, "negative reading clamped")

	_, err = b.ReadAnalog(5)
	assert.Error(t, err)

	adc.err = errors.New("nack")
	_, err = b.ReadAnalog(0)
	assert.ErrorContains(t, err, "nack")
}

func TestSetPin(t *testing.T) {
	b, pins := newTestBoard(&fakeADC{})

	require.NoError(t, b.SetPin(17, true))
	assert.Equal(t, gpio.High, pins["GPIO17"].L)
	require.NoError(t, b.SetPin(17, false))
	assert.Equal(t, gpio.Low, pins["GPIO17"].L)

	assert.Error(t, b.SetPin(5, true))

	require.NoError(t, b.SetPin(27, true))
	require.NoError(t, b.Close())
	assert.Equal(t, gpio.Low, pins["GPIO27"].L)
}
