package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gowater/pkg/config"
	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/hal/sim"
)

func TestOpen_Sim(t *testing.T) {
	cfg := config.Default()

	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &sim.Board{}, b)
	_, err = b.ReadAnalog(hal.Pin(cfg.Pots[0].SensorPin))
	assert.NoError(t, err)
}

func TestOpen_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Board.Type = "abacus"

	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestWiring(t *testing.T) {
	pots := []config.PotConfig{
		config.DefaultPot("a", 2, 20, nil),
		config.DefaultPot("b", 3, 21, nil),
	}
	assert.Equal(t, []sim.Wiring{
		{SensorPin: 2, MotorPin: 20},
		{SensorPin: 3, MotorPin: 21},
	}, Wiring(pots))
}
