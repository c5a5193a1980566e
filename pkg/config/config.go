// Package config loads the controller configuration from YAML or TOML files
// and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/itohio/gowater/pkg/fault"
	"github.com/itohio/gowater/pkg/hal"
	"github.com/itohio/gowater/pkg/pot"
	"github.com/itohio/gowater/pkg/sensor"
)

// Board types.
const (
	BoardSim    = "sim"
	BoardSerial = "serial"
	BoardPeriph = "periph"
)

// Environment variables that override file settings.
const (
	EnvBoard           = "GOWATER_BOARD"
	EnvSerialPort      = "GOWATER_SERIAL_PORT"
	EnvLogLevel        = "GOWATER_LOG_LEVEL"
	EnvMetricsTextfile = "GOWATER_METRICS_TEXTFILE"
	EnvSerialBaud      = "GOWATER_SERIAL_BAUD"
)

// Config represents the application configuration.
type Config struct {
	Board   BoardConfig   `yaml:"board" toml:"board"`
	Loop    LoopConfig    `yaml:"loop" toml:"loop"`
	Pots    []PotConfig   `yaml:"pots" toml:"pots"`
	Display DisplayConfig `yaml:"display" toml:"display"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	History HistoryConfig `yaml:"history" toml:"history"`
}

// BoardConfig selects and configures the hardware backend.
type BoardConfig struct {
	Type   string       `yaml:"type" toml:"type"`
	Serial SerialConfig `yaml:"serial" toml:"serial"`
	Periph PeriphConfig `yaml:"periph" toml:"periph"`
	Sim    SimConfig    `yaml:"sim" toml:"sim"`
}

// SerialConfig contains the MCU bridge link settings.
type SerialConfig struct {
	Port        string   `yaml:"port" toml:"port"`
	Baud        int      `yaml:"baud" toml:"baud"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`           // per-command reply timeout
	OpenTimeout Duration `yaml:"open_timeout" toml:"open_timeout"` // give up opening the port after this long
}

// PeriphConfig contains settings for boards driven through periph.io.
type PeriphConfig struct {
	I2CBus     string `yaml:"i2c_bus" toml:"i2c_bus"`
	ADCAddress uint16 `yaml:"adc_address" toml:"adc_address"`
	DataRate   int    `yaml:"data_rate" toml:"data_rate"` // ADS1115 samples per second
}

// SimConfig tunes the simulated soil.
type SimConfig struct {
	InitialMoisture float64  `yaml:"initial_moisture" toml:"initial_moisture"` // percent
	DryingPerHour   float64  `yaml:"drying_per_hour" toml:"drying_per_hour"`   // percent lost per hour
	WettingPerSec   float64  `yaml:"wetting_per_sec" toml:"wetting_per_sec"`   // percent gained per second of pumping
	Noise           float64  `yaml:"noise" toml:"noise"`                       // raw counts
	DryRaw          uint16   `yaml:"dry_raw" toml:"dry_raw"`
	WetRaw          uint16   `yaml:"wet_raw" toml:"wet_raw"`
	Speedup         float64  `yaml:"speedup" toml:"speedup"`
	Step            Duration `yaml:"step" toml:"step"`
}

// LoopConfig contains the polling loop settings.
type LoopConfig struct {
	Poll Duration `yaml:"poll" toml:"poll"`
}

// PotConfig describes one pot: its probe and its motor.
type PotConfig struct {
	Name string `yaml:"name" toml:"name"`

	SensorPin   int      `yaml:"sensor_pin" toml:"sensor_pin"`
	PowerPin    *int     `yaml:"power_pin,omitempty" toml:"power_pin,omitempty"`
	PowerSettle Duration `yaml:"power_settle" toml:"power_settle"`
	MinRange    uint16   `yaml:"min_range" toml:"min_range"`
	MaxRange    uint16   `yaml:"max_range" toml:"max_range"`
	Threshold   uint8    `yaml:"threshold" toml:"threshold"`
	Invert      bool     `yaml:"invert" toml:"invert"`
	FilterAlpha float32  `yaml:"filter_alpha" toml:"filter_alpha"`

	MotorPin         int       `yaml:"motor_pin" toml:"motor_pin"`
	ErrorLEDPin      *int      `yaml:"error_led_pin,omitempty" toml:"error_led_pin,omitempty"`
	Intensity        uint8     `yaml:"intensity" toml:"intensity"`
	PWMPeriod        Duration  `yaml:"pwm_period" toml:"pwm_period"`
	WateringTime     Duration  `yaml:"watering_time" toml:"watering_time"`
	SoakTime         *Duration `yaml:"soak_time,omitempty" toml:"soak_time,omitempty"` // nil means default, 0 means no pause
	MinWaterInterval Duration  `yaml:"min_water_interval" toml:"min_water_interval"`
	IdleInterval     Duration  `yaml:"idle_interval" toml:"idle_interval"`
	ActiveInterval   Duration  `yaml:"active_interval" toml:"active_interval"`
	RelaySettle      Duration  `yaml:"relay_settle" toml:"relay_settle"`
}

// DisplayConfig describes the character display the menu renders to.
type DisplayConfig struct {
	Rows int `yaml:"rows" toml:"rows"`
	Cols int `yaml:"cols" toml:"cols"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string `yaml:"level" toml:"level"`
	NoColor bool   `yaml:"no_color" toml:"no_color"`
}

// MetricsConfig contains Prometheus textfile export settings. An empty
// Textfile disables export.
type MetricsConfig struct {
	Textfile string   `yaml:"textfile" toml:"textfile"`
	Interval Duration `yaml:"interval" toml:"interval"`
}

// HistoryConfig sizes the in-memory reading history shown by the simulator.
type HistoryConfig struct {
	Window     Duration `yaml:"window" toml:"window"`
	Resolution Duration `yaml:"resolution" toml:"resolution"`
}

func pin(n int) *int { return &n }

func dur(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Board: BoardConfig{
			Type: BoardSim,
			Serial: SerialConfig{
				Port:        "/dev/ttyACM0",
				Baud:        115200,
				Timeout:     Duration(500 * time.Millisecond),
				OpenTimeout: Duration(time.Minute),
			},
			Periph: PeriphConfig{
				ADCAddress: 0x48,
				DataRate:   128,
			},
			Sim: SimConfig{
				InitialMoisture: 55,
				DryingPerHour:   4,
				WettingPerSec:   1.5,
				Noise:           4,
				DryRaw:          800,
				WetRaw:          300,
				Speedup:         1,
				Step:            Duration(100 * time.Millisecond),
			},
		},
		Loop: LoopConfig{
			Poll: Duration(20 * time.Millisecond),
		},
		Pots: []PotConfig{
			DefaultPot("pot1", 0, 10, pin(12)),
			DefaultPot("pot2", 1, 11, pin(12)),
		},
		Display: DisplayConfig{Rows: 2, Cols: 16},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Interval: Duration(15 * time.Second)},
		History: HistoryConfig{
			Window:     Duration(time.Hour),
			Resolution: Duration(time.Second),
		},
	}
}

// DefaultPot returns a pot configuration with default timings and a
// calibration for a resistive probe that reads lower when wet.
func DefaultPot(name string, sensorPin, motorPin int, errorLED *int) PotConfig {
	return PotConfig{
		Name:             name,
		SensorPin:        sensorPin,
		PowerSettle:      Duration(sensor.DefaultPowerSettle),
		MinRange:         800,
		MaxRange:         300,
		Threshold:        40,
		FilterAlpha:      0.3,
		MotorPin:         motorPin,
		ErrorLEDPin:      errorLED,
		Intensity:        100,
		PWMPeriod:        Duration(pot.DefaultPWMPeriod),
		WateringTime:     Duration(10 * time.Second),
		SoakTime:         dur(10 * time.Minute),
		MinWaterInterval: Duration(30 * time.Minute),
		IdleInterval:     Duration(pot.DefaultIdleInterval),
		ActiveInterval:   Duration(pot.DefaultActiveInterval),
		RelaySettle:      Duration(50 * time.Millisecond),
	}
}

// LoadEnv loads environment variables from .env style files. Missing files
// are ignored. Without arguments ".env" in the working directory is used.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, f := range filenames {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from a YAML or TOML file (chosen by extension),
// then applies environment overrides. If the file doesn't exist defaults are
// used; missing fields get default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	case isTOML(filename):
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ensureDefaults()

	return cfg, nil
}

func isTOML(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".toml")
}

// Save saves the configuration as YAML or TOML depending on the extension.
func (c *Config) Save(filename string) error {
	var data []byte
	if isTOML(filename) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvBoard); ok {
		c.Board.Type = v
	}
	if v, ok := os.LookupEnv(EnvSerialPort); ok {
		c.Board.Serial.Port = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvMetricsTextfile); ok {
		c.Metrics.Textfile = v
	}
	if v, ok := os.LookupEnv(EnvSerialBaud); ok {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fault.Configf("%s=%q: %v", EnvSerialBaud, v, err)
		}
		c.Board.Serial.Baud = baud
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Board.Type == "" {
		c.Board.Type = def.Board.Type
	}
	if c.Board.Serial.Baud == 0 {
		c.Board.Serial.Baud = def.Board.Serial.Baud
	}
	if c.Board.Serial.Timeout == 0 {
		c.Board.Serial.Timeout = def.Board.Serial.Timeout
	}
	if c.Board.Serial.OpenTimeout == 0 {
		c.Board.Serial.OpenTimeout = def.Board.Serial.OpenTimeout
	}
	if c.Board.Periph.ADCAddress == 0 {
		c.Board.Periph.ADCAddress = def.Board.Periph.ADCAddress
	}
	if c.Board.Periph.DataRate == 0 {
		c.Board.Periph.DataRate = def.Board.Periph.DataRate
	}

	sim := &c.Board.Sim
	if sim.DryRaw == sim.WetRaw {
		sim.DryRaw, sim.WetRaw = def.Board.Sim.DryRaw, def.Board.Sim.WetRaw
	}
	if sim.Speedup == 0 {
		sim.Speedup = def.Board.Sim.Speedup
	}
	if sim.Step == 0 {
		sim.Step = def.Board.Sim.Step
	}
	if sim.WettingPerSec == 0 {
		sim.WettingPerSec = def.Board.Sim.WettingPerSec
	}
	if sim.DryingPerHour == 0 {
		sim.DryingPerHour = def.Board.Sim.DryingPerHour
	}

	if c.Loop.Poll == 0 {
		c.Loop.Poll = def.Loop.Poll
	}

	if len(c.Pots) == 0 {
		c.Pots = def.Pots
	}
	for i := range c.Pots {
		c.Pots[i].ensureDefaults(i)
	}

	if c.Display.Rows == 0 {
		c.Display.Rows = def.Display.Rows
	}
	if c.Display.Cols == 0 {
		c.Display.Cols = def.Display.Cols
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = def.Metrics.Interval
	}
	if c.History.Window == 0 {
		c.History.Window = def.History.Window
	}
	if c.History.Resolution == 0 {
		c.History.Resolution = def.History.Resolution
	}
}

func (p *PotConfig) ensureDefaults(slot int) {
	def := DefaultPot(fmt.Sprintf("pot%d", slot+1), p.SensorPin, p.MotorPin, nil)

	if p.Name == "" {
		p.Name = def.Name
	}
	if p.PowerPin != nil && p.PowerSettle == 0 {
		p.PowerSettle = def.PowerSettle
	}
	if p.MinRange == 0 && p.MaxRange == 0 {
		p.MinRange, p.MaxRange = def.MinRange, def.MaxRange
	}
	if p.Threshold == 0 {
		p.Threshold = def.Threshold
	}
	if p.FilterAlpha == 0 {
		p.FilterAlpha = def.FilterAlpha
	}
	if p.Intensity == 0 {
		p.Intensity = def.Intensity
	}
	if p.PWMPeriod == 0 {
		p.PWMPeriod = def.PWMPeriod
	}
	if p.WateringTime == 0 {
		p.WateringTime = def.WateringTime
	}
	if p.SoakTime == nil {
		p.SoakTime = def.SoakTime
	}
	if p.MinWaterInterval == 0 {
		p.MinWaterInterval = def.MinWaterInterval
	}
	if p.IdleInterval == 0 {
		p.IdleInterval = def.IdleInterval
	}
	if p.ActiveInterval == 0 {
		p.ActiveInterval = def.ActiveInterval
	}
}

// Validate checks the cross-field rules the individual constructors cannot
// see. All errors wrap fault.ErrConfiguration.
func (c *Config) Validate() error {
	switch c.Board.Type {
	case BoardSim, BoardSerial, BoardPeriph:
	default:
		return fault.Configf("unknown board type %q", c.Board.Type)
	}
	if c.Board.Type == BoardSerial && c.Board.Serial.Port == "" {
		return fault.Configf("serial board needs a port")
	}
	if len(c.Pots) == 0 {
		return fault.Configf("no pots configured")
	}
	if c.Display.Rows < 1 || c.Display.Cols < 4 {
		return fault.Configf("display %dx%d too small", c.Display.Rows, c.Display.Cols)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	names := make(map[string]int)
	outputs := make(map[hal.Pin]string)
	for i, p := range c.Pots {
		if prev, ok := names[p.Name]; ok {
			return fault.Configf("pot %d: name %q already used by pot %d", i, p.Name, prev)
		}
		names[p.Name] = i

		if err := p.Validate(); err != nil {
			return fmt.Errorf("pot %q: %w", p.Name, err)
		}
		motor := hal.Pin(p.MotorPin)
		if owner, ok := outputs[motor]; ok {
			return fault.Configf("pot %q: motor pin %s already driven by %s", p.Name, motor, owner)
		}
		outputs[motor] = "pot " + p.Name
		if power := optionalPin(p.PowerPin); power.Valid() {
			if owner, ok := outputs[power]; ok {
				return fault.Configf("pot %q: power pin %s already driven by %s", p.Name, power, owner)
			}
			outputs[power] = "probe " + p.Name
		}
	}
	for _, p := range c.Pots {
		// Error LEDs may be shared, but not with a motor or probe.
		if led := optionalPin(p.ErrorLEDPin); led.Valid() {
			if owner, ok := outputs[led]; ok {
				return fault.Configf("pot %q: error LED pin %s already driven by %s", p.Name, led, owner)
			}
		}
	}
	return nil
}

// Validate checks the ranges of a single pot.
func (p PotConfig) Validate() error {
	for name, v := range map[string]int{"sensor_pin": p.SensorPin, "motor_pin": p.MotorPin} {
		if v < 0 || v >= int(hal.NoPin) {
			return fault.Configf("%s %d out of range", name, v)
		}
	}
	// Negative optional pins mean "not connected".
	for name, v := range map[string]*int{"power_pin": p.PowerPin, "error_led_pin": p.ErrorLEDPin} {
		if v != nil && *v >= int(hal.NoPin) {
			return fault.Configf("%s %d out of range", name, *v)
		}
	}
	if p.MinRange == p.MaxRange {
		return fault.Configf("min_range and max_range are both %d", p.MinRange)
	}
	if p.Threshold == 0 || p.Threshold >= 100 {
		return fault.Configf("threshold %d%% outside (0,100)", p.Threshold)
	}
	if p.FilterAlpha <= 0 || p.FilterAlpha > 1 {
		return fault.Configf("filter_alpha %v outside (0,1]", p.FilterAlpha)
	}
	if p.Intensity == 0 || p.Intensity > 100 {
		return fault.Configf("intensity %d%% outside 1..100", p.Intensity)
	}
	if p.WateringTime <= 0 {
		return fault.Configf("watering_time must be positive")
	}
	if p.MinWaterInterval <= 0 {
		return fault.Configf("min_water_interval must be positive")
	}
	if p.SoakTime != nil && *p.SoakTime < 0 {
		return fault.Configf("soak_time must not be negative")
	}
	return nil
}

func (p PotConfig) soak() time.Duration {
	if p.SoakTime == nil {
		return DefaultPot("", 0, 0, nil).SoakTime.D()
	}
	return p.SoakTime.D()
}

func optionalPin(p *int) hal.Pin {
	if p == nil || *p < 0 {
		return hal.NoPin
	}
	return hal.Pin(*p)
}

// Sensor returns the probe settings of the pot.
func (p PotConfig) Sensor() sensor.Config {
	return sensor.Config{
		DataPin:     hal.Pin(p.SensorPin),
		PowerPin:    optionalPin(p.PowerPin),
		PowerSettle: p.PowerSettle.D(),
		MinRange:    p.MinRange,
		MaxRange:    p.MaxRange,
		Threshold:   p.Threshold,
		Invert:      p.Invert,
		FilterAlpha: p.FilterAlpha,
	}
}

// Controller returns the watering controller settings of the pot.
func (p PotConfig) Controller() pot.Config {
	return pot.Config{
		Name:             p.Name,
		MotorPin:         hal.Pin(p.MotorPin),
		ErrorLEDPin:      optionalPin(p.ErrorLEDPin),
		Intensity:        p.Intensity,
		PWMPeriod:        p.PWMPeriod.D(),
		WateringTime:     p.WateringTime.D(),
		SoakTime:         p.soak(),
		MinWaterInterval: p.MinWaterInterval.D(),
		IdleInterval:     p.IdleInterval.D(),
		ActiveInterval:   p.ActiveInterval.D(),
		RelaySettle:      p.RelaySettle.D(),
	}
}
