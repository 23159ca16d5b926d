package qrefresh

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

/*
Config carries every tunable of the controller. The zero value is not
useful, start from NewConfig and override what you need.
*/
type Config struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	OpenRetries int           `mapstructure:"open_retries"`

	// Refresh cadence.
	Tick                   time.Duration `mapstructure:"tick"`
	InitialRefreshInterval time.Duration `mapstructure:"initial_refresh_interval"`
	MinRefreshInterval     time.Duration `mapstructure:"min_refresh_interval"`
	MaxRefreshInterval     time.Duration `mapstructure:"max_refresh_interval"`
	SlowDownFactor         float64       `mapstructure:"slow_down_factor"`
	SpeedUpFactor          float64       `mapstructure:"speed_up_factor"`

	// Fidelity thresholds.
	ErrorThreshold float64 `mapstructure:"error_threshold"`
	StableFidelity float64 `mapstructure:"stable_fidelity"`
	TrackDecay     bool    `mapstructure:"track_decay"`

	// Zeno measurement.
	ZenoStrengthLimit float64 `mapstructure:"zeno_strength_limit"`
	ZenoGain          float64 `mapstructure:"zeno_gain"`

	// Geometric phase gate.
	PhaseSteps  int           `mapstructure:"phase_steps"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	BaseCoherence        float64 `mapstructure:"base_coherence"`
	TopologicalCoherence float64 `mapstructure:"topological_coherence"`

	BreakerMaxFailures  int           `mapstructure:"breaker_max_failures"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
	BreakerHalfOpenMax  int           `mapstructure:"breaker_half_open_max"`

	// Pass rate limit, off while PassRefill is zero.
	PassBurst  int           `mapstructure:"pass_burst"`
	PassRefill time.Duration `mapstructure:"pass_refill"`

	// Legacy compatibility switches, all off by default.
	IgnoreUnknownQubits bool `mapstructure:"ignore_unknown_qubits"`
	OverwriteOnCreate   bool `mapstructure:"overwrite_on_create"`
	CharAddressing      bool `mapstructure:"char_addressing"`

	Qubits []QubitConfig `mapstructure:"qubits"`
}

// QubitConfig declares a qubit to create when a controller is brought up.
type QubitConfig struct {
	ID          string  `mapstructure:"id"`
	Topological bool    `mapstructure:"topological"`
	Alpha       float64 `mapstructure:"alpha"`
	Beta        float64 `mapstructure:"beta"`
}

/*
NewConfig returns the defaults used when no file or environment overrides
them. They pass Validate.
*/
func NewConfig() *Config {
	return &Config{
		Port:                   "/dev/ttyUSB0",
		BaudRate:               115200,
		ReadTimeout:            500 * time.Millisecond,
		OpenRetries:            3,
		Tick:                   100 * time.Microsecond,
		InitialRefreshInterval: time.Millisecond,
		MinRefreshInterval:     10 * time.Microsecond,
		MaxRefreshInterval:     10 * time.Second,
		SlowDownFactor:         1.1,
		SpeedUpFactor:          0.9,
		ErrorThreshold:         0.95,
		StableFidelity:         0.99,
		ZenoStrengthLimit:      0.1,
		ZenoGain:               1.001,
		PhaseSteps:             100,
		SettleDelay:            100 * time.Microsecond,
		BaseCoherence:          1.0,
		TopologicalCoherence:   3600.0,
		BreakerMaxFailures:     5,
		BreakerResetTimeout:    time.Second,
		BreakerHalfOpenMax:     1,
		PassBurst:              1,
	}
}

/*
LoadConfig reads the configuration file at path (any format viper knows,
YAML in practice) on top of NewConfig's defaults. Environment variables
prefixed with QREFRESH_ override file values, and an optional .env in the
working directory is loaded first. An empty path only applies the
environment.
*/
func LoadConfig(path string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	defaults := NewConfig()
	v := viper.New()
	v.SetEnvPrefix("QREFRESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", defaults.Port)
	v.SetDefault("baud_rate", defaults.BaudRate)
	v.SetDefault("read_timeout", defaults.ReadTimeout)
	v.SetDefault("open_retries", defaults.OpenRetries)
	v.SetDefault("tick", defaults.Tick)
	v.SetDefault("initial_refresh_interval", defaults.InitialRefreshInterval)
	v.SetDefault("min_refresh_interval", defaults.MinRefreshInterval)
	v.SetDefault("max_refresh_interval", defaults.MaxRefreshInterval)
	v.SetDefault("slow_down_factor", defaults.SlowDownFactor)
	v.SetDefault("speed_up_factor", defaults.SpeedUpFactor)
	v.SetDefault("error_threshold", defaults.ErrorThreshold)
	v.SetDefault("stable_fidelity", defaults.StableFidelity)
	v.SetDefault("track_decay", defaults.TrackDecay)
	v.SetDefault("zeno_strength_limit", defaults.ZenoStrengthLimit)
	v.SetDefault("zeno_gain", defaults.ZenoGain)
	v.SetDefault("phase_steps", defaults.PhaseSteps)
	v.SetDefault("settle_delay", defaults.SettleDelay)
	v.SetDefault("base_coherence", defaults.BaseCoherence)
	v.SetDefault("topological_coherence", defaults.TopologicalCoherence)
	v.SetDefault("breaker_max_failures", defaults.BreakerMaxFailures)
	v.SetDefault("breaker_reset_timeout", defaults.BreakerResetTimeout)
	v.SetDefault("breaker_half_open_max", defaults.BreakerHalfOpenMax)
	v.SetDefault("pass_burst", defaults.PassBurst)
	v.SetDefault("pass_refill", defaults.PassRefill)
	v.SetDefault("ignore_unknown_qubits", defaults.IgnoreUnknownQubits)
	v.SetDefault("overwrite_on_create", defaults.OverwriteOnCreate)
	v.SetDefault("char_addressing", defaults.CharAddressing)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the refresh loop cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Tick <= 0:
		return fmt.Errorf("tick must be positive, got %v", c.Tick)
	case c.InitialRefreshInterval <= 0:
		return fmt.Errorf("initial_refresh_interval must be positive, got %v", c.InitialRefreshInterval)
	case c.MaxRefreshInterval > 0 && c.MinRefreshInterval > c.MaxRefreshInterval:
		return fmt.Errorf("min_refresh_interval %v exceeds max_refresh_interval %v", c.MinRefreshInterval, c.MaxRefreshInterval)
	case c.ReadTimeout <= 0:
		return fmt.Errorf("read_timeout must be positive, got %v", c.ReadTimeout)
	case c.PhaseSteps <= 0:
		return fmt.Errorf("phase_steps must be positive, got %d", c.PhaseSteps)
	case c.BaseCoherence <= 0 || c.TopologicalCoherence <= 0:
		return fmt.Errorf("coherence times must be positive")
	case c.PassRefill > 0 && c.PassBurst <= 0:
		return fmt.Errorf("pass_burst must be positive when pass_refill is set, got %d", c.PassBurst)
	}

	for _, q := range c.Qubits {
		if q.ID == "" {
			return fmt.Errorf("qubit entry without id: %w", ErrEmptyID)
		}
	}

	return nil
}
