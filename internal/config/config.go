// Package config holds the process-wide, viper-loaded configuration. The
// defaults describe the stock behavior; any field can be overridden from a
// YAML file, environment variables or CLI flags, and the engine exposes
// runtime setters for the timing knobs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/marionette/internal/curve"
)

// Config is the root configuration tree.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
	Curve   curve.Options `mapstructure:"curve" yaml:"curve"`
	Devices DevicesConfig `mapstructure:"devices" yaml:"devices"`
}

// InputConfig tunes the discrete input timing model.
type InputConfig struct {
	// DefaultPressDuration is how long a key or button stays down during a
	// press cycle when the caller does not specify a duration.
	DefaultPressDuration time.Duration `mapstructure:"default_press_duration" yaml:"default_press_duration"`
	// PressInterval separates repetitions of a multi-press and the
	// characters of a write.
	PressInterval time.Duration `mapstructure:"press_interval" yaml:"press_interval"`
	// ScrollInterval separates consecutive wheel events.
	ScrollInterval time.Duration `mapstructure:"scroll_interval" yaml:"scroll_interval"`
	// RandomizeDurations toggles jitter on every timing value.
	RandomizeDurations bool `mapstructure:"randomize_durations" yaml:"randomize_durations"`
	// JitterLowFactor and JitterHighFactor bound the random duration
	// multiplier. Must satisfy 0 < low <= 1.0 <= high.
	JitterLowFactor  float64 `mapstructure:"jitter_low_factor" yaml:"jitter_low_factor"`
	JitterHighFactor float64 `mapstructure:"jitter_high_factor" yaml:"jitter_high_factor"`
	// AutoDisableMouseAccel switches pointer acceleration off on newly
	// captured mouse devices so relative moves land where planned.
	AutoDisableMouseAccel bool `mapstructure:"auto_disable_mouse_accel" yaml:"auto_disable_mouse_accel"`
}

// DevicesConfig carries the capture filters matched against hardware ids.
type DevicesConfig struct {
	KeyboardFilter string `mapstructure:"keyboard_filter" yaml:"keyboard_filter"`
	MouseFilter    string `mapstructure:"mouse_filter" yaml:"mouse_filter"`
}

// LoggerConfig configures the zap logger bootstrap.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output, rotated by lumberjack. Empty disables the file core.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "marionette",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Input: InputConfig{
			DefaultPressDuration:  5 * time.Millisecond,
			PressInterval:         50 * time.Millisecond,
			ScrollInterval:        5 * time.Millisecond,
			RandomizeDurations:    true,
			JitterLowFactor:       0.8,
			JitterHighFactor:      1.2,
			AutoDisableMouseAccel: true,
		},
		Curve: curve.DefaultOptions(),
	}
}

// Load fills a Config from viper on top of the defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	in := c.Input
	if in.DefaultPressDuration < 0 {
		return fmt.Errorf("config: default_press_duration must not be negative, got %v", in.DefaultPressDuration)
	}
	if in.PressInterval < 0 || in.ScrollInterval < 0 {
		return fmt.Errorf("config: intervals must not be negative")
	}
	if in.JitterLowFactor <= 0 || in.JitterHighFactor <= 0 {
		return fmt.Errorf("config: jitter factors must be positive, got [%v, %v]",
			in.JitterLowFactor, in.JitterHighFactor)
	}
	if in.JitterLowFactor > 1.0 || in.JitterHighFactor < 1.0 {
		return fmt.Errorf("config: jitter factors must straddle 1.0, got [%v, %v]",
			in.JitterLowFactor, in.JitterHighFactor)
	}
	if c.Curve.MinSteps < 1 {
		return fmt.Errorf("config: curve min_steps must be at least 1, got %d", c.Curve.MinSteps)
	}
	if c.Curve.MaxSteps < c.Curve.MinSteps {
		return fmt.Errorf("config: curve max_steps (%d) below min_steps (%d)",
			c.Curve.MaxSteps, c.Curve.MinSteps)
	}
	return nil
}
