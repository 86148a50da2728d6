// Package model defines shared configuration and message structures used to
// initialize and run the rovbridge control bridge.
package model

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the root structure loaded from configs/rovbridge.yml.
// It contains the listen address for the control session server plus the
// serial, drive and watchdog settings.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"` // address for the control server (e.g. ":8080")
	Serial     SerialConfig   `yaml:"serial"`
	Drive      DriveConfig    `yaml:"drive"`
	Watchdog   WatchdogConfig `yaml:"watchdog"`
}

// SerialConfig defines the serial link to the actuator controller.
type SerialConfig struct {
	Device      string `yaml:"device"` // e.g. /dev/ttyACM0
	Baud        int    `yaml:"baud"`
	RetryMillis int    `yaml:"retry_ms"` // delay between reconnect attempts
}

// DriveConfig defines the joystick-to-motor mapping.
type DriveConfig struct {
	Deadzone float64 `yaml:"deadzone"`  // axis magnitude treated as zero
	MaxSpeed int     `yaml:"max_speed"` // actuator native range is [-max_speed, max_speed]
}

// WatchdogConfig defines staleness detection timing.
type WatchdogConfig struct {
	CheckMillis int `yaml:"check_ms"` // staleness check period
	StaleMillis int `yaml:"stale_ms"` // no-sample window before a stop is forced
}

// DefaultConfig returns a Config populated with working defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		Serial: SerialConfig{
			Device:      "/dev/ttyACM0",
			Baud:        9600,
			RetryMillis: 2000,
		},
		Drive: DriveConfig{
			Deadzone: 0.05,
			MaxSpeed: 127,
		},
		Watchdog: WatchdogConfig{
			CheckMillis: 250,
			StaleMillis: 1500,
		},
	}
}

// LoadConfig reads the YAML configuration at path on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Serial.Device == "" {
		return errors.New("serial device path is required")
	}
	if c.Serial.Baud <= 0 {
		return errors.New("serial baud must be positive")
	}
	if c.Drive.MaxSpeed <= 0 || c.Drive.MaxSpeed > 127 {
		return errors.New("drive max_speed must be in (0, 127]")
	}
	if c.Drive.Deadzone < 0 || c.Drive.Deadzone >= 1 {
		return errors.New("drive deadzone must be in [0, 1)")
	}
	if c.Watchdog.CheckMillis <= 0 || c.Watchdog.StaleMillis <= 0 {
		return errors.New("watchdog intervals must be positive")
	}
	if c.Watchdog.CheckMillis >= c.Watchdog.StaleMillis {
		return errors.New("watchdog check_ms must be below stale_ms")
	}
	return nil
}

// RetryInterval returns the serial reconnect delay as a Duration.
func (c *SerialConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryMillis) * time.Millisecond
}

// CheckInterval returns the watchdog check period as a Duration.
func (c *WatchdogConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckMillis) * time.Millisecond
}

// StaleAfter returns the staleness threshold as a Duration.
func (c *WatchdogConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleMillis) * time.Millisecond
}
