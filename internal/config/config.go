// Package config loads client and mock runner settings from defaults, an
// optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Endpoint            string           `mapstructure:"endpoint" yaml:"endpoint"`
	ConnectionTimeLimit int              `mapstructure:"connection_time_limit" yaml:"connection_time_limit"`
	MaxOutputLength     int              `mapstructure:"max_output_length" yaml:"max_output_length"`
	DialTimeout         time.Duration    `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ExitGrace           time.Duration    `mapstructure:"exit_grace" yaml:"exit_grace"`
	Watch               WatchConfig      `mapstructure:"watch" yaml:"watch"`
	MockRunner          MockRunnerConfig `mapstructure:"mock_runner" yaml:"mock_runner"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type MockRunnerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Environment variables bound to configuration keys.
var envBindings = map[string]string{
	"endpoint":              "RUNNER_BASE_URL",
	"connection_time_limit": "CONNECTION_TIME_LIMIT",
	"max_output_length":     "MAX_OUTPUT_LENGTH",
	"dial_timeout":          "DIAL_TIMEOUT",
	"exit_grace":            "EXIT_GRACE",
	"watch.debounce":        "WATCH_DEBOUNCE",
	"mock_runner.addr":      "MOCK_RUNNER_ADDR",
}

var ErrInvalid = errors.New("invalid configuration")

func DefaultConfig() Config {
	return Config{
		Endpoint:            "ws://localhost:8080",
		ConnectionTimeLimit: 180,
		MaxOutputLength:     100000,
		DialTimeout:         10 * time.Second,
		ExitGrace:           2 * time.Second,
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		MockRunner: MockRunnerConfig{
			Addr: ":8080",
		},
	}
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/coderun/config.yaml or the
// platform equivalent.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coderun", "config.yaml"), nil
}

// TimeLimit returns the connection time limit as a duration.
func (c Config) TimeLimit() time.Duration {
	return time.Duration(c.ConnectionTimeLimit) * time.Second
}

// Validate checks the settings a session depends on.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q must include scheme and host (e.g. ws://localhost:8080)", ErrInvalid, c.Endpoint)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: endpoint scheme must be ws or wss, got %q", ErrInvalid, u.Scheme)
	}
	if c.ConnectionTimeLimit <= 0 {
		return fmt.Errorf("%w: connection_time_limit must be positive", ErrInvalid)
	}
	if c.MaxOutputLength <= 0 {
		return fmt.Errorf("%w: max_output_length must be positive", ErrInvalid)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial_timeout must be positive", ErrInvalid)
	}
	if c.ExitGrace <= 0 {
		return fmt.Errorf("%w: exit_grace must be positive", ErrInvalid)
	}
	return nil
}
