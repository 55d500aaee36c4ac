package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration. An explicit path must exist; with an empty path
// the default path is used when present. Environment variables override the
// file, and the result is validated.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultConfigPath()
		if err == nil {
			path = defaultPath
		}
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("endpoint", cfg.Endpoint)
	v.SetDefault("connection_time_limit", cfg.ConnectionTimeLimit)
	v.SetDefault("max_output_length", cfg.MaxOutputLength)
	v.SetDefault("dial_timeout", cfg.DialTimeout)
	v.SetDefault("exit_grace", cfg.ExitGrace)
	v.SetDefault("watch.debounce", cfg.Watch.Debounce)
	v.SetDefault("mock_runner.addr", cfg.MockRunner.Addr)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		case explicit || !errors.Is(statErr, fs.ErrNotExist):
			return Config{}, fmt.Errorf("read config %s: %w", path, statErr)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
