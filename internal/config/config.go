// Package config handles daemon configuration loading using viper.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"lowpan.xyz/schc/internal/log"
	"lowpan.xyz/schc/internal/metrics"
)

// Config is the top-level daemon configuration.
type Config struct {
	Log      log.LoggerConfig `mapstructure:"log"`
	Metrics  metrics.Config   `mapstructure:"metrics"`
	Contexts []string         `mapstructure:"contexts"` // context file paths
}

// Load reads the configuration file at path and fills in defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pattern", "%time [%level] %field: %msg\n")
	v.SetDefault("log.time", "2006-01-02 15:04:05")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9101")
	v.SetDefault("metrics.path", "/metrics")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if len(cfg.Log.Appenders) == 0 {
		cfg.Log.Appenders = []log.AppenderConfig{{Type: "console"}}
	}
	return &cfg, nil
}
