// Package config loads zonegraph settings from flags, file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ZONEGRAPH"

// Config holds all configuration for the application
type Config struct {
	Log            LogConfig            `mapstructure:"log"`
	Engine         EngineConfig         `mapstructure:"engine"`
	Server         ServerConfig         `mapstructure:"server"`
	Assistant      AssistantConfig      `mapstructure:"assistant"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json, logfmt
}

// EngineConfig selects and configures the backing search engine.
type EngineConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite, elasticsearch
	DataDir     string `mapstructure:"data_dir"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexPrefix string `mapstructure:"index_prefix"`
	Refresh     bool   `mapstructure:"refresh"`
}

// ServerConfig holds MCP server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"` // stdio, http
	Port      int    `mapstructure:"port"`
}

// AssistantConfig configures the relevance assistant used by user_search.
type AssistantConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// Engine drivers.
const (
	DriverSQLite        = "sqlite"
	DriverElasticsearch = "elasticsearch"
)

// Init points v at the config file and environment. An empty cfgFile
// searches for .zonegraph.yaml in the home and working directories. A
// missing config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".zonegraph")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config after applying defaults.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Assistant.APIKey == "" {
		cfg.Assistant.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("engine.driver", DriverSQLite)
	v.SetDefault("engine.data_dir", defaultDataDir())
	v.SetDefault("engine.url", "http://localhost:9200")
	v.SetDefault("engine.username", "")
	v.SetDefault("engine.password", "")
	v.SetDefault("engine.index_prefix", "knowledge-graph")
	v.SetDefault("engine.refresh", true)

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.port", 8081)

	v.SetDefault("assistant.enabled", false)
	v.SetDefault("assistant.model", "gpt-4o-mini")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.base_url", "")
	v.SetDefault("assistant.timeout", 20*time.Second)

	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", 60)
	v.SetDefault("circuit_breaker.timeout", 30)
	v.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".zonegraph", "data")
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Engine.Driver {
	case DriverSQLite:
		if c.Engine.DataDir == "" {
			return fmt.Errorf("engine.data_dir is required for the %s driver", DriverSQLite)
		}
	case DriverElasticsearch:
		if c.Engine.URL == "" {
			return fmt.Errorf("engine.url is required for the %s driver", DriverElasticsearch)
		}
	default:
		return fmt.Errorf("unknown engine.driver %q (use %s or %s)", c.Engine.Driver, DriverSQLite, DriverElasticsearch)
	}
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unknown server.transport %q (use stdio or http)", c.Server.Transport)
	}
	return nil
}

// BreakerInterval is the closed-state counting window.
func (c CircuitBreakerConfig) BreakerInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// BreakerTimeout is how long the breaker stays open.
func (c CircuitBreakerConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
