package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the daemon configuration
type Config struct {
	Display   string          `json:"display" yaml:"display" mapstructure:"display"`
	Bus       BusConfig       `json:"bus" yaml:"bus" mapstructure:"bus"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery" mapstructure:"discovery"`
	API       APIConfig       `json:"api" yaml:"api" mapstructure:"api"`
	LogLevel  string          `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool            `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// BusConfig selects the message bus
type BusConfig struct {
	Type string `json:"type" yaml:"type" mapstructure:"type"`
	Name string `json:"name" yaml:"name" mapstructure:"name"`
}

// DiscoveryConfig tunes window discovery and hang detection
type DiscoveryConfig struct {
	Interval    time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
	HangTimeout time.Duration `json:"hang_timeout" yaml:"hang_timeout" mapstructure:"hang_timeout"`
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout"`
}

// APIConfig represents the optional HTTP status API
type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" yaml:"listen" mapstructure:"listen"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		Bus: BusConfig{
			Type: "session",
			Name: "org.shadowblip.Gamescope",
		},
		Discovery: DiscoveryConfig{
			Interval:    2 * time.Second,
			HangTimeout: 30 * time.Second,
			CallTimeout: 2 * time.Second,
		},
		API: APIConfig{
			Listen: "127.0.0.1:8087",
		},
		LogLevel: "info",
	}
}

// SetDefaults registers every key with its default so environment
// overrides and Unmarshal see all of them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("display", d.Display)
	v.SetDefault("bus.type", d.Bus.Type)
	v.SetDefault("bus.name", d.Bus.Name)
	v.SetDefault("discovery.interval", d.Discovery.Interval)
	v.SetDefault("discovery.hang_timeout", d.Discovery.HangTimeout)
	v.SetDefault("discovery.call_timeout", d.Discovery.CallTimeout)
	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	if c.Discovery.Interval <= 0 {
		return fmt.Errorf("discovery.interval must be positive, got %s", c.Discovery.Interval)
	}
	if c.Discovery.CallTimeout <= 0 {
		return fmt.Errorf("discovery.call_timeout must be positive, got %s", c.Discovery.CallTimeout)
	}
	if c.Discovery.HangTimeout <= c.Discovery.Interval {
		return fmt.Errorf("discovery.hang_timeout (%s) must exceed discovery.interval (%s)",
			c.Discovery.HangTimeout, c.Discovery.Interval)
	}
	switch c.Bus.Type {
	case "session", "system":
	default:
		return fmt.Errorf("bus.type must be session or system, got %q", c.Bus.Type)
	}
	if c.Bus.Name == "" {
		return fmt.Errorf("bus.name must not be empty")
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen must be set when the API is enabled")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}
