// Package config holds the runtime tunables of the chat endpoint.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the transport limits and timeouts. All fields have
// working defaults; a yaml file only needs to override what it changes.
type Config struct {
	// Port probing: the listener binds the first free port in a window of
	// PortWindow contiguous ports starting at a random base >= PortBase.
	PortBase   int `yaml:"port_base"`
	PortWindow int `yaml:"port_window"`

	// MaxInbound caps concurrently accepted connections.
	MaxInbound int `yaml:"max_inbound"`

	// PoolSize caps pooled outbound connections.
	PoolSize int `yaml:"pool_size"`

	// MaxMessageSize is the per-chunk byte limit; larger chunks close the
	// offending connection.
	MaxMessageSize int `yaml:"max_message_size"`

	// ConnectTimeout bounds outbound dialing.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IdleTimeout closes inbound connections with no traffic.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		PortBase:       30000,
		PortWindow:     100,
		MaxInbound:     5,
		PoolSize:       3,
		MaxMessageSize: 16 * 1024,
		ConnectTimeout: 5 * time.Second,
		IdleTimeout:    5 * time.Minute,
		LogLevel:       "info",
	}
}

// Load reads a yaml file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the transport cannot operate with.
func (c *Config) Validate() error {
	if c.PortBase < 1024 || c.PortBase > 65535 {
		return fmt.Errorf("port_base %d out of range", c.PortBase)
	}
	if c.PortWindow < 1 || c.PortBase+c.PortWindow > 65535 {
		return fmt.Errorf("port window [%d, %d) out of range", c.PortBase, c.PortBase+c.PortWindow)
	}
	if c.MaxInbound < 1 {
		return fmt.Errorf("max_inbound must be positive, got %d", c.MaxInbound)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	if c.ConnectTimeout <= 0 || c.IdleTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
