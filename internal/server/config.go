package server

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Zereker/docstore/internal/docstore"
	"github.com/Zereker/docstore/pkg/log"
	"github.com/Zereker/docstore/pkg/mq"
	"github.com/Zereker/docstore/pkg/redis"
)

// Config holds all configuration values
type Config struct {
	Server ServerConfig   `toml:"server"`
	Log    log.Config     `toml:"log"`
	Redis  redis.Config   `toml:"redis"`
	Store  StoreConfig    `toml:"store"`
	Kafka  mq.KafkaConfig `toml:"kafka"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Mode string `toml:"mode"` // http, mcp, or both
	Port int    `toml:"port"`
}

// StoreConfig holds the default collection options and per-collection
// overrides.
type StoreConfig struct {
	Mode    string   `toml:"mode"` // document 或 hash
	TTL     string   `toml:"ttl"`
	Indexes []string `toml:"indexes"`

	Collections map[string]CollectionConfig `toml:"collections"`
}

// CollectionConfig overrides the store defaults for one collection.
// Empty fields inherit the defaults.
type CollectionConfig struct {
	Mode    string   `toml:"mode"`
	TTL     string   `toml:"ttl"`
	Indexes []string `toml:"indexes"`
}

// Validate checks server configuration
func (s *ServerConfig) Validate() error {
	if s.Mode == "" {
		s.Mode = "http" // default mode
	}
	switch s.Mode {
	case "http", "mcp", "both":
		// valid
	default:
		return fmt.Errorf("invalid mode: %s, must be http, mcp, or both", s.Mode)
	}
	if s.Mode != "mcp" && (s.Port <= 0 || s.Port > 65535) {
		return fmt.Errorf("port is required and must be between 1 and 65535")
	}
	return nil
}

// Validate checks the defaults and every override.
func (s *StoreConfig) Validate() error {
	if _, err := s.Defaults(); err != nil {
		return err
	}
	if _, err := s.Overrides(); err != nil {
		return err
	}
	return nil
}

// Defaults returns the options used by collections without an override.
func (s *StoreConfig) Defaults() (docstore.Options, error) {
	opts := docstore.Options{
		Mode:    docstore.Mode(s.Mode),
		Indexes: s.Indexes,
	}

	ttl, err := parseTTL(s.TTL)
	if err != nil {
		return opts, err
	}
	opts.TTL = ttl

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Overrides resolves every [store.collections.<name>] table against the
// defaults.
func (s *StoreConfig) Overrides() (map[string]docstore.Options, error) {
	defaults, err := s.Defaults()
	if err != nil {
		return nil, err
	}

	out := make(map[string]docstore.Options, len(s.Collections))
	for name, c := range s.Collections {
		opts := defaults
		if c.Mode != "" {
			opts.Mode = docstore.Mode(c.Mode)
		}
		if c.TTL != "" {
			ttl, err := parseTTL(c.TTL)
			if err != nil {
				return nil, fmt.Errorf("collection %s: %w", name, err)
			}
			opts.TTL = ttl
		}
		if c.Indexes != nil {
			opts.Indexes = c.Indexes
		}
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		out[name] = opts
	}
	return out, nil
}

func parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("ttl is invalid: %w", err)
	}
	return ttl, nil
}

// Validate checks all configuration fields
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	return nil
}

// LoadConfig reads and parses the configuration file
func LoadConfig(filename string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
