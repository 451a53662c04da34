package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Package-level singleton instance
var clientInstance *redis.Client

// Config Redis 配置
type Config struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Enabled  bool   `toml:"enabled"`

	// ScanCount is the COUNT hint used when iterating keys with SCAN.
	ScanCount int64 `toml:"scan_count"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required when redis is enabled")
	}
	if c.DB < 0 {
		return fmt.Errorf("db must not be negative")
	}
	if c.ScanCount < 0 {
		return fmt.Errorf("scan_count must not be negative")
	}
	return nil
}

// NewClient builds a client from cfg and checks the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// Init initializes the Redis client singleton with config.
func Init(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	client, err := NewClient(cfg)
	if err != nil {
		return err
	}

	clientInstance = client
	return nil
}

// Client returns the singleton Redis client instance.
// Returns nil if Redis is not enabled or not initialized.
func Client() *redis.Client {
	return clientInstance
}

// Close closes the Redis client connection.
func Close() error {
	if clientInstance == nil {
		return nil
	}
	err := clientInstance.Close()
	clientInstance = nil
	return err
}
