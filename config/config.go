// Package config loads and validates the server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine struct {
		Levels       int    `yaml:"levels"`
		RingCapacity uint64 `yaml:"ring_capacity"`
		PoolCapacity int    `yaml:"pool_capacity"`
	} `yaml:"engine"`

	Pricing struct {
		Tick     decimal.Decimal `yaml:"tick"`
		MinPrice decimal.Decimal `yaml:"min_price"`
	} `yaml:"pricing"`

	WAL struct {
		Dir             string        `yaml:"dir"`
		SegmentSize     int64         `yaml:"segment_size"`
		SegmentDuration time.Duration `yaml:"segment_duration"`
	} `yaml:"wal"`

	Outbox struct {
		Dir           string        `yaml:"dir"`
		DrainInterval time.Duration `yaml:"drain_interval"`
	} `yaml:"outbox"`

	Kafka struct {
		Brokers     []string `yaml:"brokers"`
		FeedTopic   string   `yaml:"feed_topic"`
		TradesTopic string   `yaml:"trades_topic"`
	} `yaml:"kafka"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Storage struct {
		Path          string        `yaml:"path"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{}
	cfg.Engine.Levels = 20001
	cfg.Engine.RingCapacity = 4096
	cfg.Engine.PoolCapacity = 3_000_000
	cfg.Pricing.Tick = decimal.RequireFromString("0.01")
	cfg.Pricing.MinPrice = decimal.Zero
	cfg.WAL.Dir = "./data/wal"
	cfg.WAL.SegmentSize = 2 * 1024 * 1024
	cfg.WAL.SegmentDuration = time.Minute
	cfg.Outbox.Dir = "./data/outbox"
	cfg.Outbox.DrainInterval = 250 * time.Millisecond
	cfg.HTTP.Addr = ":8080"
	cfg.Storage.Path = "./data/trades.db"
	cfg.Storage.FlushInterval = time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "./logs"
	return cfg
}

func (c *Config) Validate() error {
	if c.Engine.Levels <= 0 || c.Engine.Levels%2 == 0 {
		return fmt.Errorf("engine.levels must be a positive odd number, got %d", c.Engine.Levels)
	}
	if c.Engine.RingCapacity == 0 || c.Engine.RingCapacity&(c.Engine.RingCapacity-1) != 0 {
		return fmt.Errorf("engine.ring_capacity must be a power of two, got %d", c.Engine.RingCapacity)
	}
	if c.Engine.PoolCapacity <= 0 {
		return fmt.Errorf("engine.pool_capacity must be positive, got %d", c.Engine.PoolCapacity)
	}
	if !c.Pricing.Tick.IsPositive() {
		return fmt.Errorf("pricing.tick must be positive, got %s", c.Pricing.Tick)
	}
	if c.WAL.Dir == "" {
		return fmt.Errorf("wal.dir is required")
	}
	if c.WAL.SegmentSize <= 0 {
		return fmt.Errorf("wal.segment_size must be positive, got %d", c.WAL.SegmentSize)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
