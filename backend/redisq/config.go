package redisq

import (
	"fmt"
	"time"
)

// Config holds connection and worker settings for the Redis engine.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string `mapstructure:"addr"`

	// Password is the Redis server password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`

	// PoolSize is the maximum number of socket connections.
	PoolSize int `mapstructure:"pool_size"`

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// DefaultQueue receives jobs submitted without an explicit queue.
	DefaultQueue string `mapstructure:"default_queue"`

	// Concurrency is the number of consumer goroutines per queue.
	Concurrency int `mapstructure:"concurrency"`

	// MaxRetries is how many times a failing job is re-attempted before
	// it lands in the dead set.
	MaxRetries int `mapstructure:"max_retries"`

	// RetryBackoff is the base delay before a retry; attempt n waits
	// n times this long.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// PollInterval is how long an idle consumer or the scheduler loop
	// sleeps between checks.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.DefaultQueue == "" {
		c.DefaultQueue = "default"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("db must be non-negative, got %d", c.DB)
	}
	return nil
}
