package config

import (
	"fmt"

	"github.com/legout/flowerpower-sub010/logger"
)

// Backend names selectable in the project document.
const (
	BackendImmediate = "immediate"
	BackendRedis     = "redis"
	BackendScheduler = "scheduler"
)

// Executor types selectable per pipeline or run.
const (
	ExecutorSequential = "sequential"
	ExecutorConcurrent = "concurrent"
)

// ProjectConfig is the project-level configuration document.
type ProjectConfig struct {
	Name     string           `yaml:"name" mapstructure:"name"`
	Backend  string           `yaml:"backend" mapstructure:"backend"`
	Redis    RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Store    StoreConfig      `yaml:"store" mapstructure:"store"`
	Dirs     DirsConfig       `yaml:"dirs" mapstructure:"dirs"`
	Worker   WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Executor ExecutorSelector `yaml:"executor" mapstructure:"executor"`
	Logging  logger.Config    `yaml:"logging" mapstructure:"logging"`
}

// RedisConfig holds connection settings for the durable queue backend.
type RedisConfig struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	Password     string `yaml:"password" mapstructure:"password"`
	DB           int    `yaml:"db" mapstructure:"db"`
	PoolSize     int    `yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeout  string `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  string `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// StoreConfig holds settings for the persistent scheduler store.
type StoreConfig struct {
	// Path is the SQLite database file, or ":memory:" for tests.
	Path string `yaml:"path" mapstructure:"path"`
	// PollInterval is how often the scheduler loop checks for due jobs.
	PollInterval string `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// DirsConfig holds default directories.
type DirsConfig struct {
	Pipelines string `yaml:"pipelines" mapstructure:"pipelines"`
	Cache     string `yaml:"cache" mapstructure:"cache"`
}

// WorkerConfig holds durable queue worker settings.
type WorkerConfig struct {
	Queue        string `yaml:"queue" mapstructure:"queue"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff string `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	PollTimeout  string `yaml:"poll_timeout" mapstructure:"poll_timeout"`
}

// ExecutorSelector selects executor and worker count. Zero values mean
// "not set here"; lower layers or defaults fill them in.
type ExecutorSelector struct {
	Type       string `yaml:"type" mapstructure:"type"`
	MaxWorkers int    `yaml:"max_workers" mapstructure:"max_workers"`
}

// ApplyDefaults applies default values to the project configuration.
func (c *ProjectConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "flowerpower"
	}
	if c.Backend == "" {
		c.Backend = BackendImmediate
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.DialTimeout == "" {
		c.Redis.DialTimeout = "5s"
	}
	if c.Redis.ReadTimeout == "" {
		c.Redis.ReadTimeout = "3s"
	}
	if c.Redis.WriteTimeout == "" {
		c.Redis.WriteTimeout = "3s"
	}
	if c.Store.Path == "" {
		c.Store.Path = ".flowerpower/scheduler.db"
	}
	if c.Store.PollInterval == "" {
		c.Store.PollInterval = "1s"
	}
	if c.Dirs.Pipelines == "" {
		c.Dirs.Pipelines = "pipelines"
	}
	if c.Dirs.Cache == "" {
		c.Dirs.Cache = ".flowerpower/cache"
	}
	if c.Worker.Queue == "" {
		c.Worker.Queue = "default"
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.MaxRetries < 0 {
		c.Worker.MaxRetries = 0
	}
	if c.Worker.RetryBackoff == "" {
		c.Worker.RetryBackoff = "1s"
	}
	if c.Worker.PollTimeout == "" {
		c.Worker.PollTimeout = "1s"
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	switch c.Backend {
	case BackendImmediate, BackendRedis, BackendScheduler:
	default:
		return fmt.Errorf("backend must be one of [%s, %s, %s] (got: %s)",
			BackendImmediate, BackendRedis, BackendScheduler, c.Backend)
	}
	if c.Executor.Type != "" && c.Executor.Type != ExecutorSequential && c.Executor.Type != ExecutorConcurrent {
		return fmt.Errorf("executor.type must be %q or %q (got: %s)",
			ExecutorSequential, ExecutorConcurrent, c.Executor.Type)
	}
	if c.Executor.MaxWorkers < 0 {
		return fmt.Errorf("executor.max_workers must not be negative (got: %d)", c.Executor.MaxWorkers)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
