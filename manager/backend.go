package manager

import (
	"context"
	"path/filepath"
	"time"

	"github.com/legout/flowerpower-sub010/backend"
	"github.com/legout/flowerpower-sub010/backend/redisq"
	"github.com/legout/flowerpower-sub010/backend/schedstore"
	"github.com/legout/flowerpower-sub010/config"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

// openBackend constructs the job engine the project document selects.
func openBackend(ctx context.Context, root string, project *config.ProjectConfig, callables *backend.CallableRegistry, log *logger.Logger) (backend.Backend, error) {
	switch project.Backend {
	case config.BackendImmediate:
		return backend.NewImmediate(callables, log), nil
	case config.BackendRedis:
		return redisq.New(ctx, redisConfig(project), callables, log)
	case config.BackendScheduler:
		return schedstore.New(schedulerConfig(root, project), callables, log)
	}
	return nil, fperrors.Configuration("backend", "project config",
		"unknown backend "+project.Backend)
}

func redisConfig(project *config.ProjectConfig) redisq.Config {
	return redisq.Config{
		Addr:         project.Redis.Addr,
		Password:     project.Redis.Password,
		DB:           project.Redis.DB,
		PoolSize:     project.Redis.PoolSize,
		DialTimeout:  parseDuration(project.Redis.DialTimeout),
		ReadTimeout:  parseDuration(project.Redis.ReadTimeout),
		WriteTimeout: parseDuration(project.Redis.WriteTimeout),
		DefaultQueue: project.Worker.Queue,
		Concurrency:  project.Worker.Concurrency,
		MaxRetries:   project.Worker.MaxRetries,
		RetryBackoff: parseDuration(project.Worker.RetryBackoff),
		PollInterval: parseDuration(project.Worker.PollTimeout),
	}
}

func schedulerConfig(root string, project *config.ProjectConfig) schedstore.Config {
	path := project.Store.Path
	if path != ":memory:" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return schedstore.Config{
		Path:         path,
		PollInterval: parseDuration(project.Store.PollInterval),
	}
}

// parseDuration tolerates empty and malformed values; the backend's own
// defaults fill in zero.
func parseDuration(v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
