package config

import (
	"runtime"
	"strconv"
	"strings"

	fperrors "github.com/legout/flowerpower-sub010/errors"
)

// RunConfig is the fully resolved configuration for a single execution.
// Every field is concrete after Resolve; the struct is treated as
// immutable for the duration of one run.
type RunConfig struct {
	Pipeline    string
	FinalVars   []string
	Inputs      map[string]any
	Executor    ExecutorSelector
	Adapters    ResolvedAdapters
	Cache       bool
	CacheDir    string
	LogLevel    string
	Reload      bool
	Async       bool
	Schedule    string
	WithModules []string
}

// ResolvedAdapters are the concrete adapter toggles for one run.
type ResolvedAdapters struct {
	Logging bool
	Tracker bool
	Tracing bool
}

// Overrides are explicit runtime arguments, the highest-precedence layer.
// Pointer fields mark presence: a nil pointer means "not set", so an
// override that happens to equal the compiled-in default still wins.
type Overrides struct {
	Inputs       map[string]any
	FinalVars    []string
	ExecutorType *string
	MaxWorkers   *int
	Cache        *bool
	LogLevel     *string
	Reload       *bool
	Async        *bool
	WithModules  []string
}

// envPrefix is the prefix of both the nested environment overlay
// (FP_SECTION__FIELD) and the legacy global shims.
const envPrefix = "FP_"

// Resolve merges the five configuration layers into a concrete RunConfig.
// Precedence, highest wins: runtime overrides, environment overlay,
// pipeline then project documents, legacy shims, compiled-in defaults.
// Fields merge one by one; a value from a lower layer survives whenever no
// higher layer sets that field.
func Resolve(project *ProjectConfig, pipeline *PipelineConfig, env map[string]string, ov Overrides) (*RunConfig, error) {
	if project == nil {
		project = &ProjectConfig{}
		project.ApplyDefaults()
	}
	if pipeline == nil {
		pipeline = &PipelineConfig{}
	}

	// Layer 5: compiled-in defaults.
	cfg := &RunConfig{
		Pipeline: pipeline.Name,
		Executor: ExecutorSelector{
			Type:       ExecutorSequential,
			MaxWorkers: runtime.NumCPU(),
		},
		Adapters: ResolvedAdapters{Logging: true},
		Inputs:   map[string]any{},
		LogLevel: "info",
		CacheDir: project.Dirs.Cache,
	}

	// Layer 4: legacy global shims.
	if v := env[envPrefix+"LOG_LEVEL"]; v != "" {
		cfg.LogLevel = v
	}
	if v := env[envPrefix+"EXECUTOR"]; v != "" {
		if err := validExecutorType(v, "environment shim "+envPrefix+"EXECUTOR"); err != nil {
			return nil, err
		}
		cfg.Executor.Type = v
	}
	if v := env[envPrefix+"CACHE_DIR"]; v != "" {
		cfg.CacheDir = v
	}

	// Layer 3: project document, then pipeline document on top.
	applySelector(cfg, project.Executor)
	applySelector(cfg, pipeline.Executor)
	if len(pipeline.FinalVars) > 0 {
		cfg.FinalVars = append([]string(nil), pipeline.FinalVars...)
	}
	for k, v := range pipeline.Params {
		cfg.Inputs[k] = v
	}
	if pipeline.Cache != nil {
		cfg.Cache = *pipeline.Cache
	}
	if pipeline.Adapters.Logging != nil {
		cfg.Adapters.Logging = *pipeline.Adapters.Logging
	}
	if pipeline.Adapters.Tracker != nil {
		cfg.Adapters.Tracker = *pipeline.Adapters.Tracker
	}
	if pipeline.Adapters.Tracing != nil {
		cfg.Adapters.Tracing = *pipeline.Adapters.Tracing
	}
	if pipeline.Schedule != "" {
		cfg.Schedule = pipeline.Schedule
	}
	if len(pipeline.WithModules) > 0 {
		cfg.WithModules = append([]string(nil), pipeline.WithModules...)
	}

	// Layer 2: nested environment overlay (FP_SECTION__FIELD).
	if err := applyEnvOverlay(cfg, env); err != nil {
		return nil, err
	}

	// Layer 1: explicit runtime overrides.
	for k, v := range ov.Inputs {
		cfg.Inputs[k] = v
	}
	if len(ov.FinalVars) > 0 {
		cfg.FinalVars = append([]string(nil), ov.FinalVars...)
	}
	if ov.ExecutorType != nil {
		if err := validExecutorType(*ov.ExecutorType, "runtime override"); err != nil {
			return nil, err
		}
		cfg.Executor.Type = *ov.ExecutorType
	}
	if ov.MaxWorkers != nil {
		cfg.Executor.MaxWorkers = *ov.MaxWorkers
	}
	if ov.Cache != nil {
		cfg.Cache = *ov.Cache
	}
	if ov.LogLevel != nil {
		cfg.LogLevel = *ov.LogLevel
	}
	if ov.Reload != nil {
		cfg.Reload = *ov.Reload
	}
	if ov.Async != nil {
		cfg.Async = *ov.Async
	}
	if len(ov.WithModules) > 0 {
		cfg.WithModules = append(append([]string(nil), cfg.WithModules...), ov.WithModules...)
	}

	if cfg.Executor.MaxWorkers <= 0 {
		return nil, fperrors.Configuration("executor.max_workers", "resolved configuration",
			"must be a positive integer")
	}
	return cfg, nil
}

// applySelector overlays a document executor selector field by field.
func applySelector(cfg *RunConfig, sel ExecutorSelector) {
	if sel.Type != "" {
		cfg.Executor.Type = sel.Type
	}
	if sel.MaxWorkers > 0 {
		cfg.Executor.MaxWorkers = sel.MaxWorkers
	}
}

// applyEnvOverlay applies the documented double-underscore nesting
// convention: FP_EXECUTOR__TYPE, FP_EXECUTOR__MAX_WORKERS, FP_RUN__CACHE,
// FP_RUN__RELOAD, FP_RUN__ASYNC, FP_RUN__LOG_LEVEL, FP_RUN__CACHE_DIR.
// Unknown FP_ variables are ignored; type-incompatible values fail fast.
func applyEnvOverlay(cfg *RunConfig, env map[string]string) error {
	for key, val := range env {
		if !strings.HasPrefix(key, envPrefix) || !strings.Contains(key, "__") || val == "" {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(key, envPrefix), "__", 2)
		section, field := strings.ToLower(parts[0]), strings.ToLower(parts[1])

		switch section + "." + field {
		case "executor.type":
			if err := validExecutorType(val, "environment overlay "+key); err != nil {
				return err
			}
			cfg.Executor.Type = val
		case "executor.max_workers":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fperrors.Configuration(key, "environment overlay", "expected integer, got "+val)
			}
			cfg.Executor.MaxWorkers = n
		case "run.cache":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fperrors.Configuration(key, "environment overlay", "expected boolean, got "+val)
			}
			cfg.Cache = b
		case "run.reload":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fperrors.Configuration(key, "environment overlay", "expected boolean, got "+val)
			}
			cfg.Reload = b
		case "run.async":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fperrors.Configuration(key, "environment overlay", "expected boolean, got "+val)
			}
			cfg.Async = b
		case "run.log_level":
			cfg.LogLevel = val
		case "run.cache_dir":
			cfg.CacheDir = val
		}
	}
	return nil
}

func validExecutorType(v, source string) error {
	if v != ExecutorSequential && v != ExecutorConcurrent {
		return fperrors.Configuration("executor.type", source,
			"must be "+ExecutorSequential+" or "+ExecutorConcurrent+" (got: "+v+")")
	}
	return nil
}
