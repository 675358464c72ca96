package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	fperrors "github.com/legout/flowerpower-sub010/errors"
)

// ProjectFileName is the conventional project document location, relative
// to the project root.
const ProjectFileName = "conf/project.yml"

// PipelineConfDir is the conventional directory of pipeline documents,
// relative to the project root.
const PipelineConfDir = "conf/pipelines"

// LoadProject loads the project document from root. A missing document is
// not an error; defaults apply. A .env file at the project root is loaded
// into the process environment first so interpolation can see it. The
// caller's env map is never modified; merging happens on a copy.
func LoadProject(root string, env map[string]string) (*ProjectConfig, error) {
	if envFile := filepath.Join(root, ".env"); fileExists(envFile) {
		if err := godotenv.Load(envFile); err == nil {
			merged := make(map[string]string, len(env))
			for k, v := range env {
				merged[k] = v
			}
			for k, v := range EnvFromOS() {
				if _, ok := merged[k]; !ok {
					merged[k] = v
				}
			}
			env = merged
		}
	}

	cfg := &ProjectConfig{}
	path := filepath.Join(root, ProjectFileName)
	if fileExists(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fperrors.MalformedDocument(path, err)
		}
		interpolated, err := Interpolate(string(raw), env, path)
		if err != nil {
			return nil, err
		}

		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(interpolated)); err != nil {
			return nil, fperrors.MalformedDocument(path, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fperrors.MalformedDocument(path, err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fperrors.Configuration("project", path, err.Error()).WithCause(err)
	}
	return cfg, nil
}

// LoadPipelineConfig loads the configuration document for a named pipeline
// from the conventional directory under root. A missing document is not an
// error and yields an empty config.
func LoadPipelineConfig(root, name string, env map[string]string) (*PipelineConfig, error) {
	cfg := &PipelineConfig{Name: name}

	var path string
	for _, ext := range []string{".yml", ".yaml"} {
		candidate := filepath.Join(root, PipelineConfDir, name+ext)
		if fileExists(candidate) {
			path = candidate
			break
		}
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fperrors.MalformedDocument(path, err)
	}
	interpolated, err := Interpolate(string(raw), env, path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fperrors.MalformedDocument(path, err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	if err := cfg.Validate(); err != nil {
		return nil, fperrors.Configuration(name, path, err.Error()).WithCause(err)
	}
	return cfg, nil
}

// EnvFromOS snapshots the process environment into a map.
func EnvFromOS() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
