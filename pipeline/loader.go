package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileLoader loads module definitions from YAML files on disk. A file
// module's nodes reference component functions by name; the loader binds
// them from the component registry.
type FileLoader struct {
	dirs       []string
	components *ComponentRegistry
}

// NewFileLoader creates a loader that searches the given directories for
// module YAML files and binds node components from the registry.
func NewFileLoader(components *ComponentRegistry, dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs, components: components}
}

// Load reads and binds the module definition for name. Dots in the name
// map to subdirectories, so "pipelines.data_prep" loads
// "pipelines/data_prep.yml".
func (l *FileLoader) Load(name string) (*Module, error) {
	rel := strings.ReplaceAll(name, ".", string(filepath.Separator))
	for _, dir := range l.dirs {
		for _, ext := range []string{".yml", ".yaml"} {
			path := filepath.Join(dir, rel+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			return l.loadFile(name, path)
		}
	}
	return nil, os.ErrNotExist
}

// List returns the sorted names of module files found across the
// configured directories.
func (l *FileLoader) List() []string {
	seen := make(map[string]bool)
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := filepath.Ext(e.Name())
			if ext == ".yml" || ext == ".yaml" {
				seen[strings.TrimSuffix(e.Name(), ext)] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *FileLoader) loadFile(name, path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Module
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = name
	}

	for i := range m.Nodes {
		spec := &m.Nodes[i]
		if spec.Component == "" {
			return nil, fmt.Errorf("%s: node %q has no component", path, spec.Name)
		}
		fn, ok := l.components.Get(spec.Component)
		if !ok {
			return nil, fmt.Errorf("%s: component %q not registered", path, spec.Component)
		}
		spec.Fn = fn
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}
