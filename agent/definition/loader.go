package definition

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader loads agent definitions from an external source of truth.
type Loader interface {
	LoadAgentDefinitions(ctx context.Context) ([]*Definition, error)
}

// StaticLoader serves definitions held in memory.
type StaticLoader []*Definition

// LoadAgentDefinitions implements Loader.
func (s StaticLoader) LoadAgentDefinitions(context.Context) ([]*Definition, error) {
	out := make([]*Definition, 0, len(s))
	for _, d := range s {
		out = append(out, d.Clone())
	}
	return out, nil
}

// YAMLLoader reads one agent definition per *.yaml / *.yml file found under Dir.
// Files are read in lexical path order so trigger collisions resolve
// deterministically.
type YAMLLoader struct {
	Dir string
}

// NewYAMLLoader creates a loader for dir.
func NewYAMLLoader(dir string) *YAMLLoader {
	return &YAMLLoader{Dir: dir}
}

// LoadAgentDefinitions implements Loader.
func (l *YAMLLoader) LoadAgentDefinitions(ctx context.Context) ([]*Definition, error) {
	var paths []string
	err := filepath.WalkDir(l.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent directory %s: %w", l.Dir, err)
	}
	slices.Sort(paths)

	defs := make([]*Definition, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParseFile decodes a single YAML agent definition.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent file %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a YAML agent definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse agent definition: %w", err)
	}
	return &def, nil
}

// Load runs loader once and builds the process-wide registry.
func Load(ctx context.Context, loader Loader, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defs, err := loader.LoadAgentDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent definitions: %w", err)
	}
	reg, err := NewRegistry(defs)
	if err != nil {
		return nil, err
	}
	logger.Info("agent definitions loaded",
		zap.Int("count", reg.Len()),
		zap.Strings("agents", reg.List()),
	)
	return reg, nil
}
