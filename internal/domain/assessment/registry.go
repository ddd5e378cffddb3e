package assessment

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// bundledConfigs holds the assessment configs shipped with the binary.
//
//go:embed configs/*.yaml
var bundledConfigs embed.FS

// Bundled returns the embedded config directory.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundledConfigs, "configs")
	if err != nil {
		// configs/ is fixed at compile time
		panic(err)
	}
	return sub
}

// Registry maps assessment type identifiers to their configs. It is
// populated once and never mutated afterwards, so concurrent readers need no
// locking. Configs returned by Lookup are shared and must not be modified.
type Registry struct {
	configs map[string]*Config
	ids     []string
}

// Load builds a registry from dir, or from the bundled configs when dir is
// empty.
func Load(dir string) (*Registry, error) {
	if dir == "" {
		return LoadRegistry(Bundled())
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("assessment config dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("assessment config dir %s is not a directory", dir)
	}
	return LoadRegistry(os.DirFS(dir))
}

// LoadRegistry parses every *.yaml / *.yml file at the top level of fsys.
// A file may hold several YAML documents, one config each.
func LoadRegistry(fsys fs.FS) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read assessment configs: %w", err)
	}

	var configs []*Config
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		parsed, err := parseConfigFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		configs = append(configs, parsed...)
	}

	if len(configs) == 0 {
		return nil, errors.New("no assessment configs found")
	}
	return NewRegistry(configs...)
}

func parseConfigFile(fsys fs.FS, name string) ([]*Config, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var out []*Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	for {
		var cfg Config
		err := dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		out = append(out, &cfg)
	}
	return out, nil
}

// NewRegistry validates configs and indexes them by ID.
func NewRegistry(configs ...*Config) (*Registry, error) {
	r := &Registry{configs: make(map[string]*Config, len(configs))}
	for _, cfg := range configs {
		if cfg == nil {
			return nil, errors.New("nil assessment config")
		}
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		if _, dup := r.configs[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate assessment config %q", cfg.ID)
		}
		r.configs[cfg.ID] = cfg
		r.ids = append(r.ids, cfg.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Lookup returns the config registered for assessmentID.
func (r *Registry) Lookup(assessmentID string) (*Config, error) {
	cfg, ok := r.configs[assessmentID]
	if !ok {
		return nil, &ConfigurationError{AssessmentID: assessmentID, Err: ErrConfigNotFound}
	}
	return cfg, nil
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// List returns the registered configs sorted by ID.
func (r *Registry) List() []*Config {
	out := make([]*Config, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.configs[id])
	}
	return out
}

// Len returns the number of registered configs.
func (r *Registry) Len() int { return len(r.ids) }

// Validate checks a config for structural problems: missing identifiers,
// titles, labels or paths, classification keys without a table, and range
// tables that are unordered or overlapping.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return errors.New("assessment config: id is required")
	}
	if len(cfg.Sections) == 0 {
		return fmt.Errorf("assessment config %q: at least one section is required", cfg.ID)
	}

	for si, sec := range cfg.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			return fmt.Errorf("assessment config %q: section %d has no title", cfg.ID, si)
		}
		for fi, f := range sec.Fields {
			if strings.TrimSpace(f.Label) == "" {
				return fmt.Errorf("assessment config %q: section %q field %d has no label", cfg.ID, sec.Title, fi)
			}
			if strings.TrimSpace(f.Path) == "" {
				return fmt.Errorf("assessment config %q: field %q has no path", cfg.ID, f.Label)
			}
			if f.ClassificationKey != "" {
				if _, ok := cfg.Classification[f.ClassificationKey]; !ok {
					return fmt.Errorf("assessment config %q: field %q references unknown classification %q",
						cfg.ID, f.Label, f.ClassificationKey)
				}
			}
		}
	}

	keys := make([]string, 0, len(cfg.Classification))
	for k := range cfg.Classification {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := validateRules(cfg.Classification[key]); err != nil {
			return fmt.Errorf("assessment config %q: classification %q: %w", cfg.ID, key, err)
		}
	}
	return nil
}

func validateRules(rules []RangeRule) error {
	if len(rules) == 0 {
		return errors.New("no range rules")
	}
	for i, r := range rules {
		if r.Label == "" {
			return fmt.Errorf("rule %d has no label", i)
		}
		if !r.Max.IsSet() {
			return fmt.Errorf("rule %q has no max", r.Label)
		}
		if !r.Max.atLeast(r.Min) {
			return fmt.Errorf("rule %q has min %v above max %s", r.Label, r.Min, r.Max)
		}
		if i == 0 {
			continue
		}
		prev := rules[i-1]
		if r.Min < prev.Min {
			return fmt.Errorf("rule %q is not ordered by min", r.Label)
		}
		if prev.Max.atLeast(r.Min) {
			return fmt.Errorf("rule %q overlaps %q", r.Label, prev.Label)
		}
	}
	return nil
}
