package assessment

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the declarative report layout for one assessment type.
type Config struct {
	ID             string              `yaml:"id" json:"id"`
	Name           string              `yaml:"name" json:"name"`
	Template       string              `yaml:"template" json:"template,omitempty"`
	Sections       []Section           `yaml:"sections" json:"sections"`
	Classification ClassificationTable `yaml:"classification" json:"classification"`
}

// TemplateName returns the template the report is rendered with.
func (c *Config) TemplateName() string {
	if c.Template == "" {
		return DefaultTemplate
	}
	return c.Template
}

// DefaultTemplate is used when a config does not name a template.
const DefaultTemplate = "base"

// Section is an ordered group of fields. When ItemsFrom is set the section
// is repeated once per element of the array found at that path.
type Section struct {
	ID        string  `yaml:"id" json:"id,omitempty"`
	Title     string  `yaml:"title" json:"title"`
	ItemsFrom string  `yaml:"itemsFrom" json:"items_from,omitempty"`
	Fields    []Field `yaml:"fields" json:"fields"`
}

// Repeated reports whether the section is rendered per array element.
func (s *Section) Repeated() bool { return s.ItemsFrom != "" }

// Field declares how one value is extracted and displayed.
type Field struct {
	Label             string `yaml:"label" json:"label"`
	Path              string `yaml:"path" json:"path"`
	Unit              string `yaml:"unit" json:"unit"`
	ClassificationKey string `yaml:"classificationKey" json:"classification_key,omitempty"`
}

// ClassificationTable maps a classification key to its ordered range rules.
type ClassificationTable map[string][]RangeRule

// RangeRule labels the closed interval [Min, Max].
type RangeRule struct {
	Min   float64 `yaml:"min" json:"min"`
	Max   Bound   `yaml:"max" json:"max"`
	Label string  `yaml:"label" json:"label"`
}

// Contains reports whether v lies inside the rule's closed interval.
func (r RangeRule) Contains(v float64) bool {
	return v >= r.Min && r.Max.admits(v)
}

// Bound is the upper limit of a range rule. The zero value is "not set",
// which the registry rejects; use Limit or Unbounded to build one.
type Bound struct {
	value     float64
	unbounded bool
	set       bool
}

// unboundedLiteral is how an open upper limit is written in config files.
const unboundedLiteral = "unbounded"

// Limit returns a finite upper bound.
func Limit(v float64) Bound { return Bound{value: v, set: true} }

// Unbounded returns an open upper bound.
func Unbounded() Bound { return Bound{unbounded: true, set: true} }

// IsUnbounded reports whether the bound is open.
func (b Bound) IsUnbounded() bool { return b.unbounded }

// IsSet reports whether the bound was declared.
func (b Bound) IsSet() bool { return b.set }

// Value returns the finite limit. It is meaningless for open bounds.
func (b Bound) Value() float64 { return b.value }

func (b Bound) admits(v float64) bool {
	return b.unbounded || v <= b.value
}

// atLeast reports whether the bound is >= v.
func (b Bound) atLeast(v float64) bool {
	return b.unbounded || b.value >= v
}

func (b Bound) String() string {
	if b.unbounded {
		return unboundedLiteral
	}
	return strconv.FormatFloat(b.value, 'f', -1, 64)
}

// UnmarshalYAML accepts a finite number or the literal "unbounded".
func (b *Bound) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Value == unboundedLiteral {
		*b = Unbounded()
		return nil
	}
	var f float64
	if err := node.Decode(&f); err != nil {
		return fmt.Errorf("line %d: max must be a number or %q", node.Line, unboundedLiteral)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("line %d: max must be finite, write %q for an open range", node.Line, unboundedLiteral)
	}
	*b = Limit(f)
	return nil
}

// MarshalYAML writes the bound back in config-file form.
func (b Bound) MarshalYAML() (interface{}, error) {
	if b.unbounded {
		return unboundedLiteral, nil
	}
	return b.value, nil
}

// MarshalJSON encodes open bounds as the string "unbounded".
func (b Bound) MarshalJSON() ([]byte, error) {
	if b.unbounded {
		return json.Marshal(unboundedLiteral)
	}
	return json.Marshal(b.value)
}

// UnmarshalJSON mirrors MarshalJSON.
func (b *Bound) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != unboundedLiteral {
			return fmt.Errorf("max must be a number or %q, got %q", unboundedLiteral, s)
		}
		*b = Unbounded()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("max must be a number or %q", unboundedLiteral)
	}
	*b = Limit(f)
	return nil
}
