package report

import (
	"errors"

	"github.com/ehr/assessmentreport/internal/domain/assessment"
	"github.com/ehr/assessmentreport/internal/platform/fieldpath"
)

// Assemble resolves and classifies every field of cfg against record,
// producing sections in configuration order. Missing data yields nil values;
// only structural misconfiguration returns an error, in which case no
// sections are returned.
func Assemble(record interface{}, cfg *assessment.Config) ([]Section, error) {
	if cfg == nil {
		return nil, &assessment.ConfigurationError{Err: errors.New("nil assessment config")}
	}

	sections := make([]Section, 0, len(cfg.Sections))
	for i := range cfg.Sections {
		sec := &cfg.Sections[i]
		out := Section{ID: sec.ID, Title: sec.Title}

		if sec.Repeated() {
			items, err := sectionItems(record, cfg.ID, sec)
			if err != nil {
				return nil, err
			}
			out.Items = make([]ItemGroup, 0, len(items))
			for _, item := range items {
				out.Items = append(out.Items, resolveGroup(item, record, sec.Fields, cfg.Classification))
			}
		} else {
			out.Items = []ItemGroup{resolveGroup(record, nil, sec.Fields, cfg.Classification)}
		}
		sections = append(sections, out)
	}
	return sections, nil
}

// sectionItems returns the elements at sec.ItemsFrom. Missing or null is an
// empty list; any other non-array value is a configuration error.
func sectionItems(record interface{}, assessmentID string, sec *assessment.Section) ([]interface{}, error) {
	v, shape := fieldpath.Lookup(record, sec.ItemsFrom)
	switch shape {
	case fieldpath.Array:
		return v.([]interface{}), nil
	case fieldpath.Missing:
		return nil, nil
	default:
		return nil, &assessment.ConfigurationError{
			AssessmentID: assessmentID,
			Section:      sec.Title,
			Path:         sec.ItemsFrom,
			Err:          assessment.ErrItemsNotArray,
		}
	}
}

// resolveGroup resolves fields against primary, falling back to fallback for
// paths primary does not contain.
func resolveGroup(primary, fallback interface{}, fields []assessment.Field, table assessment.ClassificationTable) ItemGroup {
	group := ItemGroup{Fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		value, ok := fieldpath.Resolve(primary, f.Path)
		if !ok && fallback != nil {
			value, _ = fieldpath.Resolve(fallback, f.Path)
		}

		var class *string
		if f.ClassificationKey != "" {
			class = assessment.Classify(f.ClassificationKey, value, table)
		}

		group.Fields = append(group.Fields, Field{
			Label:          f.Label,
			Value:          value,
			Unit:           f.Unit,
			Classification: class,
		})
	}
	return group
}
