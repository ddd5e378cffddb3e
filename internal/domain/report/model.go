package report

import (
	"time"

	"github.com/ehr/assessmentreport/internal/platform/blobstore"
)

// Section is one assembled report section. Non-repeated sections carry a
// single item group; repeated sections carry one per source array element.
type Section struct {
	ID    string      `json:"id,omitempty"`
	Title string      `json:"title"`
	Items []ItemGroup `json:"items"`
}

// ItemGroup holds the fields resolved against one data context.
type ItemGroup struct {
	Fields []Field `json:"fields"`
}

// Field is a resolved, optionally classified value. Value and
// Classification are nil when absent.
type Field struct {
	Label          string      `json:"label"`
	Value          interface{} `json:"value"`
	Unit           string      `json:"unit"`
	Classification *string     `json:"classification"`
}

// TemplateContext is the data handed to the report template.
type TemplateContext struct {
	SessionID    string    `json:"session_id"`
	AssessmentID string    `json:"assessment_id"`
	Timestamp    string    `json:"timestamp"`
	Sections     []Section `json:"sections"`
}

// Result describes a generated report.
type Result struct {
	File        string                  `json:"file"`
	GeneratedAt time.Time               `json:"generated_at"`
	Artifact    *blobstore.BlobMetadata `json:"artifact,omitempty"`
	Context     *TemplateContext        `json:"-"`
}
