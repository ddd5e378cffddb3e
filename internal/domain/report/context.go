package report

import "time"

// TimestampLayout is the ISO-8601 UTC form used in report contexts.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ContextBuilder wraps assembled sections with report metadata.
type ContextBuilder struct {
	now func() time.Time
}

// NewContextBuilder returns a builder stamped with the wall clock.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{now: time.Now}
}

// WithClock returns a copy of the builder that reads time from now.
func (b *ContextBuilder) WithClock(now func() time.Time) *ContextBuilder {
	return &ContextBuilder{now: now}
}

// Build returns the template context for one report.
func (b *ContextBuilder) Build(sessionID, assessmentID string, sections []Section) TemplateContext {
	now := time.Now
	if b != nil && b.now != nil {
		now = b.now
	}
	if sections == nil {
		sections = []Section{}
	}
	return TemplateContext{
		SessionID:    sessionID,
		AssessmentID: assessmentID,
		Timestamp:    now().UTC().Format(TimestampLayout),
		Sections:     sections,
	}
}
