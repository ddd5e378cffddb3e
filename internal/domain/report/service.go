package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ehr/assessmentreport/internal/domain/assessment"
	"github.com/ehr/assessmentreport/internal/domain/session"
	"github.com/ehr/assessmentreport/internal/platform/auth"
	"github.com/ehr/assessmentreport/internal/platform/blobstore"
	"github.com/ehr/assessmentreport/internal/platform/render"
)

// PDFContentType is the content type of stored reports.
const PDFContentType = "application/pdf"

var ErrReportNotGenerated = errors.New("report not generated")

// SessionSource looks up captured sessions.
type SessionSource interface {
	Get(ctx context.Context, sessionID string) (*session.Record, error)
}

// HTMLRenderer executes a named report template.
type HTMLRenderer interface {
	RenderHTML(name string, data interface{}) ([]byte, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Sessions  SessionSource
	Registry  *assessment.Registry
	Templates HTMLRenderer
	PDF       render.PDFRenderer
	Artifacts blobstore.BlobStore
	Context   *ContextBuilder
	Logger    zerolog.Logger
}

// Service drives a session through assembly, rendering and storage.
type Service struct {
	sessions  SessionSource
	registry  *assessment.Registry
	templates HTMLRenderer
	pdf       render.PDFRenderer
	artifacts blobstore.BlobStore
	builder   *ContextBuilder
	logger    zerolog.Logger
}

func NewService(d Deps) *Service {
	builder := d.Context
	if builder == nil {
		builder = NewContextBuilder()
	}
	return &Service{
		sessions:  d.Sessions,
		registry:  d.Registry,
		templates: d.Templates,
		pdf:       d.PDF,
		artifacts: d.Artifacts,
		builder:   builder,
		logger:    d.Logger.With().Str("component", "report-service").Logger(),
	}
}

// ReportKey is the artifact key of a session's PDF.
func ReportKey(sessionID string) string {
	return sessionID + ".pdf"
}

// Preview assembles the template context for a session without rendering.
func (s *Service) Preview(ctx context.Context, sessionID string) (*TemplateContext, error) {
	tc, _, err := s.prepare(ctx, sessionID)
	return tc, err
}

// RenderHTML returns the report markup for a session.
func (s *Service) RenderHTML(ctx context.Context, sessionID string) ([]byte, error) {
	tc, cfg, err := s.prepare(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.renderHTML(cfg, tc)
}

// Generate renders the session's report to PDF and stores it under
// ReportKey, replacing any earlier copy.
func (s *Service) Generate(ctx context.Context, sessionID string) (*Result, error) {
	tc, cfg, err := s.prepare(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	markup, err := s.renderHTML(cfg, tc)
	if err != nil {
		return nil, err
	}
	if s.pdf == nil {
		return nil, errors.New("no PDF renderer configured")
	}
	doc, err := s.pdf.RenderPDF(ctx, markup)
	if err != nil {
		return nil, fmt.Errorf("render pdf for %s: %w", sessionID, err)
	}

	meta, err := s.artifacts.Put(ctx, blobstore.BlobMetadata{
		Key:         ReportKey(sessionID),
		ContentType: PDFContentType,
		CreatedBy:   auth.UserIDFromContext(ctx),
		Tags: map[string]string{
			"session_id":    tc.SessionID,
			"assessment_id": tc.AssessmentID,
			"template":      cfg.TemplateName(),
		},
	}, bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("store report for %s: %w", sessionID, err)
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Str("assessment_id", tc.AssessmentID).
		Str("file", meta.Key).
		Int64("size", meta.Size).
		Msg("report generated")

	return &Result{File: meta.Key, GeneratedAt: meta.CreatedAt, Artifact: meta, Context: tc}, nil
}

// Download opens a previously generated report.
func (s *Service) Download(ctx context.Context, sessionID string) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	rc, meta, err := s.artifacts.Get(ctx, ReportKey(sessionID))
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrReportNotGenerated
	}
	return rc, meta, err
}

// Assessments lists the registered assessment configurations.
func (s *Service) Assessments() []*assessment.Config {
	return s.registry.List()
}

func (s *Service) Assessment(id string) (*assessment.Config, error) {
	return s.registry.Lookup(id)
}

func (s *Service) prepare(ctx context.Context, sessionID string) (*TemplateContext, *assessment.Config, error) {
	rec, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.registry.Lookup(rec.AssessmentID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("assessment config missing")
		return nil, nil, err
	}
	sections, err := Assemble(rec.Data, cfg)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("assessment config invalid for record")
		return nil, nil, err
	}
	tc := s.builder.Build(rec.SessionID, rec.AssessmentID, sections)
	return &tc, cfg, nil
}

func (s *Service) renderHTML(cfg *assessment.Config, tc *TemplateContext) ([]byte, error) {
	markup, err := s.templates.RenderHTML(cfg.TemplateName(), tc)
	if err != nil {
		return nil, fmt.Errorf("render template for %s: %w", tc.SessionID, err)
	}
	return markup, nil
}
