package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/assessmentreport/internal/config"
	"github.com/ehr/assessmentreport/internal/domain/assessment"
	"github.com/ehr/assessmentreport/internal/domain/identity"
	"github.com/ehr/assessmentreport/internal/domain/report"
	"github.com/ehr/assessmentreport/internal/domain/session"
	"github.com/ehr/assessmentreport/internal/platform/auth"
	"github.com/ehr/assessmentreport/internal/platform/blobstore"
	"github.com/ehr/assessmentreport/internal/platform/db"
	"github.com/ehr/assessmentreport/internal/platform/render"
)

// app holds the wired services shared by the server and the offline
// commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool      *pgxpool.Pool
	sessions  *session.Service
	users     identity.Repository
	tokens    *auth.TokenIssuer
	registry  *assessment.Registry
	artifacts blobstore.BlobStore
	reports   *report.Service
	batch     *report.BatchGenerator

	closers []func()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(lvl)
	}
	return logger
}

// newApp wires stores and services from cfg. pdf overrides the headless
// Chrome renderer when non-nil.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pdf render.PDFRenderer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var sessionRepo session.Repository
	if cfg.UseDatabase() {
		a.pool, err = db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.pool.Close)
		logger.Info().Msg("connected to database")

		sessionRepo = session.NewRepoPG(a.pool)
		a.users = identity.NewRepoPG(a.pool)
	} else {
		var mem *session.MemoryRepo
		if cfg.SessionsFile != "" {
			mem, err = session.NewFileRepo(cfg.SessionsFile)
		} else {
			mem, err = session.NewSampleRepo()
		}
		if err != nil {
			return nil, err
		}
		logger.Warn().Msg("DATABASE_URL not set, using in-memory session and user stores")

		sessionRepo = mem
		a.users = identity.NewMemoryRepo()
	}
	a.sessions = session.NewService(sessionRepo)

	a.registry, err = assessment.Load(cfg.AssessmentConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load assessment configs: %w", err)
	}
	logger.Info().Strs("assessments", a.registry.IDs()).Msg("assessment configs loaded")

	if cfg.ReportsDir != "" {
		a.artifacts, err = blobstore.NewFileBlobStore(cfg.ReportsDir)
		if err != nil {
			return nil, err
		}
	} else {
		a.artifacts = blobstore.NewInMemoryBlobStore()
	}

	if cfg.JWTSecret != "" && cfg.ResolvedAuthMode() != config.AuthModeExternal {
		a.tokens, err = auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.AuthIssuer, cfg.AuthAudience, cfg.TokenTTL)
		if err != nil {
			return nil, err
		}
	}

	templates, err := render.NewTemplateRenderer()
	if err != nil {
		return nil, err
	}

	if pdf == nil {
		chrome := render.NewRodRenderer(render.RodConfig{
			ControlURL: cfg.ChromeURL,
			Bin:        cfg.ChromeBin,
			NoSandbox:  cfg.ChromeNoSandbox,
			Timeout:    cfg.RenderTimeout,
		}, logger)
		a.closers = append(a.closers, func() {
			if err := chrome.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close browser")
			}
		})
		pdf = chrome
	}

	a.reports = report.NewService(report.Deps{
		Sessions:  a.sessions,
		Registry:  a.registry,
		Templates: templates,
		PDF:       pdf,
		Artifacts: a.artifacts,
		Logger:    logger,
	})
	a.batch = report.NewBatchGenerator(a.reports, cfg.BatchConcurrency, logger)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
