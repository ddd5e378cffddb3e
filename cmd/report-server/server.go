package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/ehr/assessmentreport/internal/config"
	"github.com/ehr/assessmentreport/internal/domain/identity"
	"github.com/ehr/assessmentreport/internal/domain/report"
	"github.com/ehr/assessmentreport/internal/domain/session"
	"github.com/ehr/assessmentreport/internal/platform/auth"
	"github.com/ehr/assessmentreport/internal/platform/blobstore"
	"github.com/ehr/assessmentreport/internal/platform/db"
	"github.com/ehr/assessmentreport/internal/platform/middleware"
	"github.com/ehr/assessmentreport/migrations"
	"github.com/ehr/assessmentreport/pkg/validation"
)

const shutdownTimeout = 10 * time.Second

func runServer(cfg *config.Config, migrate bool) error {
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise")
		return err
	}
	defer a.Close()

	if migrate && a.pool != nil {
		count, err := db.NewMigrator(a.pool, migrations.FS).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", count).Msg("migrations applied")
	}

	e := newServer(a)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		if cfg.TLSEnabled {
			errCh <- e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			errCh <- e.Start(addr)
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with the full middleware chain and all
// routes mounted.
func newServer(a *app) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders:    []string{echo.HeaderContentDisposition},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.IngestBodyLimit))

	// Auth middleware
	switch cfg.ResolvedAuthMode() {
	case config.AuthModeDevelopment:
		logger.Warn().Msg("development auth mode: every request is treated as an admin")
		e.Use(auth.DevAuthMiddleware())
	case config.AuthModeExternal:
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	default:
		jwtCfg := a.tokens.Config()
		jwtCfg.Skipper = auth.AuthSkipper
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))

	// API
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg), middleware.RequestTimeout(cfg.RequestTimeout))

	if a.tokens != nil {
		identity.NewHandler(identity.NewService(a.users, a.tokens)).RegisterRoutes(apiV1.Group("/auth"))
	}
	session.NewHandler(a.sessions).RegisterRoutes(apiV1)
	report.NewHandler(a.reports, a.batch).RegisterRoutes(apiV1)
	blobstore.NewBlobHandler(a.artifacts).RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleAdmin)))

	return e
}
