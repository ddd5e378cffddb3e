package report

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/assessmentreport/internal/domain/assessment"
	"github.com/ehr/assessmentreport/internal/domain/session"
	"github.com/ehr/assessmentreport/internal/platform/auth"
	"github.com/ehr/assessmentreport/internal/platform/blobstore"
	"github.com/ehr/assessmentreport/internal/platform/middleware"
)

// MaxBatchSize caps the number of sessions accepted by one batch request.
const MaxBatchSize = 100

type Handler struct {
	svc   *Service
	batch *BatchGenerator
}

// NewHandler returns report handlers. batch may be nil, in which case the
// batch endpoint is not mounted.
func NewHandler(svc *Service, batch *BatchGenerator) *Handler {
	return &Handler{svc: svc, batch: batch}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleClinician))
	read.POST("/reports", h.GenerateReport)
	read.GET("/reports/:session_id/preview", h.PreviewReport)
	read.GET("/reports/:session_id/html", h.ReportHTML)
	read.GET("/reports/:session_id/download", h.DownloadReport)
	read.GET("/assessments", h.ListAssessments)
	read.GET("/assessments/:id", h.GetAssessment)

	if h.batch != nil {
		write := api.Group("", auth.RequireRole(auth.RoleAdmin))
		write.POST("/reports/batch", h.GenerateBatch)
	}
}

type GenerateRequest struct {
	SessionID string `json:"session_id" validate:"required,max=200"`
}

type GenerateResponse struct {
	Success     bool      `json:"success"`
	File        string    `json:"file"`
	GeneratedAt time.Time `json:"generated_at"`
}

type BatchRequest struct {
	SessionIDs []string `json:"session_ids" validate:"required,min=1,dive,required"`
}

type BatchResponse struct {
	Outcomes []Outcome `json:"outcomes"`
	Failed   int       `json:"failed"`
}

func (h *Handler) GenerateReport(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	c.Set(middleware.AuditSessionKey, req.SessionID)

	res, err := h.svc.Generate(c.Request().Context(), req.SessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, GenerateResponse{Success: true, File: res.File, GeneratedAt: res.GeneratedAt})
}

func (h *Handler) PreviewReport(c echo.Context) error {
	tc, err := h.svc.Preview(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tc)
}

func (h *Handler) ReportHTML(c echo.Context) error {
	markup, err := h.svc.RenderHTML(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return httpError(err)
	}
	return c.HTMLBlob(http.StatusOK, markup)
}

func (h *Handler) DownloadReport(c echo.Context) error {
	rc, meta, err := h.svc.Download(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", meta.Key))
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) GenerateBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if len(req.SessionIDs) > MaxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at most %d sessions per batch", MaxBatchSize))
	}

	outcomes, err := h.batch.Run(c.Request().Context(), req.SessionIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp := BatchResponse{Outcomes: outcomes}
	for _, o := range outcomes {
		if !o.OK() {
			resp.Failed++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListAssessments(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Assessments())
}

func (h *Handler) GetAssessment(c echo.Context) error {
	cfg, err := h.svc.Assessment(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
	}
	return c.JSON(http.StatusOK, cfg)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidRecord):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrReportNotGenerated):
		return echo.NewHTTPError(http.StatusNotFound, "report not generated")
	case errors.Is(err, blobstore.ErrInvalidKey):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	case errors.Is(err, assessment.ErrConfigNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, "assessment config missing")
	case assessment.IsConfigurationError(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "report generation failed").SetInternal(err)
	}
}
