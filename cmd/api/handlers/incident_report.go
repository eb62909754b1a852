package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/middleware"
	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/logger"
)

// maxPatchBytes bounds a merge patch body
const maxPatchBytes = 1 << 20

// IncidentReportHandler handles incident reports
type IncidentReportHandler struct {
	log     *logger.Logger
	service *service.IncidentReportService
}

// NewIncidentReportHandler creates a new incident report handler
func NewIncidentReportHandler(c *container.Container) *IncidentReportHandler {
	return &IncidentReportHandler{
		log:     c.Components.Logger,
		service: c.ReportService,
	}
}

// Create submits a new incident report
// POST /api/incident-reports
func (h *IncidentReportHandler) Create(c echo.Context) error {
	var req service.CreateReportRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	report, err := h.service.Create(c.Request().Context(), middleware.GetAddress(c), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, report)
}

// List lists reports, optionally for one reporter
// GET /api/incident-reports?reporter=0x...&limit=20&offset=0
func (h *IncidentReportHandler) List(c echo.Context) error {
	limit, offset := pagination(c)

	reports, err := h.service.List(c.Request().Context(), c.QueryParam("reporter"), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// Get returns one report
// GET /api/incident-reports/:id
func (h *IncidentReportHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid report id")
	}

	report, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, report)
}

// Patch applies a JSON merge patch to a report
// PATCH /api/incident-reports/:id
func (h *IncidentReportHandler) Patch(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid report id")
	}

	patch, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPatchBytes))
	if err != nil {
		return badRequest(c, "failed to read request body")
	}
	if len(patch) == 0 {
		return badRequest(c, "patch body is required")
	}

	report, err := h.service.Patch(c.Request().Context(), id, middleware.GetAddress(c), patch)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, report)
}

// Analyze runs AI triage on a report
// POST /api/incident-reports/:id/analyze
func (h *IncidentReportHandler) Analyze(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid report id")
	}

	report, err := h.service.Analyze(c.Request().Context(), id, middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, report)
}
