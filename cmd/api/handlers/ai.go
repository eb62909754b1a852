package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/logger"
)

// AIHandler exposes the security assistant
type AIHandler struct {
	log     *logger.Logger
	service *service.AIService
}

// NewAIHandler creates a new AI handler
func NewAIHandler(c *container.Container) *AIHandler {
	return &AIHandler{
		log:     c.Components.Logger,
		service: c.AIService,
	}
}

// Analyze triages an ad hoc incident description
// POST /api/ai/analyze
func (h *AIHandler) Analyze(c echo.Context) error {
	var req ai.IncidentInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	analysis, err := h.service.Analyze(c.Request().Context(), req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"analysis": analysis,
	})
}

// Chat answers a security question
// POST /api/ai/chat
func (h *AIHandler) Chat(c echo.Context) error {
	var req struct {
		Message string       `json:"message"`
		History []ai.Message `json:"history"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	reply, err := h.service.Chat(c.Request().Context(), req.History, req.Message)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"reply": reply,
	})
}

// AuditReport writes an audit report for a ticket
// POST /api/ai/audit-report
func (h *AIHandler) AuditReport(c echo.Context) error {
	var req struct {
		TicketID int64 `json:"ticket_id"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.TicketID <= 0 {
		return badRequest(c, "ticket_id is required")
	}

	report, err := h.service.AuditReport(c.Request().Context(), req.TicketID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ticket_id": req.TicketID,
		"report":    report,
	})
}
