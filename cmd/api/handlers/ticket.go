package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/middleware"
	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
)

// TicketHandler handles the ticket workflow
type TicketHandler struct {
	log       *logger.Logger
	tickets   *service.TicketService
	shortlist *service.ShortlistService
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(c *container.Container) *TicketHandler {
	return &TicketHandler{
		log:       c.Components.Logger,
		tickets:   c.TicketService,
		shortlist: c.ShortlistService,
	}
}

// Create opens a ticket
// POST /api/tickets
func (h *TicketHandler) Create(c echo.Context) error {
	var req service.CreateTicketRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ticket, err := h.tickets.Create(c.Request().Context(), middleware.GetAddress(c), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, ticket)
}

// List lists tickets with optional filters
// GET /api/tickets?status=open&client=0x...&analyst=0x...&certifier=0x...&limit=20
func (h *TicketHandler) List(c echo.Context) error {
	limit, offset := pagination(c)
	filter := models.TicketFilter{
		ClientAddress: c.QueryParam("client"),
		Analyst:       c.QueryParam("analyst"),
		Certifier:     c.QueryParam("certifier"),
		Limit:         limit,
		Offset:        offset,
	}

	if s := c.QueryParam("status"); s != "" {
		status, err := models.ParseTicketStatus(s)
		if err != nil {
			return badRequest(c, err.Error())
		}
		filter.Status = status
	}

	tickets, err := h.tickets.List(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// PendingAnalysis lists tickets waiting on an analyst
// GET /api/tickets/pending-analysis?limit=20
func (h *TicketHandler) PendingAnalysis(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	tickets, err := h.tickets.PendingAnalysis(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// ListByClient lists the tickets a client opened
// GET /api/tickets/client/:address
func (h *TicketHandler) ListByClient(c echo.Context) error {
	limit, offset := pagination(c)

	tickets, err := h.tickets.ListByClient(c.Request().Context(), c.Param("address"), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// Get returns a ticket and the actions the caller can take on it
// GET /api/tickets/:id
func (h *TicketHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	view, err := h.tickets.View(c.Request().Context(), id, middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// AssignAnalyst adds the caller as an analyst
// POST /api/tickets/:id/assign-analyst
func (h *TicketHandler) AssignAnalyst(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	ticket, err := h.tickets.AssignAnalyst(c.Request().Context(), id, middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

// SubmitReport stores the caller's analysis
// POST /api/tickets/:id/submit-report
func (h *TicketHandler) SubmitReport(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	var req struct {
		Report string `json:"report"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ticket, err := h.tickets.SubmitReport(c.Request().Context(), id, middleware.GetAddress(c), req.Report)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

// AssignCertifier sets the caller as certifier
// POST /api/tickets/:id/assign-certifier
func (h *TicketHandler) AssignCertifier(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	ticket, err := h.tickets.AssignCertifier(c.Request().Context(), id, middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

// Validate records the certifier's verdict
// POST /api/tickets/:id/validate
func (h *TicketHandler) Validate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	var req struct {
		Approved *bool `json:"approved"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Approved == nil {
		return badRequest(c, "approved is required")
	}

	ticket, err := h.tickets.Validate(c.Request().Context(), id, middleware.GetAddress(c), *req.Approved)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

// Complete closes a validated ticket and pays rewards
// POST /api/tickets/:id/complete
func (h *TicketHandler) Complete(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	result, err := h.tickets.Complete(c.Request().Context(), id, middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ListShortlist lists analysts who applied to a ticket
// GET /api/tickets/:id/shortlist
func (h *TicketHandler) ListShortlist(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	entries, err := h.shortlist.List(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"shortlist": entries,
		"count":     len(entries),
	})
}

// AddShortlist applies the calling analyst to a ticket
// POST /api/tickets/:id/shortlist
func (h *TicketHandler) AddShortlist(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	entry, err := h.shortlist.Add(c.Request().Context(), id, middleware.GetAddress(c), req.Note)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// RemoveShortlist withdraws an application
// DELETE /api/tickets/:id/shortlist/:address
func (h *TicketHandler) RemoveShortlist(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}

	if err := h.shortlist.Remove(c.Request().Context(), id, c.Param("address"), middleware.GetAddress(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
