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

// UserHandler handles user and certifier registration
type UserHandler struct {
	log        *logger.Logger
	auth       *service.AuthService
	users      *service.UserService
	certifiers *service.CertifierService
}

// userResponse is a user profile. Session is set when the caller changed
// their own role, since the role in the old token is stale.
type userResponse struct {
	*models.User
	Session *service.Session `json:"session,omitempty"`
}

// NewUserHandler creates a new user handler
func NewUserHandler(c *container.Container) *UserHandler {
	return &UserHandler{
		log:        c.Components.Logger,
		auth:       c.AuthService,
		users:      c.UserService,
		certifiers: c.CertifierService,
	}
}

// Register registers the calling wallet
// POST /api/users
func (h *UserHandler) Register(c echo.Context) error {
	var req service.RegisterUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" {
		req.Address = middleware.GetAddress(c)
	}

	user, err := h.users.Register(c.Request().Context(), middleware.GetAddress(c), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, h.withSession(c, user))
}

// Get returns a user profile
// GET /api/users/:address
func (h *UserHandler) Get(c echo.Context) error {
	user, err := h.users.Get(c.Request().Context(), c.Param("address"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateRole changes a user's role
// PATCH /api/users/:address/role
func (h *UserHandler) UpdateRole(c echo.Context) error {
	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := h.users.UpdateRole(c.Request().Context(), middleware.GetAddress(c), c.Param("address"), req.Role)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.withSession(c, user))
}

// withSession attaches a refreshed session when user is the caller and the
// session role no longer matches
func (h *UserHandler) withSession(c echo.Context, user *models.User) *userResponse {
	resp := &userResponse{User: user}
	caller := middleware.GetAddress(c)
	if caller == "" || caller != user.WalletAddress || middleware.GetRole(c) == user.Role {
		return resp
	}

	session, err := h.auth.Refresh(c.Request().Context(), caller)
	if err != nil {
		h.log.Warn("failed to refresh session after role change", "address", caller, "error", err)
		return resp
	}
	resp.Session = session
	return resp
}

// ListCertifiers lists registered certifiers
// GET /api/certifiers?limit=50
func (h *UserHandler) ListCertifiers(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	certifiers, err := h.certifiers.List(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"certifiers": certifiers,
		"count":      len(certifiers),
	})
}

// GetCertifier returns one certifier
// GET /api/certifiers/:address
func (h *UserHandler) GetCertifier(c echo.Context) error {
	certifier, err := h.certifiers.Get(c.Request().Context(), c.Param("address"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, certifier)
}

// RegisterCertifier registers or promotes a certifier
// POST /api/certifiers
func (h *UserHandler) RegisterCertifier(c echo.Context) error {
	var req service.RegisterUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	certifier, err := h.certifiers.Register(c.Request().Context(), middleware.GetAddress(c), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("certifier registered", "address", certifier.WalletAddress, "by", middleware.GetAddress(c))
	return c.JSON(http.StatusCreated, certifier)
}
