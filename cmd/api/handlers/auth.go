package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/logger"
)

// AuthHandler handles wallet sign-in
type AuthHandler struct {
	log     *logger.Logger
	service *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(c *container.Container) *AuthHandler {
	return &AuthHandler{
		log:     c.Components.Logger,
		service: c.AuthService,
	}
}

// Nonce issues a challenge for a wallet to sign
// POST /api/auth/nonce
func (h *AuthHandler) Nonce(c echo.Context) error {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" {
		return badRequest(c, "address is required")
	}

	challenge, err := h.service.Nonce(c.Request().Context(), req.Address)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, challenge)
}

// Verify exchanges a signed challenge for a session token
// POST /api/auth/verify
func (h *AuthHandler) Verify(c echo.Context) error {
	var req struct {
		Address   string `json:"address"`
		Signature string `json:"signature"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.Signature == "" {
		return badRequest(c, "address and signature are required")
	}

	session, err := h.service.Verify(c.Request().Context(), req.Address, req.Signature)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, session)
}
