package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/middleware"
	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/logger"
)

// TokenHandler handles CLT and staking pool requests
type TokenHandler struct {
	log     *logger.Logger
	service *service.TokenService
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(c *container.Container) *TokenHandler {
	return &TokenHandler{
		log:     c.Components.Logger,
		service: c.TokenService,
	}
}

// amountRequest carries a CLT amount as a decimal string, e.g. "12.5"
type amountRequest struct {
	To      string `json:"to"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Mint mints CLT to a wallet
// POST /api/tokens/mint
func (h *TokenHandler) Mint(c echo.Context) error {
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.To == "" {
		return badRequest(c, "to is required")
	}

	amount, err := service.ParseAmount(req.Amount)
	if err != nil {
		return respondError(c, h.log, err)
	}

	result, err := h.service.Mint(c.Request().Context(), middleware.GetAddress(c), req.To, amount)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Approve sets an allowance over the caller's CLT; zero revokes it
// POST /api/tokens/approve
func (h *TokenHandler) Approve(c echo.Context) error {
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	result, err := h.service.Approve(c.Request().Context(), middleware.GetAddress(c), req.Spender, amount)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Balance returns a wallet's CLT balance and history
// GET /api/tokens/balance/:address
func (h *TokenHandler) Balance(c echo.Context) error {
	balance, err := h.service.Balance(c.Request().Context(), c.Param("address"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, balance)
}

// JoinPool stakes CLT in the pool
// POST /api/staking/join
func (h *TokenHandler) JoinPool(c echo.Context) error {
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	amount, err := service.ParseAmount(req.Amount)
	if err != nil {
		return respondError(c, h.log, err)
	}

	result, err := h.service.JoinPool(c.Request().Context(), middleware.GetAddress(c), amount)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ClaimPoolReward claims the caller's pool reward
// POST /api/staking/claim
func (h *TokenHandler) ClaimPoolReward(c echo.Context) error {
	result, err := h.service.ClaimPoolReward(c.Request().Context(), middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Positions returns a wallet's stakes
// GET /api/staking/:address
func (h *TokenHandler) Positions(c echo.Context) error {
	positions, err := h.service.Positions(c.Request().Context(), c.Param("address"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, positions)
}
