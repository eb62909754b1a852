package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/policy"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// respondError maps a service error to a status code and an {"error": ...} body.
// Unclassified errors are logged and hidden behind a generic message.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	var rle *service.RateLimitError
	if errors.As(err, &rle) {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(rle.RetryAfterSeconds, 10))
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error":               "rate limit exceeded",
			"limit":               rle.Limit,
			"retry_after_seconds": rle.RetryAfterSeconds,
		})
	}

	var ce *chain.Error
	if errors.As(err, &ce) {
		status := http.StatusBadGateway
		switch ce.Kind {
		case chain.KindUserRejected, chain.KindInsufficientFunds, chain.KindInvalidInput:
			status = http.StatusBadRequest
		case chain.KindReverted, chain.KindNonce:
			status = http.StatusConflict
		}
		if status == http.StatusBadGateway {
			log.Error("chain call failed", "op", ce.Op, "kind", ce.Kind, "error", err)
		}
		return c.JSON(status, map[string]interface{}{
			"error": ce.Message,
			"kind":  ce.Kind,
		})
	}

	var status int
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, ai.ErrEmptyInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, policy.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, policy.ErrConflict),
		errors.Is(err, policy.ErrInvalidState),
		errors.Is(err, policy.ErrUnknownAction):
		status = http.StatusConflict
	case errors.Is(err, ai.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"error": "AI assistant is unavailable, please try again later",
		})
	default:
		log.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "internal server error",
		})
	}

	return c.JSON(status, map[string]interface{}{
		"error": err.Error(),
	})
}

// badRequest writes a 400 with message
func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error": message,
	})
}

// paramID parses a positive integer path parameter
func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pagination reads limit and offset query parameters; invalid values become zero
func pagination(c echo.Context) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
