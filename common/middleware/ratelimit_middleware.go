package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/common/ratelimit"
)

// AddressContextKey is the echo context key holding the authenticated wallet address
const AddressContextKey = "address"

// GlobalRateLimitMiddleware checks the global service-wide rate limit
// Protects the entire service from being overwhelmed
func GlobalRateLimitMiddleware(limiter ratelimit.Checker, limits ratelimit.Limits) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobalLimit(c.Request().Context(), limits.Global, limits.Window())
			if err != nil {
				// Fail open for availability
				return next(c)
			}

			if !result.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded",
					"Service is experiencing high load. Please try again later.",
					result, limits.Window(), nil)
			}

			return next(c)
		}
	}
}

// AddressRateLimitMiddleware checks per-address limits for the route class.
// The address is read from the context (set by the auth middleware); anonymous
// callers are limited by client IP.
func AddressRateLimitMiddleware(limiter ratelimit.Checker, limits ratelimit.Limits) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject, ok := c.Get(AddressContextKey).(string)
			if !ok || subject == "" {
				subject = "ip:" + c.RealIP()
			}

			class := ratelimit.ClassForPath(c.Request().URL.Path)
			result, err := limiter.CheckAddressLimit(c.Request().Context(), subject, class, limits.LimitFor(class), limits.Window())
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return tooManyRequests(c, "address_rate_limit_exceeded",
					"You have exceeded your request quota. Please wait before trying again.",
					result, limits.Window(), map[string]interface{}{
						"address":       subject,
						"class":         class,
						"current_count": result.CurrentCount,
					})
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code, message string, result *ratelimit.RateLimitResult, window int, extra map[string]interface{}) error {
	details := map[string]interface{}{
		"limit":               result.Limit,
		"window":              fmt.Sprintf("%d seconds", window),
		"retry_after_seconds": result.RetryAfterSeconds,
	}
	for k, v := range extra {
		details[k] = v
	}

	c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error":   code,
		"message": message,
		"details": details,
	})
}
