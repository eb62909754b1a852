package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/common/auth"
	commonmw "github.com/DEEPML1818/dsoc/common/middleware"
	"github.com/DEEPML1818/dsoc/common/models"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// AddressKey is the context key for the authenticated wallet address.
	// It matches the key the rate limiter reads.
	AddressKey ContextKey = commonmw.AddressContextKey

	// RoleKey is the context key for the role carried by the session
	RoleKey ContextKey = "role"
)

// Authenticate resolves the calling wallet and stores it in the context.
//
// A session token is read from "Authorization: Bearer <jwt>". When
// allowHeader is set (development), an X-Wallet-Address header is accepted
// instead, with an optional X-Wallet-Role.
//
// Requests without credentials pass through anonymously; an invalid token
// is rejected.
func Authenticate(issuer *auth.TokenIssuer, allowHeader bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
				token, ok := strings.CutPrefix(header, "Bearer ")
				if !ok || token == "" {
					return c.JSON(http.StatusUnauthorized, map[string]interface{}{
						"error": "authorization header must be a bearer token",
					})
				}

				claims, err := issuer.Parse(token)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, map[string]interface{}{
						"error": "invalid or expired session token",
					})
				}

				c.Set(string(AddressKey), models.NormalizeAddress(claims.Address))
				c.Set(string(RoleKey), claims.Role)
				return next(c)
			}

			if allowHeader {
				if address := c.Request().Header.Get("X-Wallet-Address"); address != "" {
					role := models.RoleClient
					if r, err := models.ParseRole(c.Request().Header.Get("X-Wallet-Role")); err == nil {
						role = r
					}
					c.Set(string(AddressKey), models.NormalizeAddress(address))
					c.Set(string(RoleKey), role)
				}
			}

			return next(c)
		}
	}
}

// RequireAuth rejects anonymous requests
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if GetAddress(c) == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "authentication required",
				})
			}
			return next(c)
		}
	}
}

// RequireRole rejects callers whose session role is not one of roles.
// Services re-check roles against the stored user.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if GetAddress(c) == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "authentication required",
				})
			}

			role := GetRole(c)
			for _, r := range roles {
				if r == role {
					return next(c)
				}
			}

			return c.JSON(http.StatusForbidden, map[string]interface{}{
				"error": "this action requires role " + joinRoles(roles),
			})
		}
	}
}

// GetAddress retrieves the wallet address from the request context
// Returns empty string if not set
func GetAddress(c echo.Context) string {
	address, _ := c.Get(string(AddressKey)).(string)
	return address
}

// GetRole retrieves the session role from the request context
func GetRole(c echo.Context) models.Role {
	role, _ := c.Get(string(RoleKey)).(models.Role)
	return role
}

func joinRoles(roles []models.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, " or ")
}
