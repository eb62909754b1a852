package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/auth"
	"github.com/DEEPML1818/dsoc/common/models"
)

func newEcho(issuer *auth.TokenIssuer, allowHeader bool, guards ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(Authenticate(issuer, allowHeader))
	e.GET("/whoami", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"address": GetAddress(c),
			"role":    GetRole(c),
		})
	}, guards...)
	return e
}

func do(e *echo.Echo, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate_BearerToken(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	token, _, err := issuer.Issue("0xABC", models.RoleAnalyst)
	require.NoError(t, err)

	rec := do(newEcho(issuer, false), map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"0xabc","role":"analyst"}`, rec.Body.String())
}

func TestAuthenticate_RejectsBadToken(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	other := auth.NewTokenIssuer("other", time.Hour)
	token, _, err := other.Issue("0xabc", models.RoleClient)
	require.NoError(t, err)

	e := newEcho(issuer, true)
	assert.Equal(t, http.StatusUnauthorized, do(e, map[string]string{"Authorization": "Bearer " + token}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, map[string]string{"Authorization": "Basic abc"}).Code)
}

func TestAuthenticate_DevHeader(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	headers := map[string]string{"X-Wallet-Address": "0xDEF", "X-Wallet-Role": "certifier"}

	rec := do(newEcho(issuer, true), headers)
	assert.JSONEq(t, `{"address":"0xdef","role":"certifier"}`, rec.Body.String())

	// Ignored outside development
	rec = do(newEcho(issuer, false), headers)
	assert.JSONEq(t, `{"address":"","role":""}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	e := newEcho(issuer, true, RequireRole(models.RoleAnalyst, models.RoleCertifier))

	assert.Equal(t, http.StatusUnauthorized, do(e, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(e, map[string]string{"X-Wallet-Address": "0x1"}).Code)
	assert.Equal(t, http.StatusOK, do(e, map[string]string{"X-Wallet-Address": "0x1", "X-Wallet-Role": "analyst"}).Code)

	guarded := newEcho(issuer, true, RequireAuth())
	assert.Equal(t, http.StatusUnauthorized, do(guarded, nil).Code)
}
