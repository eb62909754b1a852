package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/middleware"
	"github.com/DEEPML1818/dsoc/cmd/api/routes"
	"github.com/DEEPML1818/dsoc/common/bootstrap"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/queue"
	"github.com/DEEPML1818/dsoc/common/ratelimit"
	"github.com/DEEPML1818/dsoc/common/repository"
)

const (
	clientAddr    = "0x1111111111111111111111111111111111111111"
	analystAddr   = "0x2222222222222222222222222222222222222222"
	certifierAddr = "0x4444444444444444444444444444444444444444"
	adminAddr     = "0x9999999999999999999999999999999999999999"
)

type testAPI struct {
	e      *echo.Echo
	ledger *chain.MemoryLedger
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log := logger.Discard()
	cfg := &config.Config{
		Chain:  config.ChainConfig{Backend: "memory", ChainID: 31337, MaxAnalysts: 3},
		Reward: config.RewardConfig{BaseAmount: "100", CertifierShare: "0.10"},
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			TokenTTL:        time.Hour,
			NonceTTL:        time.Minute,
			AllowHeaderAuth: true,
			AdminAddresses:  []string{adminAddr},
		},
	}
	q := queue.NewMemoryQueue(log)
	t.Cleanup(func() { q.Close() })

	components := &bootstrap.Components{
		Config:  cfg,
		Logger:  log,
		Queue:   q,
		Limiter: ratelimit.NewMemoryLimiter(),
	}

	ledger := chain.NewMemoryLedger(31337)
	c, err := container.Assemble(components, container.Deps{
		Stores: container.MemoryStores(repository.NewMemoryStore()),
		Ledger: ledger,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	e := echo.New()
	e.Use(middleware.Authenticate(c.Tokens, true))
	routes.RegisterAuthRoutes(e, c)
	routes.RegisterUserRoutes(e, c)
	routes.RegisterIncidentReportRoutes(e, c)
	routes.RegisterTicketRoutes(e, c)
	routes.RegisterTokenRoutes(e, c)
	routes.RegisterAIRoutes(e, c)

	return &testAPI{e: e, ledger: ledger}
}

// call sends a request as address with role; an empty address is anonymous
func (a *testAPI) call(t *testing.T, method, path, address, role, body string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if address != "" {
		req.Header.Set("X-Wallet-Address", address)
		req.Header.Set("X-Wallet-Role", role)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (a *testAPI) register(t *testing.T) {
	t.Helper()
	code, _ := a.call(t, http.MethodPost, "/api/users", clientAddr, "client", `{"role":"client","email":"soc@example.com"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = a.call(t, http.MethodPost, "/api/users", analystAddr, "analyst", `{"role":"analyst"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = a.call(t, http.MethodPost, "/api/certifiers", adminAddr, "client", `{"address":"`+certifierAddr+`","display_name":"CertCo"}`)
	require.Equal(t, http.StatusCreated, code)
}

func TestAPI_TicketLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	code, body := api.call(t, http.MethodPost, "/api/tickets", clientAddr, "client",
		`{"title":"Ransomware on file server","description":"files encrypted overnight","severity":"high"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, float64(1), body["ticket_id"])
	assert.Equal(t, "open", body["status"])

	steps := []struct {
		path, address, role, body, status string
	}{
		{"/api/tickets/1/assign-analyst", analystAddr, "analyst", ``, "assigned"},
		{"/api/tickets/1/submit-report", analystAddr, "analyst", `{"report":"lateral movement via SMB"}`, "analyzed"},
		{"/api/tickets/1/assign-certifier", certifierAddr, "certifier", ``, "analyzed"},
		{"/api/tickets/1/validate", certifierAddr, "certifier", `{"approved":true}`, "validated"},
	}
	for _, s := range steps {
		code, body := api.call(t, http.MethodPost, s.path, s.address, s.role, s.body)
		require.Equal(t, http.StatusOK, code, "%s: %v", s.path, body)
		assert.Equal(t, s.status, body["status"], s.path)
	}

	code, body = api.call(t, http.MethodPost, "/api/tickets/1/complete", clientAddr, "client", ``)
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["tx_hashes"], 2)
	ticket := body["ticket"].(map[string]interface{})
	assert.Equal(t, "completed", ticket["status"])

	code, body = api.call(t, http.MethodGet, "/api/tickets/1", clientAddr, "client", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["status"])
	assert.Empty(t, body["actions"])

	code, body = api.call(t, http.MethodGet, "/api/tokens/balance/"+analystAddr, "", "", ``)
	require.Equal(t, http.StatusOK, code)
	assert.NotEqual(t, "0", body["balance"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	code, _ := api.call(t, http.MethodPost, "/api/tickets", "", "", `{"title":"t","description":"d","severity":"low"}`)
	assert.Equal(t, http.StatusUnauthorized, code, "anonymous writes")

	code, _ = api.call(t, http.MethodPost, "/api/tickets", clientAddr, "client", `{"title":"t","description":"d","severity":"extreme"}`)
	assert.Equal(t, http.StatusBadRequest, code, "bad severity")

	code, _ = api.call(t, http.MethodGet, "/api/tickets/99", "", "", ``)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.call(t, http.MethodGet, "/api/tickets/abc", "", "", ``)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.call(t, http.MethodPost, "/api/tickets", clientAddr, "client", `{"title":"t","description":"d","severity":"low"}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = api.call(t, http.MethodPost, "/api/tickets/1/assign-analyst", clientAddr, "client", ``)
	assert.Equal(t, http.StatusForbidden, code, "session role gate")

	code, _ = api.call(t, http.MethodPost, "/api/tickets/1/validate", certifierAddr, "certifier", `{"approved":true}`)
	assert.Equal(t, http.StatusConflict, code, "ticket is not analyzed")

	code, _ = api.call(t, http.MethodPost, "/api/tickets/1/validate", certifierAddr, "certifier", `{}`)
	assert.Equal(t, http.StatusBadRequest, code, "approved is required")

	api.ledger.FailNext(errors.New("MetaMask: user rejected the request"))
	code, body := api.call(t, http.MethodPost, "/api/tickets/1/assign-analyst", analystAddr, "analyst", ``)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(chain.KindUserRejected), body["kind"])

	api.ledger.FailNext(errors.New("dial tcp 127.0.0.1:8545: connection refused"))
	code, body = api.call(t, http.MethodPost, "/api/tickets/1/assign-analyst", analystAddr, "analyst", ``)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, string(chain.KindNetwork), body["kind"])

	// The failed chain calls left the ticket untouched
	code, body = api.call(t, http.MethodGet, "/api/tickets/1", "", "", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "open", body["status"])

	code, _ = api.call(t, http.MethodPost, "/api/ai/chat", clientAddr, "client", `{"message":"what is phishing?"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code, "no generator configured")
}

func TestAPI_IncidentReports(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	code, body := api.call(t, http.MethodPost, "/api/incident-reports", clientAddr, "client",
		`{"title":"Suspicious login","description":"admin login from new country","severity":"medium","evidence_urls":["https://logs.example/1"]}`)
	require.Equal(t, http.StatusCreated, code, body)
	id := body["id"].(float64)
	assert.Equal(t, float64(1), id)

	code, body = api.call(t, http.MethodPatch, "/api/incident-reports/1", clientAddr, "client", `{"severity":"high"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "high", body["severity"])

	code, _ = api.call(t, http.MethodPatch, "/api/incident-reports/1", clientAddr, "client", `{"reporter_address":"0xabc"}`)
	assert.Equal(t, http.StatusBadRequest, code, "immutable field")

	code, _ = api.call(t, http.MethodPatch, "/api/incident-reports/1", analystAddr, "analyst", `{"severity":"low"}`)
	assert.Equal(t, http.StatusForbidden, code, "only the reporter edits")

	code, body = api.call(t, http.MethodPost, "/api/tickets", clientAddr, "client", `{"report_id":1}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "Suspicious login", body["title"])

	code, body = api.call(t, http.MethodGet, "/api/incident-reports/1", "", "", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "linked", body["status"])
}

func TestAPI_Shortlist(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	code, _ := api.call(t, http.MethodPost, "/api/tickets", clientAddr, "client", `{"title":"t","description":"d","severity":"low"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := api.call(t, http.MethodPost, "/api/tickets/1/shortlist", analystAddr, "analyst", `{"note":"seen this before"}`)
	require.Equal(t, http.StatusCreated, code, body)

	code, body = api.call(t, http.MethodGet, "/api/tickets/1/shortlist", "", "", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = api.call(t, http.MethodDelete, "/api/tickets/1/shortlist/"+analystAddr, clientAddr, "client", ``)
	assert.Equal(t, http.StatusNoContent, code)
}

// callWithToken sends a request with a bearer session token
func (a *testAPI) callWithToken(t *testing.T, method, path, token, body string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestAPI_RoleChangeRefreshesSession(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.call(t, http.MethodPost, "/api/users", clientAddr, "client", `{"role":"client"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Nil(t, body["session"], "role unchanged")

	code, _ = api.call(t, http.MethodPost, "/api/tickets", clientAddr, "client", `{"title":"t","description":"d","severity":"low"}`)
	require.Equal(t, http.StatusCreated, code)

	// A wallet signed in as a client registers as an analyst
	code, body = api.call(t, http.MethodPost, "/api/users", analystAddr, "client", `{"role":"analyst"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "analyst", body["role"])
	session, ok := body["session"].(map[string]interface{})
	require.True(t, ok, "expected a refreshed session: %v", body)
	assert.Equal(t, "analyst", session["role"])
	token, _ := session["token"].(string)
	require.NotEmpty(t, token)

	code, _ = api.call(t, http.MethodPost, "/api/tickets/1/assign-analyst", analystAddr, "client", ``)
	assert.Equal(t, http.StatusForbidden, code, "old session role")

	code, body = api.callWithToken(t, http.MethodPost, "/api/tickets/1/assign-analyst", token, ``)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "assigned", body["status"])
}

func TestAPI_EmptyListsAreArrays(t *testing.T) {
	api := newTestAPI(t)

	for _, tc := range []struct{ path, key string }{
		{"/api/tickets", "tickets"},
		{"/api/tickets/pending-analysis", "tickets"},
		{"/api/tickets/client/" + clientAddr, "tickets"},
		{"/api/certifiers", "certifiers"},
	} {
		code, body := api.call(t, http.MethodGet, tc.path, "", "", ``)
		require.Equal(t, http.StatusOK, code, tc.path)
		assert.Equal(t, []interface{}{}, body[tc.key], tc.path)
	}
}

func TestAPI_PendingAnalysisHidesFullTickets(t *testing.T) {
	api := newTestAPI(t)
	api.register(t)

	code, _ := api.call(t, http.MethodPost, "/api/tickets", clientAddr, "client", `{"title":"t","description":"d","severity":"low"}`)
	require.Equal(t, http.StatusCreated, code)

	analysts := []string{
		analystAddr,
		"0x5555555555555555555555555555555555555555",
		"0x6666666666666666666666666666666666666666",
	}
	for _, a := range analysts[1:] {
		code, _ := api.call(t, http.MethodPost, "/api/users", a, "analyst", `{"role":"analyst"}`)
		require.Equal(t, http.StatusCreated, code)
	}
	for i, a := range analysts {
		code, body := api.call(t, http.MethodGet, "/api/tickets/pending-analysis", "", "", ``)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(1), body["count"], "before analyst %d joins", i+1)

		code, body = api.call(t, http.MethodPost, "/api/tickets/1/assign-analyst", a, "analyst", ``)
		require.Equal(t, http.StatusOK, code, body)
	}

	code, body := api.call(t, http.MethodGet, "/api/tickets/pending-analysis", "", "", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}
