package graphql

import (
	"context"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/policy"
	"github.com/DEEPML1818/dsoc/common/repository"
)

const (
	clientAddr  = "0x1111111111111111111111111111111111111111"
	analystAddr = "0x2222222222222222222222222222222222222222"
)

func newSchema(t *testing.T) (graphql.Schema, *service.TicketService) {
	t.Helper()
	store := repository.NewMemoryStore()
	machine, err := policy.NewMachine(3)
	require.NoError(t, err)

	tickets := service.NewTicketService(&service.TicketServiceOpts{
		Tickets:      store.Tickets(),
		Reports:      store.Reports(),
		Users:        store.Users(),
		Shortlist:    store.Shortlist(),
		Transactions: store.Transactions(),
		Tokens:       store.Tokens(),
		Ledger:       chain.NewMemoryLedger(31337),
		Machine:      machine,
		Logger:       logger.Discard(),
	})
	require.NoError(t, store.Users().Create(context.Background(), &models.User{WalletAddress: analystAddr, Role: models.RoleAnalyst}))

	schema, err := NewSchema(tickets)
	require.NoError(t, err)
	return schema, tickets
}

func run(t *testing.T, schema graphql.Schema, query string) map[string]interface{} {
	t.Helper()
	result := graphql.Do(graphql.Params{Schema: schema, RequestString: query, Context: context.Background()})
	require.Empty(t, result.Errors)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestSchema_TicketQueries(t *testing.T) {
	ctx := context.Background()
	schema, tickets := newSchema(t)

	created, err := tickets.Create(ctx, clientAddr, &service.CreateTicketRequest{
		Title: "Phishing wave", Description: "credential harvesting", Severity: "high",
	})
	require.NoError(t, err)
	_, err = tickets.Create(ctx, clientAddr, &service.CreateTicketRequest{
		Title: "Port scan", Description: "noisy scanner", Severity: "low",
	})
	require.NoError(t, err)
	_, err = tickets.AssignAnalyst(ctx, created.TicketID, analystAddr)
	require.NoError(t, err)

	data := run(t, schema, `{ ticket(id: 1) { ticketId title status severity analysts } }`)
	ticket := data["ticket"].(map[string]interface{})
	assert.Equal(t, "Phishing wave", ticket["title"])
	assert.Equal(t, "assigned", ticket["status"])
	assert.Equal(t, []interface{}{analystAddr}, ticket["analysts"])

	data = run(t, schema, `{ tickets(status: "open") { title } }`)
	list := data["tickets"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "Port scan", list[0].(map[string]interface{})["title"])
}

func TestSchema_Dashboard(t *testing.T) {
	ctx := context.Background()
	schema, tickets := newSchema(t)

	_, err := tickets.Create(ctx, clientAddr, &service.CreateTicketRequest{
		Title: "Malware", Description: "beaconing host", Severity: "critical",
	})
	require.NoError(t, err)

	data := run(t, schema, `{ dashboard(address: "`+clientAddr+`") { role total counts { status count } recent { title } } }`)
	d := data["dashboard"].(map[string]interface{})
	assert.Equal(t, "client", d["role"])
	assert.Equal(t, 1, d["total"])
	assert.Len(t, d["recent"], 1)

	data = run(t, schema, `{ dashboard(address: "`+analystAddr+`") { role pending { title } } }`)
	d = data["dashboard"].(map[string]interface{})
	assert.Equal(t, "analyst", d["role"])
	assert.Len(t, d["pending"], 1)
}

func TestSchema_UnknownTicket(t *testing.T) {
	schema, _ := newSchema(t)
	result := graphql.Do(graphql.Params{Schema: schema, RequestString: `{ ticket(id: 42) { title } }`, Context: context.Background()})
	require.NotEmpty(t, result.Errors)
}
