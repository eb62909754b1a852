package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/policy"
	"github.com/DEEPML1818/dsoc/common/queue"
	"github.com/DEEPML1818/dsoc/common/repository"
	"github.com/DEEPML1818/dsoc/common/reward"
)

const (
	clientAddr    = "0x1111111111111111111111111111111111111111"
	analystAddr   = "0x2222222222222222222222222222222222222222"
	analyst2Addr  = "0x3333333333333333333333333333333333333333"
	certifierAddr = "0x4444444444444444444444444444444444444444"
	adminAddr     = "0x9999999999999999999999999999999999999999"
)

// recordingQueue keeps published events in order
type recordingQueue struct {
	mu     sync.Mutex
	events []*models.TicketEvent
}

func (q *recordingQueue) Publish(ctx context.Context, topic, key string, message []byte) error {
	evt, err := models.UnmarshalTicketEvent(message)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, evt)
	return nil
}

func (q *recordingQueue) Subscribe(ctx context.Context, topic, group string, handler queue.MessageHandler) error {
	return nil
}

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) types() []models.EventType {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.EventType, 0, len(q.events))
	for _, e := range q.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store   *repository.MemoryStore
	ledger  *chain.MemoryLedger
	queue   *recordingQueue
	tickets *TicketService
	tokens  *TokenService
	users   *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.Discard()
	store := repository.NewMemoryStore()
	ledger := chain.NewMemoryLedger(31337)
	q := &recordingQueue{}

	machine, err := policy.NewMachine(3)
	require.NoError(t, err)

	isAdmin := func(a string) bool { return models.NormalizeAddress(a) == adminAddr }
	events := NewEventPublisher(q, log)

	f := &fixture{
		store:  store,
		ledger: ledger,
		queue:  q,
		tickets: NewTicketService(&TicketServiceOpts{
			Tickets:      store.Tickets(),
			Reports:      store.Reports(),
			Users:        store.Users(),
			Shortlist:    store.Shortlist(),
			Transactions: store.Transactions(),
			Tokens:       store.Tokens(),
			Ledger:       ledger,
			Machine:      machine,
			Rewards:      reward.Default(),
			Events:       events,
			Logger:       log,
		}),
		tokens: NewTokenService(store.Tokens(), store.Transactions(), ledger, isAdmin, log),
		users:  NewUserService(store.Users(), isAdmin, log),
	}

	ctx := context.Background()
	for addr, role := range map[string]models.Role{
		clientAddr:    models.RoleClient,
		analystAddr:   models.RoleAnalyst,
		analyst2Addr:  models.RoleAnalyst,
		certifierAddr: models.RoleCertifier,
	} {
		require.NoError(t, store.Users().Create(ctx, &models.User{WalletAddress: addr, Role: role, Email: "x@example.com"}))
	}
	return f
}

func (f *fixture) openTicket(t *testing.T, severity models.Severity) *models.Ticket {
	t.Helper()
	ticket, err := f.tickets.Create(context.Background(), clientAddr, &CreateTicketRequest{
		Title:       "Credential stuffing on login",
		Description: "Spike of failed logins from a botnet",
		Severity:    string(severity),
	})
	require.NoError(t, err)
	return ticket
}
