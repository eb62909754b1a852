package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/notify"
	"github.com/DEEPML1818/dsoc/common/queue"
	"github.com/DEEPML1818/dsoc/common/repository"
)

const clientAddr = "0x1111111111111111111111111111111111111111"

type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	return g.reply, g.err
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (m *recordingMailer) Send(ctx context.Context, email notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

func (m *recordingMailer) emails() []notify.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Email(nil), m.sent...)
}

func event(t *testing.T, typ models.EventType, ticketID int64) []byte {
	t.Helper()
	data, err := (&models.TicketEvent{Type: typ, TicketID: ticketID, Status: models.StatusAnalyzed}).Marshal()
	require.NoError(t, err)
	return data
}

func TestWorker_TriagesNewTickets(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	log := logger.Discard()
	q := queue.NewMemoryQueue(log)
	store := repository.NewMemoryStore()

	ticketID := int64(7)
	report := &models.IncidentReport{
		TicketID:        &ticketID,
		Title:           "Credential stuffing",
		Description:     "burst of failed logins against the VPN",
		Severity:        models.SeverityHigh,
		ReporterAddress: clientAddr,
		Status:          models.ReportSubmitted,
	}
	require.NoError(t, store.Reports().Create(ctx, report))

	w := New(&Opts{
		Queue:          q,
		Tickets:        store.Tickets(),
		Reports:        store.Reports(),
		Users:          store.Users(),
		Transactions:   store.Transactions(),
		Ledger:         chain.NewMemoryLedger(31337),
		Assistant:      ai.NewAssistant(stubGenerator{reply: "Summary: block the source ranges"}, config.AIConfig{}, log),
		Mailer:         notify.NewNoop(log),
		Logger:         log,
		ReconcileEvery: time.Hour,
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Subscriptions are registered asynchronously; republish until triage sees one
	created := event(t, models.EventTicketCreated, ticketID)
	require.Eventually(t, func() bool {
		if err := q.Publish(ctx, models.TicketEventsTopic, "7", created); err != nil {
			return false
		}
		got, err := store.Reports().GetByID(ctx, report.ID)
		return err == nil && got.AIAnalysis != ""
	}, 2*time.Second, 20*time.Millisecond)

	got, err := store.Reports().GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summary: block the source ranges", got.AIAnalysis)
	assert.Equal(t, models.ReportTriaged, got.Status)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, q.Close())
}

func TestTriage_SkipsWithoutAssistant(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()
	store := repository.NewMemoryStore()

	ticketID := int64(3)
	report := &models.IncidentReport{TicketID: &ticketID, Title: "Phishing", Description: "fake invoice", ReporterAddress: clientAddr}
	require.NoError(t, store.Reports().Create(ctx, report))

	triage := &Triage{
		reports:   store.Reports(),
		assistant: ai.NewAssistant(nil, config.AIConfig{}, log),
		queue:     queue.NewMemoryQueue(log),
		log:       log,
	}

	require.NoError(t, triage.Handle(ctx, "3", event(t, models.EventTicketCreated, ticketID)))
	require.NoError(t, triage.Handle(ctx, "9", event(t, models.EventTicketCreated, 9)), "ticket without a report")
	require.NoError(t, triage.Handle(ctx, "x", []byte("{not json")), "malformed payloads are dropped")

	got, err := store.Reports().GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AIAnalysis)
}

func TestNotifier_MailsClientOnMilestones(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()
	store := repository.NewMemoryStore()
	mailer := &recordingMailer{}

	require.NoError(t, store.Users().Create(ctx, &models.User{WalletAddress: clientAddr, Role: models.RoleClient, Email: "soc@example.com"}))
	require.NoError(t, store.Tickets().Create(ctx, &models.Ticket{TicketID: 1, Title: "Ransomware", ClientAddress: clientAddr, Status: models.StatusAnalyzed}))
	require.NoError(t, store.Tickets().Create(ctx, &models.Ticket{TicketID: 2, Title: "Orphan", ClientAddress: "0x3333333333333333333333333333333333333333"}))

	n := &Notifier{tickets: store.Tickets(), users: store.Users(), mailer: mailer, log: log}

	require.NoError(t, n.Handle(ctx, "1", event(t, models.EventTicketCreated, 1)))
	require.NoError(t, n.Handle(ctx, "1", event(t, models.EventReportSubmitted, 1)))
	require.NoError(t, n.Handle(ctx, "2", event(t, models.EventTicketValidated, 2)), "unregistered client")

	sent := mailer.emails()
	require.Len(t, sent, 1)
	assert.Equal(t, "soc@example.com", sent[0].To)
	assert.Contains(t, sent[0].Subject, "Ticket #1 analyzed")
	assert.Contains(t, sent[0].Text, "Ransomware")

	err := n.Handle(ctx, "5", event(t, models.EventTicketCompleted, 5))
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestReconciler_SettlesStalePending(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()
	store := repository.NewMemoryStore()
	ledger := chain.NewMemoryLedger(31337)

	ledger.HoldPending(true)
	mined, err := ledger.CreateTicket(ctx, 1, clientAddr, models.SeverityLow, "t")
	require.NoError(t, err)
	stillPending, err := ledger.CreateTicket(ctx, 2, clientAddr, models.SeverityLow, "t")
	require.NoError(t, err)
	ledger.Settle(mined.TxHash, models.TxConfirmed)

	record := func(hash string) *models.Transaction {
		tx := &models.Transaction{TxHash: hash, Kind: models.TxCreateTicket, FromAddress: clientAddr, Status: models.TxPending, Chain: "memory"}
		require.NoError(t, store.Transactions().Record(ctx, tx))
		return tx
	}
	confirmed := record(mined.TxHash)
	waiting := record(stillPending.TxHash)
	unknown := record("0xdeadbeef")
	fresh := record(mined.TxHash)

	for _, tx := range []*models.Transaction{confirmed, waiting, unknown} {
		store.Backdate(tx.ID, 5*time.Minute)
	}

	r := NewReconciler(store.Transactions(), ledger, nil, log, time.Hour, time.Minute)
	res, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)

	want := ReconcileResult{Checked: 3, Confirmed: 1, Failed: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("ReconcileOnce() mismatch (-want +got):\n%s", diff)
	}

	statuses := map[int64]models.TxStatus{}
	for _, tx := range []*models.Transaction{confirmed, waiting, unknown, fresh} {
		got, ok := store.Transactions().Get(tx.ID)
		require.True(t, ok)
		statuses[tx.ID] = got.Status
	}
	assert.Equal(t, map[int64]models.TxStatus{
		confirmed.ID: models.TxConfirmed,
		waiting.ID:   models.TxPending,
		unknown.ID:   models.TxFailed,
		fresh.ID:     models.TxPending,
	}, statuses)

	failed, _ := store.Transactions().Get(unknown.ID)
	assert.Equal(t, "transaction unknown to the ledger", failed.Error)
}
