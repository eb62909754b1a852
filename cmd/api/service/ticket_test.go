package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/policy"
	"github.com/DEEPML1818/dsoc/common/repository"
)

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ticket := f.openTicket(t, models.SeverityHigh)
	assert.Equal(t, models.StatusOpen, ticket.Status)
	assert.NotEmpty(t, ticket.TxHash)
	assert.Equal(t, "memory", ticket.Chain)

	ticket, err := f.tickets.AssignAnalyst(ctx, ticket.TicketID, analystAddr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, ticket.Status)
	assert.Equal(t, []string{analystAddr}, ticket.Analysts)

	ticket, err = f.tickets.SubmitReport(ctx, ticket.TicketID, analystAddr, "Blocked the botnet ASN")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, ticket.Status)

	ticket, err = f.tickets.AssignCertifier(ctx, ticket.TicketID, certifierAddr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, ticket.Status)
	assert.Equal(t, certifierAddr, ticket.CertifierAddress)

	ticket, err = f.tickets.Validate(ctx, ticket.TicketID, certifierAddr, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, ticket.Status)

	result, err := f.tickets.Complete(ctx, ticket.TicketID, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.Ticket.Status)
	assert.Len(t, result.TxHashes, 2)

	// high = 3 × 100 per analyst, certifier takes 10% of the pool
	analystBalance, err := f.ledger.GetCLTBalance(ctx, analystAddr)
	require.NoError(t, err)
	assert.True(t, analystBalance.Equal(decimal.NewFromInt(300)), analystBalance.String())

	certBalance, err := f.ledger.GetCLTBalance(ctx, certifierAddr)
	require.NoError(t, err)
	assert.True(t, certBalance.Equal(decimal.NewFromInt(30)), certBalance.String())

	stored, err := f.tickets.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.True(t, stored.RewardAmount.Equal(decimal.NewFromInt(330)))

	analyst, err := f.users.Get(ctx, analystAddr)
	require.NoError(t, err)
	assert.Equal(t, analystReputation, analyst.Reputation)

	assert.Equal(t, []models.EventType{
		models.EventTicketCreated,
		models.EventAnalystAssigned,
		models.EventReportSubmitted,
		models.EventCertifierAssigned,
		models.EventTicketValidated,
		models.EventTicketCompleted,
	}, f.queue.types())

	txs, err := f.store.Transactions().ListByTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	// create, assign analyst, assign certifier, validate, two mints
	assert.Len(t, txs, 6)
	for _, tx := range txs {
		assert.Equal(t, models.TxConfirmed, tx.Status)
	}
}

func TestValidate_RejectReturnsToAnalysts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.openTicket(t, models.SeverityLow)

	_, err := f.tickets.AssignAnalyst(ctx, ticket.TicketID, analystAddr)
	require.NoError(t, err)
	_, err = f.tickets.SubmitReport(ctx, ticket.TicketID, analystAddr, "first pass")
	require.NoError(t, err)
	_, err = f.tickets.AssignCertifier(ctx, ticket.TicketID, certifierAddr)
	require.NoError(t, err)

	ticket, err = f.tickets.Validate(ctx, ticket.TicketID, certifierAddr, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, ticket.Status)

	types := f.queue.types()
	assert.Equal(t, models.EventTicketRejected, types[len(types)-1])

	// The analyst can resubmit
	ticket, err = f.tickets.SubmitReport(ctx, ticket.TicketID, analystAddr, "second pass")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, ticket.Status)
}

func TestAssignAnalyst_PolicyRefusal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.openTicket(t, models.SeverityMedium)

	_, err := f.tickets.AssignAnalyst(ctx, ticket.TicketID, certifierAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrForbidden)

	var te *policy.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, policy.ActionAssignAnalyst, te.Action)

	_, err = f.tickets.AssignAnalyst(ctx, ticket.TicketID, analystAddr)
	require.NoError(t, err)
	_, err = f.tickets.AssignAnalyst(ctx, ticket.TicketID, analystAddr)
	assert.ErrorIs(t, err, policy.ErrConflict)

	txs, err := f.store.Transactions().ListByTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Len(t, txs, 2, "refused actions never reach the chain")
}

func TestAssignAnalyst_ChainFailureLeavesTicketUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.openTicket(t, models.SeverityMedium)

	f.ledger.FailNext(errors.New("insufficient funds for gas * price + value"))
	_, err := f.tickets.AssignAnalyst(ctx, ticket.TicketID, analystAddr)
	require.Error(t, err)
	assert.True(t, chain.IsKind(err, chain.KindInsufficientFunds))

	stored, err := f.tickets.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, stored.Status)
	assert.Empty(t, stored.Analysts)
	assert.Equal(t, []models.EventType{models.EventTicketCreated}, f.queue.types())
}

func TestCreate_PendingReceiptIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ledger.HoldPending(true)

	ticket := f.openTicket(t, models.SeverityCritical)

	txs, err := f.store.Transactions().ListByTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxPending, txs[0].Status)
	assert.Equal(t, models.TxCreateTicket, txs[0].Kind)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tickets.Create(ctx, clientAddr, &CreateTicketRequest{Severity: "high"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.tickets.Create(ctx, clientAddr, &CreateTicketRequest{Title: "x", Severity: "urgent"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreate_LinksIncidentReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report := &models.IncidentReport{
		Title:           "Exposed S3 bucket",
		Description:     "Public listing enabled",
		Severity:        models.SeverityHigh,
		ReporterAddress: clientAddr,
		Status:          models.ReportSubmitted,
	}
	require.NoError(t, f.store.Reports().Create(ctx, report))

	ticket, err := f.tickets.Create(ctx, clientAddr, &CreateTicketRequest{ReportID: &report.ID})
	require.NoError(t, err)
	assert.Equal(t, "Exposed S3 bucket", ticket.Title)
	assert.Equal(t, models.SeverityHigh, ticket.Severity)

	linked, err := f.store.Reports().GetByID(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.TicketID)
	assert.Equal(t, ticket.TicketID, *linked.TicketID)
	assert.Equal(t, models.ReportLinked, linked.Status)

	_, err = f.tickets.Create(ctx, clientAddr, &CreateTicketRequest{ReportID: &report.ID})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = f.tickets.Create(ctx, analystAddr, &CreateTicketRequest{ReportID: &report.ID})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestComplete_SkipsRewardsAlreadyPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.openTicket(t, models.SeverityLow)

	for _, a := range []string{analystAddr, analyst2Addr} {
		_, err := f.tickets.AssignAnalyst(ctx, ticket.TicketID, a)
		require.NoError(t, err)
	}
	_, err := f.tickets.SubmitReport(ctx, ticket.TicketID, analyst2Addr, "done")
	require.NoError(t, err)
	_, err = f.tickets.AssignCertifier(ctx, ticket.TicketID, certifierAddr)
	require.NoError(t, err)
	_, err = f.tickets.Validate(ctx, ticket.TicketID, certifierAddr, true)
	require.NoError(t, err)

	// A previous attempt paid the first analyst before failing
	require.NoError(t, f.store.Tokens().AddCLTEntry(ctx, &models.CLTEntry{
		WalletAddress: analystAddr,
		Amount:        decimal.NewFromInt(100),
		Kind:          models.CLTReward,
		TicketID:      &ticket.TicketID,
		TxHash:        "0xearlier",
	}))

	result, err := f.tickets.Complete(ctx, ticket.TicketID, certifierAddr)
	require.NoError(t, err)
	assert.Len(t, result.TxHashes, 2)

	paid, err := f.ledger.GetCLTBalance(ctx, analystAddr)
	require.NoError(t, err)
	assert.True(t, paid.IsZero())

	second, err := f.ledger.GetCLTBalance(ctx, analyst2Addr)
	require.NoError(t, err)
	assert.True(t, second.Equal(decimal.NewFromInt(100)))
}

func TestView_ListsAvailableActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.openTicket(t, models.SeverityLow)

	view, err := f.tickets.View(ctx, ticket.TicketID, analystAddr)
	require.NoError(t, err)
	assert.Equal(t, []policy.Action{policy.ActionAssignAnalyst}, view.Actions)

	view, err = f.tickets.View(ctx, ticket.TicketID, clientAddr)
	require.NoError(t, err)
	assert.Empty(t, view.Actions)
}

func TestDashboard_RoleAware(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.openTicket(t, models.SeverityLow)
	f.openTicket(t, models.SeverityHigh)

	_, err := f.tickets.AssignAnalyst(ctx, first.TicketID, analystAddr)
	require.NoError(t, err)

	client, err := f.tickets.Dashboard(ctx, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, client.Role)
	assert.Len(t, client.Recent, 2)
	assert.Equal(t, 1, client.Counts[models.StatusOpen])
	assert.Equal(t, 1, client.Counts[models.StatusAssigned])

	analyst, err := f.tickets.Dashboard(ctx, analystAddr)
	require.NoError(t, err)
	assert.Len(t, analyst.Recent, 1)
	assert.Len(t, analyst.Pending, 2)
}

// slowLedger holds analyst assignments on chain for a moment and tracks how
// many run at once
type slowLedger struct {
	*chain.MemoryLedger
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (l *slowLedger) AssignAsAnalyst(ctx context.Context, ticketID int64, analyst string) (*chain.Receipt, error) {
	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		seen := l.maxInFlight.Load()
		if n <= seen || l.maxInFlight.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return l.MemoryLedger.AssignAsAnalyst(ctx, ticketID, analyst)
}

func TestAssignAnalystConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.openTicket(t, models.SeverityMedium)

	ledger := &slowLedger{MemoryLedger: f.ledger}
	machine, err := policy.NewMachine(3)
	require.NoError(t, err)
	svc := NewTicketService(&TicketServiceOpts{
		Tickets:      f.store.Tickets(),
		Reports:      f.store.Reports(),
		Users:        f.store.Users(),
		Shortlist:    f.store.Shortlist(),
		Transactions: f.store.Transactions(),
		Tokens:       f.store.Tokens(),
		Ledger:       ledger,
		Machine:      machine,
		Events:       NewEventPublisher(f.queue, logger.Discard()),
		Logger:       logger.Discard(),
	})

	analysts := []string{analystAddr, analyst2Addr}
	errs := make([]error, len(analysts))
	var wg sync.WaitGroup
	for i, a := range analysts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.AssignAnalyst(ctx, ticket.TicketID, a)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, analysts[i])
	}
	assert.Equal(t, int32(1), ledger.maxInFlight.Load(), "chain writes on one ticket overlapped")

	stored, err := f.tickets.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, stored.Status)
	assert.ElementsMatch(t, analysts, stored.Analysts)

	// Every chain write reached the ticket row
	txs, err := f.store.Transactions().ListByTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Equal(t, models.TxConfirmed, tx.Status, tx.Kind)
		assert.Empty(t, tx.Error, tx.Kind)
	}

	// Chain and database agree: a repeat is refused by policy, not by the contract
	_, err = svc.AssignAnalyst(ctx, ticket.TicketID, analystAddr)
	var te *policy.TransitionError
	assert.ErrorAs(t, err, &te)
}
