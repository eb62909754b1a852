package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/models"
)

// Store interfaces let services run against Postgres or the in-memory store.

// TicketStore persists tickets
type TicketStore interface {
	NextTicketID(ctx context.Context) (int64, error)
	Create(ctx context.Context, t *models.Ticket) error
	GetByTicketID(ctx context.Context, ticketID int64) (*models.Ticket, error)
	List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error)
	PendingAnalysis(ctx context.Context, maxAnalysts, limit int) ([]*models.Ticket, error)
	CountByStatus(ctx context.Context, filter models.TicketFilter) (map[models.TicketStatus]int, error)
	UpdateWorkflow(ctx context.Context, t *models.Ticket) error
	// Lock runs fn while no other workflow write on the ticket is in progress
	Lock(ctx context.Context, ticketID int64, fn func(ctx context.Context) error) error
}

// IncidentReportStore persists incident reports
type IncidentReportStore interface {
	Create(ctx context.Context, report *models.IncidentReport) error
	GetByID(ctx context.Context, id int64) (*models.IncidentReport, error)
	GetByTicketID(ctx context.Context, ticketID int64) (*models.IncidentReport, error)
	List(ctx context.Context, reporter string, limit, offset int) ([]*models.IncidentReport, error)
	Update(ctx context.Context, report *models.IncidentReport) error
}

// UserStore persists registered wallets
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByAddress(ctx context.Context, address string) (*models.User, error)
	UpdateRole(ctx context.Context, address string, role models.Role) error
	AddReputation(ctx context.Context, address string, delta int) error
	ListByRole(ctx context.Context, role models.Role, limit int) ([]*models.User, error)
}

// ShortlistStore persists analyst applications
type ShortlistStore interface {
	Add(ctx context.Context, entry *models.ShortlistEntry) error
	List(ctx context.Context, ticketID int64) ([]*models.ShortlistEntry, error)
	Remove(ctx context.Context, ticketID int64, analyst string) error
}

// TransactionStore persists submitted chain writes
type TransactionStore interface {
	Record(ctx context.Context, tx *models.Transaction) error
	SetStatus(ctx context.Context, id int64, status models.TxStatus, reason string) error
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]*models.Transaction, error)
}

// TokenStore persists the off-chain CLT ledger and stake positions
type TokenStore interface {
	AddCLTEntry(ctx context.Context, e *models.CLTEntry) error
	ListCLTEntries(ctx context.Context, address string, limit int) ([]*models.CLTEntry, error)
	FindReward(ctx context.Context, address string, ticketID int64) (*models.CLTEntry, error)
	AddStake(ctx context.Context, s *models.StakePosition) error
	ListStakes(ctx context.Context, address string) ([]*models.StakePosition, error)
	RecordClaim(ctx context.Context, address string, reward decimal.Decimal, txHash string) error
}

var (
	_ TicketStore         = (*TicketRepository)(nil)
	_ IncidentReportStore = (*IncidentReportRepository)(nil)
	_ UserStore           = (*UserRepository)(nil)
	_ ShortlistStore      = (*ShortlistRepository)(nil)
	_ TransactionStore    = (*TransactionRepository)(nil)
	_ TokenStore          = (*TokenRepository)(nil)
)
