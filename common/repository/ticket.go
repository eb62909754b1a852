package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DEEPML1818/dsoc/common/db"
	"github.com/DEEPML1818/dsoc/common/models"
)

// TicketRepository handles database operations for tickets
type TicketRepository struct {
	db *db.DB
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(database *db.DB) *TicketRepository {
	return &TicketRepository{db: database}
}

const ticketColumns = `id, ticket_id, title, description, category, severity, status,
	client_address, analysts, certifier_address, report, reward_amount::text,
	chain, tx_hash, created_at, updated_at`

// NextTicketID allocates the next on-chain ticket id
func (r *TicketRepository) NextTicketID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('ticket_id_seq')`).Scan(&id); err != nil {
		return 0, wrap("allocate ticket id", err)
	}
	return id, nil
}

// Create inserts a ticket; the ticket_id must already be allocated
func (r *TicketRepository) Create(ctx context.Context, t *models.Ticket) error {
	query := `
		INSERT INTO tickets (ticket_id, title, description, category, severity, status,
			client_address, analysts, certifier_address, report, reward_amount, chain, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::text::numeric, $12, $13)
		RETURNING id, created_at, updated_at
	`

	t.ClientAddress = models.NormalizeAddress(t.ClientAddress)
	err := r.db.QueryRow(ctx, query,
		t.TicketID,
		t.Title,
		t.Description,
		t.Category,
		t.Severity,
		t.Status,
		t.ClientAddress,
		nonNil(t.Analysts),
		t.CertifierAddress,
		t.Report,
		t.RewardAmount.String(),
		t.Chain,
		t.TxHash,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return wrap("create ticket", err)
	}
	return nil
}

// GetByTicketID retrieves a ticket by its on-chain id
func (r *TicketRepository) GetByTicketID(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id = $1`

	t, err := scanTicket(r.db.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, wrap("get ticket", err)
	}
	return t, nil
}

// List returns tickets matching the filter, newest first
func (r *TicketRepository) List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error) {
	query, args := buildTicketListQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list tickets", err)
	}
	defer rows.Close()

	tickets := []*models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrap("scan ticket", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate tickets", err)
	}
	return tickets, nil
}

// PendingAnalysis lists tickets an analyst can still join, oldest first
func (r *TicketRepository) PendingAnalysis(ctx context.Context, maxAnalysts, limit int) ([]*models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status IN ('open', 'assigned') AND cardinality(analysts) < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, maxAnalysts, clampLimit(limit))
	if err != nil {
		return nil, wrap("list pending tickets", err)
	}
	defer rows.Close()

	tickets := []*models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrap("scan ticket", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// CountByStatus counts tickets per status for the filter (limit/offset ignored)
func (r *TicketRepository) CountByStatus(ctx context.Context, filter models.TicketFilter) (map[models.TicketStatus]int, error) {
	where, args := ticketWhere(filter)
	query := `SELECT status, COUNT(*) FROM tickets` + where + ` GROUP BY status`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("count tickets", err)
	}
	defer rows.Close()

	counts := make(map[models.TicketStatus]int)
	for rows.Next() {
		var status models.TicketStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrap("scan ticket count", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateWorkflow persists the workflow fields of t if it has not changed since
// it was read (compared on updated_at). A stale write yields ErrConflict.
func (r *TicketRepository) UpdateWorkflow(ctx context.Context, t *models.Ticket) error {
	query := `
		UPDATE tickets
		SET status = $2, analysts = $3, certifier_address = $4, report = $5,
			reward_amount = $6::text::numeric, tx_hash = $7, updated_at = NOW()
		WHERE ticket_id = $1 AND updated_at = $8
		RETURNING updated_at
	`

	var updatedAt time.Time
	err := r.db.QueryRow(ctx, query,
		t.TicketID,
		t.Status,
		nonNil(t.Analysts),
		models.NormalizeAddress(t.CertifierAddress),
		t.Report,
		t.RewardAmount.String(),
		t.TxHash,
		t.UpdatedAt,
	).Scan(&updatedAt)
	if db.IsNoRows(err) {
		return fmt.Errorf("update ticket %d: %w", t.TicketID, ErrConflict)
	}
	if err != nil {
		return wrap("update ticket", err)
	}

	t.UpdatedAt = updatedAt
	return nil
}

// Lock holds a transaction-scoped advisory lock keyed on the ticket id while
// fn runs. Workflow writes read the ticket, write the chain and then update
// the row, so two of them must not interleave on one ticket across instances.
func (r *TicketRepository) Lock(ctx context.Context, ticketID int64, fn func(ctx context.Context) error) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ticketID); err != nil {
			return wrap("lock ticket", err)
		}
		return fn(ctx)
	})
}

func ticketWhere(filter models.TicketFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.ClientAddress != "" {
		add("client_address = $%d", models.NormalizeAddress(filter.ClientAddress))
	}
	if filter.Analyst != "" {
		add("$%d = ANY(analysts)", models.NormalizeAddress(filter.Analyst))
	}
	if filter.Certifier != "" {
		add("certifier_address = $%d", models.NormalizeAddress(filter.Certifier))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildTicketListQuery(filter models.TicketFilter) (string, []interface{}) {
	where, args := ticketWhere(filter)

	args = append(args, clampLimit(filter.Limit))
	limitPos := len(args)
	args = append(args, max(filter.Offset, 0))
	offsetPos := len(args)

	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		ticketColumns, where, limitPos, offsetPos)
	return query, args
}

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	t := &models.Ticket{}
	var reward string
	err := row.Scan(
		&t.ID,
		&t.TicketID,
		&t.Title,
		&t.Description,
		&t.Category,
		&t.Severity,
		&t.Status,
		&t.ClientAddress,
		&t.Analysts,
		&t.CertifierAddress,
		&t.Report,
		&reward,
		&t.Chain,
		&t.TxHash,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.RewardAmount, err = parseAmount(reward); err != nil {
		return nil, err
	}
	return t, nil
}
