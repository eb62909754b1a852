package repository

import (
	"context"
	"time"

	"github.com/DEEPML1818/dsoc/common/db"
	"github.com/DEEPML1818/dsoc/common/models"
)

// TransactionRepository tracks chain writes and their confirmation state
type TransactionRepository struct {
	db *db.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(database *db.DB) *TransactionRepository {
	return &TransactionRepository{db: database}
}

const txColumns = `id, tx_hash, ticket_id, kind, from_address, status, error, chain, created_at, updated_at`

// Record inserts a transaction row
func (r *TransactionRepository) Record(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (tx_hash, ticket_id, kind, from_address, status, error, chain)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	tx.FromAddress = models.NormalizeAddress(tx.FromAddress)
	err := r.db.QueryRow(ctx, query,
		tx.TxHash,
		tx.TicketID,
		tx.Kind,
		tx.FromAddress,
		tx.Status,
		tx.Error,
		tx.Chain,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return wrap("record transaction", err)
	}
	return nil
}

// SetStatus moves a transaction to confirmed or failed
func (r *TransactionRepository) SetStatus(ctx context.Context, id int64, status models.TxStatus, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $2, error = $3, updated_at = NOW() WHERE id = $1`,
		id, status, reason)
	if err != nil {
		return wrap("update transaction status", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update transaction status", errNoRows)
	}
	return nil
}

// ListPending returns pending transactions created before olderThan
func (r *TransactionRepository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, olderThan, clampLimit(limit))
}

// ListByTicket returns every transaction recorded for a ticket
func (r *TransactionRepository) ListByTicket(ctx context.Context, ticketID int64) ([]*models.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE ticket_id = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, ticketID)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	defer rows.Close()

	txs := []*models.Transaction{}
	for rows.Next() {
		tx := &models.Transaction{}
		if err := rows.Scan(
			&tx.ID,
			&tx.TxHash,
			&tx.TicketID,
			&tx.Kind,
			&tx.FromAddress,
			&tx.Status,
			&tx.Error,
			&tx.Chain,
			&tx.CreatedAt,
			&tx.UpdatedAt,
		); err != nil {
			return nil, wrap("scan transaction", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
