package repository

import (
	"context"

	"github.com/DEEPML1818/dsoc/common/db"
	"github.com/DEEPML1818/dsoc/common/models"
)

// ShortlistRepository handles analyst applications for tickets
type ShortlistRepository struct {
	db *db.DB
}

// NewShortlistRepository creates a new shortlist repository
func NewShortlistRepository(database *db.DB) *ShortlistRepository {
	return &ShortlistRepository{db: database}
}

// Add shortlists an analyst; applying twice yields ErrConflict
func (r *ShortlistRepository) Add(ctx context.Context, entry *models.ShortlistEntry) error {
	query := `
		INSERT INTO ticket_shortlist (ticket_id, analyst_address, note)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	entry.AnalystAddress = models.NormalizeAddress(entry.AnalystAddress)
	err := r.db.QueryRow(ctx, query, entry.TicketID, entry.AnalystAddress, entry.Note).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return wrap("add shortlist entry", err)
	}
	return nil
}

// List returns the shortlist of a ticket in application order
func (r *ShortlistRepository) List(ctx context.Context, ticketID int64) ([]*models.ShortlistEntry, error) {
	query := `
		SELECT id, ticket_id, analyst_address, note, created_at
		FROM ticket_shortlist
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, wrap("list shortlist", err)
	}
	defer rows.Close()

	entries := []*models.ShortlistEntry{}
	for rows.Next() {
		e := &models.ShortlistEntry{}
		if err := rows.Scan(&e.ID, &e.TicketID, &e.AnalystAddress, &e.Note, &e.CreatedAt); err != nil {
			return nil, wrap("scan shortlist entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes an analyst from a ticket shortlist
func (r *ShortlistRepository) Remove(ctx context.Context, ticketID int64, analyst string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM ticket_shortlist WHERE ticket_id = $1 AND analyst_address = $2`,
		ticketID, models.NormalizeAddress(analyst))
	if err != nil {
		return wrap("remove shortlist entry", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("remove shortlist entry", errNoRows)
	}
	return nil
}
