package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/db"
	"github.com/DEEPML1818/dsoc/common/models"
)

// TokenRepository records CLT movements and pool stakes
type TokenRepository struct {
	db *db.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(database *db.DB) *TokenRepository {
	return &TokenRepository{db: database}
}

// AddCLTEntry appends a CLT ledger entry
func (r *TokenRepository) AddCLTEntry(ctx context.Context, e *models.CLTEntry) error {
	query := `
		INSERT INTO clt_tokens (wallet_address, amount, kind, ticket_id, tx_hash)
		VALUES ($1, $2::text::numeric, $3, $4, $5)
		RETURNING id, created_at
	`

	e.WalletAddress = models.NormalizeAddress(e.WalletAddress)
	err := r.db.QueryRow(ctx, query, e.WalletAddress, e.Amount.String(), e.Kind, e.TicketID, e.TxHash).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return wrap("add clt entry", err)
	}
	return nil
}

// ListCLTEntries returns the CLT history of a wallet, newest first
func (r *TokenRepository) ListCLTEntries(ctx context.Context, address string, limit int) ([]*models.CLTEntry, error) {
	query := `
		SELECT id, wallet_address, amount::text, kind, ticket_id, tx_hash, created_at
		FROM clt_tokens
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, models.NormalizeAddress(address), clampLimit(limit))
	if err != nil {
		return nil, wrap("list clt entries", err)
	}
	defer rows.Close()

	entries := []*models.CLTEntry{}
	for rows.Next() {
		e := &models.CLTEntry{}
		var amount string
		if err := rows.Scan(&e.ID, &e.WalletAddress, &amount, &e.Kind, &e.TicketID, &e.TxHash, &e.CreatedAt); err != nil {
			return nil, wrap("scan clt entry", err)
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindReward returns the reward entry minted to address for ticketID
func (r *TokenRepository) FindReward(ctx context.Context, address string, ticketID int64) (*models.CLTEntry, error) {
	query := `
		SELECT id, wallet_address, amount::text, kind, ticket_id, tx_hash, created_at
		FROM clt_tokens
		WHERE wallet_address = $1 AND kind = $2 AND ticket_id = $3
		ORDER BY created_at ASC
		LIMIT 1
	`

	e := &models.CLTEntry{}
	var amount string
	err := r.db.QueryRow(ctx, query, models.NormalizeAddress(address), models.CLTReward, ticketID).
		Scan(&e.ID, &e.WalletAddress, &amount, &e.Kind, &e.TicketID, &e.TxHash, &e.CreatedAt)
	if err != nil {
		return nil, wrap("find reward", err)
	}
	if e.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	return e, nil
}

// AddStake records a pool stake
func (r *TokenRepository) AddStake(ctx context.Context, s *models.StakePosition) error {
	query := `
		INSERT INTO stake_tokens (wallet_address, amount, tx_hash)
		VALUES ($1, $2::text::numeric, $3)
		RETURNING id, created_at
	`

	s.WalletAddress = models.NormalizeAddress(s.WalletAddress)
	if err := r.db.QueryRow(ctx, query, s.WalletAddress, s.Amount.String(), s.TxHash).
		Scan(&s.ID, &s.CreatedAt); err != nil {
		return wrap("add stake", err)
	}
	return nil
}

// ListStakes returns the stake positions of a wallet
func (r *TokenRepository) ListStakes(ctx context.Context, address string) ([]*models.StakePosition, error) {
	query := `
		SELECT id, wallet_address, amount::text, claimed_reward::text, tx_hash, claimed_at, created_at
		FROM stake_tokens
		WHERE wallet_address = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, models.NormalizeAddress(address))
	if err != nil {
		return nil, wrap("list stakes", err)
	}
	defer rows.Close()

	stakes := []*models.StakePosition{}
	for rows.Next() {
		s := &models.StakePosition{}
		var amount, claimed string
		if err := rows.Scan(&s.ID, &s.WalletAddress, &amount, &claimed, &s.TxHash, &s.ClaimedAt, &s.CreatedAt); err != nil {
			return nil, wrap("scan stake", err)
		}
		if s.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if s.ClaimedReward, err = parseAmount(claimed); err != nil {
			return nil, err
		}
		stakes = append(stakes, s)
	}
	return stakes, rows.Err()
}

// RecordClaim attributes a claimed pool reward to the wallet's open stakes and
// logs the reward as a CLT entry, atomically.
func (r *TokenRepository) RecordClaim(ctx context.Context, address string, reward decimal.Decimal, txHash string) error {
	address = models.NormalizeAddress(address)

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE stake_tokens
			SET claimed_reward = claimed_reward + ($2::text::numeric / GREATEST(
					(SELECT COUNT(*) FROM stake_tokens WHERE wallet_address = $1 AND claimed_at IS NULL), 1)),
				claimed_at = NOW()
			WHERE wallet_address = $1 AND claimed_at IS NULL
		`, address, reward.String())
		if err != nil {
			return wrap("mark stakes claimed", err)
		}
		if tag.RowsAffected() == 0 {
			return wrap("mark stakes claimed", errNoRows)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO clt_tokens (wallet_address, amount, kind, tx_hash)
			VALUES ($1, $2::text::numeric, $3, $4)
		`, address, reward.String(), models.CLTReward, txHash); err != nil {
			return wrap("record claim entry", err)
		}
		return nil
	})
}
