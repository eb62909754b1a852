package repository

import (
	"context"

	"github.com/DEEPML1818/dsoc/common/db"
	"github.com/DEEPML1818/dsoc/common/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *db.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(database *db.DB) *UserRepository {
	return &UserRepository{db: database}
}

const userColumns = `id, wallet_address, role, display_name, email, reputation, created_at`

// Create inserts a user; a duplicate wallet address yields ErrConflict
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (wallet_address, role, display_name, email, reputation)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		models.NormalizeAddress(user.WalletAddress),
		user.Role,
		user.DisplayName,
		user.Email,
		user.Reputation,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return wrap("create user", err)
	}

	user.WalletAddress = models.NormalizeAddress(user.WalletAddress)
	return nil
}

// GetByAddress retrieves a user by wallet address
func (r *UserRepository) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet_address = $1`

	user := &models.User{}
	err := r.db.QueryRow(ctx, query, models.NormalizeAddress(address)).Scan(
		&user.ID,
		&user.WalletAddress,
		&user.Role,
		&user.DisplayName,
		&user.Email,
		&user.Reputation,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, wrap("get user", err)
	}
	return user, nil
}

// UpdateRole changes the role of a user
func (r *UserRepository) UpdateRole(ctx context.Context, address string, role models.Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET role = $2 WHERE wallet_address = $1`,
		models.NormalizeAddress(address), role)
	if err != nil {
		return wrap("update user role", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update user role", errNoRows)
	}
	return nil
}

// AddReputation adjusts a user's reputation by delta
func (r *UserRepository) AddReputation(ctx context.Context, address string, delta int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET reputation = reputation + $2 WHERE wallet_address = $1`,
		models.NormalizeAddress(address), delta)
	if err != nil {
		return wrap("update reputation", err)
	}
	return nil
}

// ListByRole lists users with the given role, highest reputation first
func (r *UserRepository) ListByRole(ctx context.Context, role models.Role, limit int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $1
		ORDER BY reputation DESC, created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, role, clampLimit(limit))
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(
			&user.ID,
			&user.WalletAddress,
			&user.Role,
			&user.DisplayName,
			&user.Email,
			&user.Reputation,
			&user.CreatedAt,
		); err != nil {
			return nil, wrap("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate users", err)
	}
	return users, nil
}
