package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/db"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on unique violations and stale updates
	ErrConflict = errors.New("conflict")

	// errNoRows stands in for pgx.ErrNoRows when an UPDATE/DELETE touches nothing
	errNoRows = pgx.ErrNoRows
)

// wrap adds context to err, translating driver errors into sentinels
func wrap(op string, err error) error {
	switch {
	case db.IsNoRows(err):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

// parseAmount converts a NUMERIC::text column into a decimal
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric %q: %w", s, err)
	}
	return d, nil
}

// nonNil keeps TEXT[] NOT NULL columns from receiving NULL
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
