package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/models"
)

func TestWrap_TranslatesDriverErrors(t *testing.T) {
	err := wrap("get ticket", pgx.ErrNoRows)
	assert.ErrorIs(t, err, ErrNotFound)

	err = wrap("create user", &pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, err, ErrConflict)

	other := errors.New("boom")
	err = wrap("list tickets", other)
	assert.ErrorIs(t, err, other)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "failed to list tickets")
}

func TestBuildTicketListQuery(t *testing.T) {
	query, args := buildTicketListQuery(models.TicketFilter{
		Status:        models.StatusAssigned,
		ClientAddress: "0xABC",
		Analyst:       "0xDEF",
		Limit:         10,
		Offset:        20,
	})

	assert.Contains(t, query, "WHERE status = $1 AND client_address = $2 AND $3 = ANY(analysts)")
	assert.Contains(t, query, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []interface{}{models.StatusAssigned, "0xabc", "0xdef", 10, 20}, args)
}

func TestBuildTicketListQuery_NoFilter(t *testing.T) {
	query, args := buildTicketListQuery(models.TicketFilter{Limit: -1, Offset: -5})

	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "LIMIT $1 OFFSET $2")
	assert.Equal(t, []interface{}{100, 0}, args)
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("150.500000000000000000")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("150.5")))

	d, err = parseAmount("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = parseAmount("abc")
	assert.Error(t, err)
}

func TestNonNil(t *testing.T) {
	assert.NotNil(t, nonNil(nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
	assert.Equal(t, 100, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, 100, clampLimit(10000))
}
