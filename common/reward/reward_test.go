package reward

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculate(t *testing.T) {
	tests := []struct {
		severity   models.Severity
		analysts   int
		perAnalyst string
		pool       string
		certifier  string
		total      string
	}{
		{models.SeverityLow, 1, "100", "100", "10", "110"},
		{models.SeverityMedium, 2, "200", "400", "40", "440"},
		{models.SeverityHigh, 3, "300", "900", "90", "990"},
		{models.SeverityCritical, 2, "500", "1000", "100", "1100"},
	}

	calc := Default()
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			b, err := calc.Calculate(tt.severity, tt.analysts)
			require.NoError(t, err)
			assert.True(t, b.PerAnalyst.Equal(dec(tt.perAnalyst)), "per analyst %s", b.PerAnalyst)
			assert.True(t, b.AnalystPool.Equal(dec(tt.pool)), "pool %s", b.AnalystPool)
			assert.True(t, b.CertifierReward.Equal(dec(tt.certifier)), "certifier %s", b.CertifierReward)
			assert.True(t, b.Total.Equal(dec(tt.total)), "total %s", b.Total)
		})
	}
}

func TestCalculate_EdgeCases(t *testing.T) {
	calc := Default()

	b, err := calc.Calculate(models.SeverityHigh, 0)
	require.NoError(t, err)
	assert.True(t, b.Total.IsZero())

	_, err = calc.Calculate(models.Severity("severe"), 1)
	assert.Error(t, err)

	_, err = calc.Calculate(models.SeverityLow, -1)
	assert.Error(t, err)
}

func TestNewCalculator(t *testing.T) {
	calc, err := NewCalculator("50", "0.2")
	require.NoError(t, err)

	b, err := calc.Calculate(models.SeverityMedium, 1)
	require.NoError(t, err)
	assert.True(t, b.Total.Equal(dec("120")))

	_, err = NewCalculator("abc", "0.1")
	assert.Error(t, err)
	_, err = NewCalculator("100", "1.5")
	assert.Error(t, err)
	_, err = NewCalculator("-1", "0.1")
	assert.Error(t, err)
}

func TestWeiConversion(t *testing.T) {
	wei := ToWei(dec("1.5"))
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, wei.Cmp(want))

	assert.True(t, FromWei(want).Equal(dec("1.5")))
	assert.True(t, FromWei(nil).IsZero())

	// Sub-wei fractions are dropped
	assert.Equal(t, "1", ToWei(dec("0.0000000000000000019")).String())
}
