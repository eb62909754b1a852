// Package reward computes CLT payouts for completed tickets.
package reward

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/models"
)

// Decimals is the CLT token precision
const Decimals = 18

var multipliers = map[models.Severity]int64{
	models.SeverityLow:      1,
	models.SeverityMedium:   2,
	models.SeverityHigh:     3,
	models.SeverityCritical: 5,
}

// Multiplier returns the severity multiplier
func Multiplier(sev models.Severity) (int64, error) {
	m, ok := multipliers[sev]
	if !ok {
		return 0, fmt.Errorf("no reward multiplier for severity %q", sev)
	}
	return m, nil
}

// Breakdown is the payout for one ticket
type Breakdown struct {
	Severity        models.Severity `json:"severity"`
	Analysts        int             `json:"analysts"`
	PerAnalyst      decimal.Decimal `json:"per_analyst"`
	AnalystPool     decimal.Decimal `json:"analyst_pool"`
	CertifierReward decimal.Decimal `json:"certifier_reward"`
	Total           decimal.Decimal `json:"total"`
}

// Calculator holds the base amount and certifier share
type Calculator struct {
	base           decimal.Decimal
	certifierShare decimal.Decimal
}

// NewCalculator parses base and share, e.g. "100" and "0.10"
func NewCalculator(base, certifierShare string) (*Calculator, error) {
	b, err := decimal.NewFromString(base)
	if err != nil {
		return nil, fmt.Errorf("invalid reward base %q: %w", base, err)
	}
	if b.IsNegative() {
		return nil, fmt.Errorf("reward base must not be negative")
	}

	s, err := decimal.NewFromString(certifierShare)
	if err != nil {
		return nil, fmt.Errorf("invalid certifier share %q: %w", certifierShare, err)
	}
	if s.IsNegative() || s.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("certifier share must be within [0, 1]")
	}

	return &Calculator{base: b, certifierShare: s}, nil
}

// Default returns a calculator with base 100 CLT and a 10% certifier share
func Default() *Calculator {
	return &Calculator{
		base:           decimal.NewFromInt(100),
		certifierShare: decimal.RequireFromString("0.10"),
	}
}

// Calculate computes the payout for a ticket of the given severity
func (c *Calculator) Calculate(sev models.Severity, analysts int) (*Breakdown, error) {
	m, err := Multiplier(sev)
	if err != nil {
		return nil, err
	}
	if analysts < 0 {
		return nil, fmt.Errorf("analyst count must not be negative")
	}

	b := &Breakdown{
		Severity:        sev,
		Analysts:        analysts,
		PerAnalyst:      decimal.Zero,
		AnalystPool:     decimal.Zero,
		CertifierReward: decimal.Zero,
		Total:           decimal.Zero,
	}
	if analysts == 0 {
		return b, nil
	}

	b.PerAnalyst = c.base.Mul(decimal.NewFromInt(m))
	b.AnalystPool = b.PerAnalyst.Mul(decimal.NewFromInt(int64(analysts)))
	b.CertifierReward = b.AnalystPool.Mul(c.certifierShare)
	b.Total = b.AnalystPool.Add(b.CertifierReward)
	return b, nil
}

// ToWei converts a token amount to its 18-decimal integer representation.
// Fractions below one wei are truncated.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(Decimals).Truncate(0).BigInt()
}

// FromWei converts an 18-decimal integer amount back to tokens
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}
