// Package chain is the contract-service client: ticket lifecycle calls on the
// dSOC contract and CLT mint/approve/stake calls, behind one Ledger interface.
package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Receipt is the outcome of a submitted write. Status is pending when the
// transaction was accepted but not mined within the wait timeout.
type Receipt struct {
	TxHash      string          `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	Status      models.TxStatus `json:"status"`
}

// WalletInfo is returned by ConnectWallet
type WalletInfo struct {
	Address    string          `json:"address"`
	ChainID    int64           `json:"chain_id"`
	Backend    string          `json:"backend"`
	CLTBalance decimal.Decimal `json:"clt_balance"`
}

// Ledger is implemented by every chain backend
type Ledger interface {
	// Name identifies the backend in stored records
	Name() string

	ConnectWallet(ctx context.Context, address string) (*WalletInfo, error)

	CreateTicket(ctx context.Context, ticketID int64, client string, severity models.Severity, title string) (*Receipt, error)
	AssignAsAnalyst(ctx context.Context, ticketID int64, analyst string) (*Receipt, error)
	AssignAsCertifier(ctx context.Context, ticketID int64, certifier string) (*Receipt, error)
	ValidateTicket(ctx context.Context, ticketID int64, approved bool) (*Receipt, error)

	MintCLT(ctx context.Context, to string, amount decimal.Decimal) (*Receipt, error)
	ApproveCLT(ctx context.Context, owner, spender string, amount decimal.Decimal) (*Receipt, error)
	GetCLTBalance(ctx context.Context, address string) (decimal.Decimal, error)

	JoinPool(ctx context.Context, staker string, amount decimal.Decimal) (*Receipt, error)
	// ClaimPoolReward returns the reward paid out alongside the receipt
	ClaimPoolReward(ctx context.Context, staker string) (*Receipt, decimal.Decimal, error)

	// TransactionStatus reports the current state of a submitted transaction
	TransactionStatus(ctx context.Context, txHash string) (models.TxStatus, error)
}

// severityCode maps severities to the contract's uint8 enum
func severityCode(sev models.Severity) (uint8, error) {
	switch sev {
	case models.SeverityLow:
		return 0, nil
	case models.SeverityMedium:
		return 1, nil
	case models.SeverityHigh:
		return 2, nil
	case models.SeverityCritical:
		return 3, nil
	default:
		return 0, &Error{Kind: KindInvalidInput, Op: "severity", Message: fmt.Sprintf("unknown severity %q", sev)}
	}
}

// parseAddress validates a hex address
func parseAddress(op, address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, &Error{
			Kind:    KindInvalidInput,
			Op:      op,
			Message: fmt.Sprintf("invalid address %q", address),
		}
	}
	return common.HexToAddress(address), nil
}

func requirePositive(op string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &Error{Kind: KindInvalidInput, Op: op, Message: "amount must be positive"}
	}
	return nil
}

// New selects the backend named by cfg.Backend. The returned func releases it.
func New(ctx context.Context, cfg config.ChainConfig, log Logger) (Ledger, func(), error) {
	switch cfg.Backend {
	case "evm":
		l, err := NewEVMLedger(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	case "memory", "":
		log.Warn("using in-memory ledger, chain state is not persisted")
		return NewMemoryLedger(cfg.ChainID), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported chain backend: %s", cfg.Backend)
	}
}
