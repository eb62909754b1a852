package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// TokenService handles CLT transfers and the staking pool
type TokenService struct {
	tokens   repository.TokenStore
	ledger   chain.Ledger
	recorder *txRecorder
	isAdmin  func(string) bool
	log      *logger.Logger
}

// NewTokenService creates a new token service. isAdmin may be nil.
func NewTokenService(
	tokens repository.TokenStore,
	txs repository.TransactionStore,
	ledger chain.Ledger,
	isAdmin func(string) bool,
	log *logger.Logger,
) *TokenService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &TokenService{
		tokens:   tokens,
		ledger:   ledger,
		recorder: &txRecorder{txs: txs, backend: ledger.Name(), log: log},
		isAdmin:  isAdmin,
		log:      log,
	}
}

// TokenOpResult is the outcome of a CLT write
type TokenOpResult struct {
	TxHash string          `json:"tx_hash"`
	Status models.TxStatus `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// Balance is a wallet's on-chain CLT balance and off-chain history
type Balance struct {
	Address string             `json:"address"`
	Balance decimal.Decimal    `json:"balance"`
	History []*models.CLTEntry `json:"history"`
}

// Positions is a wallet's stake positions
type Positions struct {
	Address     string                  `json:"address"`
	TotalStaked decimal.Decimal         `json:"total_staked"`
	Stakes      []*models.StakePosition `json:"stakes"`
}

// ParseAmount parses a positive CLT amount
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("invalid amount %q", s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, invalid("amount must be positive")
	}
	return amount, nil
}

// Mint mints CLT to a wallet; admin only
func (s *TokenService) Mint(ctx context.Context, caller, to string, amount decimal.Decimal) (*TokenOpResult, error) {
	if !s.isAdmin(caller) {
		return nil, forbidden("only admins can mint CLT")
	}

	receipt, err := s.ledger.MintCLT(ctx, to, amount)
	if err != nil {
		return nil, err
	}
	s.recorder.record(ctx, receipt, models.TxMint, caller, nil, "")
	s.addEntry(ctx, to, amount, models.CLTMint, receipt.TxHash)

	s.log.WithAddress(to).Info("clt minted", "amount", amount.String(), "tx_hash", receipt.TxHash)
	return &TokenOpResult{TxHash: receipt.TxHash, Status: receipt.Status, Amount: amount}, nil
}

// Approve sets the allowance of spender over the caller's CLT. An empty
// spender approves the staking pool.
func (s *TokenService) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) (*TokenOpResult, error) {
	if amount.IsNegative() {
		return nil, invalid("amount must not be negative")
	}

	receipt, err := s.ledger.ApproveCLT(ctx, owner, spender, amount)
	if err != nil {
		return nil, err
	}
	s.recorder.record(ctx, receipt, models.TxApprove, owner, nil, "")
	s.addEntry(ctx, owner, amount, models.CLTApprove, receipt.TxHash)

	s.log.WithAddress(owner).Info("clt approved", "spender", spender, "amount", amount.String())
	return &TokenOpResult{TxHash: receipt.TxHash, Status: receipt.Status, Amount: amount}, nil
}

// Balance returns the on-chain balance and recent history of address
func (s *TokenService) Balance(ctx context.Context, address string) (*Balance, error) {
	balance, err := s.ledger.GetCLTBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	history, err := s.tokens.ListCLTEntries(ctx, address, 50)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*models.CLTEntry{}
	}
	return &Balance{Address: models.NormalizeAddress(address), Balance: balance, History: history}, nil
}

// JoinPool stakes amount CLT of staker; the pool allowance must cover it
func (s *TokenService) JoinPool(ctx context.Context, staker string, amount decimal.Decimal) (*TokenOpResult, error) {
	receipt, err := s.ledger.JoinPool(ctx, staker, amount)
	if err != nil {
		return nil, err
	}
	s.recorder.record(ctx, receipt, models.TxJoinPool, staker, nil, "")

	stake := &models.StakePosition{WalletAddress: staker, Amount: amount, TxHash: receipt.TxHash}
	if err := s.tokens.AddStake(ctx, stake); err != nil {
		s.log.Error("failed to record stake", "address", staker, "tx_hash", receipt.TxHash, "error", err)
	}

	s.log.WithAddress(staker).Info("joined pool", "amount", amount.String(), "tx_hash", receipt.TxHash)
	return &TokenOpResult{TxHash: receipt.TxHash, Status: receipt.Status, Amount: amount}, nil
}

// ClaimPoolReward claims the staker's pool reward
func (s *TokenService) ClaimPoolReward(ctx context.Context, staker string) (*TokenOpResult, error) {
	receipt, paid, err := s.ledger.ClaimPoolReward(ctx, staker)
	if err != nil {
		return nil, err
	}
	s.recorder.record(ctx, receipt, models.TxClaimReward, staker, nil, "")

	err = s.tokens.RecordClaim(ctx, staker, paid, receipt.TxHash)
	if errors.Is(err, repository.ErrNotFound) {
		// Stakes made before this service tracked them
		s.addEntry(ctx, staker, paid, models.CLTReward, receipt.TxHash)
	} else if err != nil {
		s.log.Error("failed to record claim", "address", staker, "tx_hash", receipt.TxHash, "error", err)
	}

	s.log.WithAddress(staker).Info("pool reward claimed", "reward", paid.String(), "tx_hash", receipt.TxHash)
	return &TokenOpResult{TxHash: receipt.TxHash, Status: receipt.Status, Amount: paid}, nil
}

// Positions returns the stake positions of address
func (s *TokenService) Positions(ctx context.Context, address string) (*Positions, error) {
	stakes, err := s.tokens.ListStakes(ctx, address)
	if err != nil {
		return nil, err
	}
	if stakes == nil {
		stakes = []*models.StakePosition{}
	}

	total := decimal.Zero
	for _, st := range stakes {
		total = total.Add(st.Amount)
	}
	return &Positions{Address: models.NormalizeAddress(address), TotalStaked: total, Stakes: stakes}, nil
}

func (s *TokenService) addEntry(ctx context.Context, address string, amount decimal.Decimal, kind models.CLTKind, txHash string) {
	entry := &models.CLTEntry{WalletAddress: address, Amount: amount, Kind: kind, TxHash: txHash}
	if err := s.tokens.AddCLTEntry(ctx, entry); err != nil {
		s.log.Error("failed to record clt entry", "address", address, "kind", kind, "error", err)
	}
}
