package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the confirmation state of a submitted chain transaction
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TxKind names the contract call a transaction performed
type TxKind string

const (
	TxCreateTicket    TxKind = "create_ticket"
	TxAssignAnalyst   TxKind = "assign_analyst"
	TxAssignCertifier TxKind = "assign_certifier"
	TxValidate        TxKind = "validate_ticket"
	TxMint            TxKind = "mint"
	TxApprove         TxKind = "approve"
	TxJoinPool        TxKind = "join_pool"
	TxClaimReward     TxKind = "claim_reward"
)

// Transaction records a chain write made on behalf of a wallet
// Maps to: transactions table
type Transaction struct {
	ID          int64     `db:"id" json:"id"`
	TxHash      string    `db:"tx_hash" json:"tx_hash"`
	TicketID    *int64    `db:"ticket_id" json:"ticket_id,omitempty"`
	Kind        TxKind    `db:"kind" json:"kind"`
	FromAddress string    `db:"from_address" json:"from_address"`
	Status      TxStatus  `db:"status" json:"status"`
	Error       string    `db:"error" json:"error,omitempty"`
	Chain       string    `db:"chain" json:"chain"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CLTKind classifies CLT ledger entries
type CLTKind string

const (
	CLTMint    CLTKind = "mint"
	CLTApprove CLTKind = "approve"
	CLTReward  CLTKind = "reward"
)

// CLTEntry is one CLT movement recorded off chain
// Maps to: clt_tokens table
type CLTEntry struct {
	ID            int64           `db:"id" json:"id"`
	WalletAddress string          `db:"wallet_address" json:"wallet_address"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Kind          CLTKind         `db:"kind" json:"kind"`
	TicketID      *int64          `db:"ticket_id" json:"ticket_id,omitempty"`
	TxHash        string          `db:"tx_hash" json:"tx_hash"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// StakePosition is a wallet's stake in the reward pool
// Maps to: stake_tokens table
type StakePosition struct {
	ID            int64           `db:"id" json:"id"`
	WalletAddress string          `db:"wallet_address" json:"wallet_address"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	ClaimedReward decimal.Decimal `db:"claimed_reward" json:"claimed_reward"`
	TxHash        string          `db:"tx_hash" json:"tx_hash"`
	ClaimedAt     *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
