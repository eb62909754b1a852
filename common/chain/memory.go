package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/reward"
)

// MemoryPoolAddress is the spender address of the in-memory staking pool
const MemoryPoolAddress = "0x00000000000000000000000000000000000b0071"

type memTicket struct {
	client    common.Address
	severity  uint8
	title     string
	analysts  []common.Address
	certifier common.Address
	validated *bool
}

// MemoryLedger is an in-process ledger with contract-like rules. It reverts
// with the same messages the deployed contracts use.
type MemoryLedger struct {
	mu sync.Mutex

	chainID    int64
	block      uint64
	tickets    map[int64]*memTicket
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	stakes     map[common.Address]*big.Int
	// Part of each stake a reward has already been paid on
	rewarded   map[common.Address]*big.Int
	txs        map[string]models.TxStatus

	// Pool reward paid once per staked amount, as a fraction of it
	rewardRate decimal.Decimal

	pending  bool
	failNext error
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger(chainID int64) *MemoryLedger {
	return &MemoryLedger{
		chainID:    chainID,
		tickets:    make(map[int64]*memTicket),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		stakes:     make(map[common.Address]*big.Int),
		rewarded:   make(map[common.Address]*big.Int),
		txs:        make(map[string]models.TxStatus),
		rewardRate: decimal.RequireFromString("0.05"),
	}
}

// Name identifies the backend
func (m *MemoryLedger) Name() string { return "memory" }

// FailNext makes the next write fail with err before touching state
func (m *MemoryLedger) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// HoldPending makes subsequent writes return pending receipts until Settle
func (m *MemoryLedger) HoldPending(hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = hold
}

// Settle marks a pending transaction with its final status
func (m *MemoryLedger) Settle(txHash string, status models.TxStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txHash] = status
}

// ConnectWallet validates the address and reports its CLT balance
func (m *MemoryLedger) ConnectWallet(ctx context.Context, address string) (*WalletInfo, error) {
	addr, err := parseAddress("connectWallet", address)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return &WalletInfo{
		Address:    addr.Hex(),
		ChainID:    m.chainID,
		Backend:    m.Name(),
		CLTBalance: reward.FromWei(m.balanceOf(addr)),
	}, nil
}

// CreateTicket registers a ticket
func (m *MemoryLedger) CreateTicket(ctx context.Context, ticketID int64, client string, severity models.Severity, title string) (*Receipt, error) {
	addr, err := parseAddress("createTicket", client)
	if err != nil {
		return nil, err
	}
	code, err := severityCode(severity)
	if err != nil {
		return nil, err
	}

	return m.write("createTicket", func() error {
		if _, exists := m.tickets[ticketID]; exists {
			return revert("ticket exists")
		}
		m.tickets[ticketID] = &memTicket{client: addr, severity: code, title: title}
		return nil
	})
}

// AssignAsAnalyst records an analyst on a ticket
func (m *MemoryLedger) AssignAsAnalyst(ctx context.Context, ticketID int64, analyst string) (*Receipt, error) {
	addr, err := parseAddress("assignAnalyst", analyst)
	if err != nil {
		return nil, err
	}

	return m.write("assignAnalyst", func() error {
		t, ok := m.tickets[ticketID]
		if !ok {
			return revert("ticket not found")
		}
		if t.validated != nil && *t.validated {
			return revert("ticket closed")
		}
		for _, a := range t.analysts {
			if a == addr {
				return revert("already assigned")
			}
		}
		t.analysts = append(t.analysts, addr)
		return nil
	})
}

// AssignAsCertifier records the certifier of a ticket
func (m *MemoryLedger) AssignAsCertifier(ctx context.Context, ticketID int64, certifier string) (*Receipt, error) {
	addr, err := parseAddress("assignCertifier", certifier)
	if err != nil {
		return nil, err
	}

	return m.write("assignCertifier", func() error {
		t, ok := m.tickets[ticketID]
		if !ok {
			return revert("ticket not found")
		}
		if t.certifier != (common.Address{}) {
			return revert("certifier already set")
		}
		for _, a := range t.analysts {
			if a == addr {
				return revert("analyst cannot certify")
			}
		}
		t.certifier = addr
		return nil
	})
}

// ValidateTicket records the certifier's verdict
func (m *MemoryLedger) ValidateTicket(ctx context.Context, ticketID int64, approved bool) (*Receipt, error) {
	return m.write("validateTicket", func() error {
		t, ok := m.tickets[ticketID]
		if !ok {
			return revert("ticket not found")
		}
		if t.certifier == (common.Address{}) {
			return revert("no certifier")
		}
		if t.validated != nil && *t.validated {
			return revert("already validated")
		}
		v := approved
		t.validated = &v
		return nil
	})
}

// MintCLT mints amount CLT to the recipient
func (m *MemoryLedger) MintCLT(ctx context.Context, to string, amount decimal.Decimal) (*Receipt, error) {
	addr, err := parseAddress("mint", to)
	if err != nil {
		return nil, err
	}
	if err := requirePositive("mint", amount); err != nil {
		return nil, err
	}

	return m.write("mint", func() error {
		m.balances[addr] = new(big.Int).Add(m.balanceOf(addr), reward.ToWei(amount))
		return nil
	})
}

// ApproveCLT sets the spender allowance of owner
func (m *MemoryLedger) ApproveCLT(ctx context.Context, owner, spender string, amount decimal.Decimal) (*Receipt, error) {
	ownerAddr, err := parseAddress("approve", owner)
	if err != nil {
		return nil, err
	}
	if spender == "" || spender == "pool" {
		spender = MemoryPoolAddress
	}
	spenderAddr, err := parseAddress("approve", spender)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, &Error{Kind: KindInvalidInput, Op: "approve", Message: "amount must not be negative"}
	}

	return m.write("approveFor", func() error {
		if m.allowances[ownerAddr] == nil {
			m.allowances[ownerAddr] = make(map[common.Address]*big.Int)
		}
		m.allowances[ownerAddr][spenderAddr] = reward.ToWei(amount)
		return nil
	})
}

// GetCLTBalance reads the CLT balance of address
func (m *MemoryLedger) GetCLTBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress("balanceOf", address)
	if err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return reward.FromWei(m.balanceOf(addr)), nil
}

// StakeOf returns the staked amount of address
func (m *MemoryLedger) StakeOf(address string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stakes[common.HexToAddress(address)]; ok {
		return reward.FromWei(s)
	}
	return decimal.Zero
}

// JoinPool moves amount CLT from staker into the pool using the pool allowance
func (m *MemoryLedger) JoinPool(ctx context.Context, staker string, amount decimal.Decimal) (*Receipt, error) {
	addr, err := parseAddress("joinPool", staker)
	if err != nil {
		return nil, err
	}
	if err := requirePositive("joinPool", amount); err != nil {
		return nil, err
	}
	wei := reward.ToWei(amount)
	pool := common.HexToAddress(MemoryPoolAddress)

	return m.write("joinPool", func() error {
		allowance := big.NewInt(0)
		if a, ok := m.allowances[addr][pool]; ok {
			allowance = a
		}
		if allowance.Cmp(wei) < 0 {
			return revert("insufficient allowance")
		}
		balance := m.balanceOf(addr)
		if balance.Cmp(wei) < 0 {
			return revert("insufficient balance")
		}

		m.allowances[addr][pool] = new(big.Int).Sub(allowance, wei)
		m.balances[addr] = new(big.Int).Sub(balance, wei)
		stake := big.NewInt(0)
		if s, ok := m.stakes[addr]; ok {
			stake = s
		}
		m.stakes[addr] = new(big.Int).Add(stake, wei)
		return nil
	})
}

// ClaimPoolReward mints the reward on the part of the stake not yet rewarded
// (unrewarded stake × reward rate). With nothing new staked since the last
// claim it reverts.
func (m *MemoryLedger) ClaimPoolReward(ctx context.Context, staker string) (*Receipt, decimal.Decimal, error) {
	addr, err := parseAddress("claimPoolReward", staker)
	if err != nil {
		return nil, decimal.Zero, err
	}

	var paid decimal.Decimal
	receipt, err := m.write("claimPoolReward", func() error {
		stake, ok := m.stakes[addr]
		if !ok || stake.Sign() == 0 {
			return revert("nothing staked")
		}
		done := big.NewInt(0)
		if r, ok := m.rewarded[addr]; ok {
			done = r
		}
		accrued := new(big.Int).Sub(stake, done)
		if accrued.Sign() <= 0 {
			return revert("nothing to claim")
		}
		paid = reward.FromWei(accrued).Mul(m.rewardRate)
		m.balances[addr] = new(big.Int).Add(m.balanceOf(addr), reward.ToWei(paid))
		m.rewarded[addr] = new(big.Int).Set(stake)
		return nil
	})
	if err != nil {
		return receipt, decimal.Zero, err
	}
	return receipt, paid, nil
}

// TransactionStatus reports the state of a transaction written by this ledger
func (m *MemoryLedger) TransactionStatus(ctx context.Context, txHash string) (models.TxStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.txs[txHash]
	if !ok {
		return "", &Error{Kind: KindInvalidInput, Op: "transactionReceipt", Message: "unknown transaction"}
	}
	return status, nil
}

// write runs apply under the lock and records a mined transaction
func (m *MemoryLedger) write(op string, apply func() error) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, Classify(op, err)
	}

	if err := apply(); err != nil {
		return nil, Classify(op, err)
	}

	m.block++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], m.block)
	hash := crypto.Keccak256Hash([]byte(op), seed[:]).Hex()

	status := models.TxConfirmed
	if m.pending {
		status = models.TxPending
	}
	m.txs[hash] = status

	return &Receipt{TxHash: hash, BlockNumber: m.block, Status: status}, nil
}

func (m *MemoryLedger) balanceOf(addr common.Address) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func revert(reason string) error {
	return errors.New("execution reverted: " + reason)
}
