package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/reward"
)

var (
	//go:embed abi/dsoc.json
	dsocABIJSON string
	//go:embed abi/clt.json
	cltABIJSON string
	//go:embed abi/pool.json
	poolABIJSON string
)

// Contract ABIs, parsed once
var (
	DSOCABI = mustParseABI("dsoc", dsocABIJSON)
	CLTABI  = mustParseABI("clt", cltABIJSON)
	PoolABI = mustParseABI("pool", poolABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return parsed
}

// EVMLedger talks to the dSOC, CLT and pool contracts on an EVM chain.
// Writes are signed by the relayer key.
type EVMLedger struct {
	client    *ethclient.Client
	chainID   *big.Int
	key       *ecdsa.PrivateKey
	relayer   common.Address
	poolAddr  common.Address
	dsoc      *bind.BoundContract
	clt       *bind.BoundContract
	pool      *bind.BoundContract
	txTimeout time.Duration
	log       Logger

	// Serializes nonce assignment for the relayer account
	mu sync.Mutex
}

// NewEVMLedger dials the RPC endpoint and binds the configured contracts
func NewEVMLedger(ctx context.Context, cfg config.ChainConfig, log Logger) (*EVMLedger, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.RelayerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse relayer key: %w", err)
	}

	addrs := map[string]string{
		"dsoc": cfg.DSOCAddress,
		"clt":  cfg.CLTAddress,
		"pool": cfg.PoolAddress,
	}
	for name, a := range addrs {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("invalid %s contract address %q", name, a)
		}
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: rpc reports %s, configured %d", chainID, cfg.ChainID)
	}

	poolAddr := common.HexToAddress(cfg.PoolAddress)
	l := &EVMLedger{
		client:    client,
		chainID:   chainID,
		key:       key,
		relayer:   crypto.PubkeyToAddress(key.PublicKey),
		poolAddr:  poolAddr,
		dsoc:      bind.NewBoundContract(common.HexToAddress(cfg.DSOCAddress), DSOCABI, client, client, client),
		clt:       bind.NewBoundContract(common.HexToAddress(cfg.CLTAddress), CLTABI, client, client, client),
		pool:      bind.NewBoundContract(poolAddr, PoolABI, client, client, client),
		txTimeout: cfg.TxTimeout,
		log:       log,
	}

	log.Info("evm ledger connected",
		"chain_id", chainID.String(),
		"relayer", l.relayer.Hex())

	return l, nil
}

// Name identifies the backend
func (l *EVMLedger) Name() string { return "evm" }

// Close releases the RPC connection
func (l *EVMLedger) Close() {
	l.client.Close()
}

// ConnectWallet validates the address and reports its CLT balance
func (l *EVMLedger) ConnectWallet(ctx context.Context, address string) (*WalletInfo, error) {
	addr, err := parseAddress("connectWallet", address)
	if err != nil {
		return nil, err
	}

	balance, err := l.GetCLTBalance(ctx, addr.Hex())
	if err != nil {
		return nil, err
	}

	return &WalletInfo{
		Address:    addr.Hex(),
		ChainID:    l.chainID.Int64(),
		Backend:    l.Name(),
		CLTBalance: balance,
	}, nil
}

// CreateTicket registers a ticket on the dSOC contract
func (l *EVMLedger) CreateTicket(ctx context.Context, ticketID int64, client string, severity models.Severity, title string) (*Receipt, error) {
	addr, err := parseAddress("createTicket", client)
	if err != nil {
		return nil, err
	}
	code, err := severityCode(severity)
	if err != nil {
		return nil, err
	}
	return l.transact(ctx, l.dsoc, "createTicket", big.NewInt(ticketID), addr, code, title)
}

// AssignAsAnalyst records an analyst on a ticket
func (l *EVMLedger) AssignAsAnalyst(ctx context.Context, ticketID int64, analyst string) (*Receipt, error) {
	addr, err := parseAddress("assignAnalyst", analyst)
	if err != nil {
		return nil, err
	}
	return l.transact(ctx, l.dsoc, "assignAnalyst", big.NewInt(ticketID), addr)
}

// AssignAsCertifier records the certifier of a ticket
func (l *EVMLedger) AssignAsCertifier(ctx context.Context, ticketID int64, certifier string) (*Receipt, error) {
	addr, err := parseAddress("assignCertifier", certifier)
	if err != nil {
		return nil, err
	}
	return l.transact(ctx, l.dsoc, "assignCertifier", big.NewInt(ticketID), addr)
}

// ValidateTicket records the certifier's verdict
func (l *EVMLedger) ValidateTicket(ctx context.Context, ticketID int64, approved bool) (*Receipt, error) {
	return l.transact(ctx, l.dsoc, "validateTicket", big.NewInt(ticketID), approved)
}

// MintCLT mints amount CLT to the recipient
func (l *EVMLedger) MintCLT(ctx context.Context, to string, amount decimal.Decimal) (*Receipt, error) {
	addr, err := parseAddress("mint", to)
	if err != nil {
		return nil, err
	}
	if err := requirePositive("mint", amount); err != nil {
		return nil, err
	}
	return l.transact(ctx, l.clt, "mint", addr, reward.ToWei(amount))
}

// ApproveCLT sets the spender allowance of owner
func (l *EVMLedger) ApproveCLT(ctx context.Context, owner, spender string, amount decimal.Decimal) (*Receipt, error) {
	ownerAddr, err := parseAddress("approve", owner)
	if err != nil {
		return nil, err
	}
	spenderAddr, err := l.spender(spender)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, &Error{Kind: KindInvalidInput, Op: "approve", Message: "amount must not be negative"}
	}
	return l.transact(ctx, l.clt, "approveFor", ownerAddr, spenderAddr, reward.ToWei(amount))
}

// GetCLTBalance reads the CLT balance of address
func (l *EVMLedger) GetCLTBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress("balanceOf", address)
	if err != nil {
		return decimal.Zero, err
	}

	wei, err := l.callUint(ctx, l.clt, "balanceOf", addr)
	if err != nil {
		return decimal.Zero, err
	}
	return reward.FromWei(wei), nil
}

// JoinPool stakes amount CLT for staker; the pool must hold an allowance
func (l *EVMLedger) JoinPool(ctx context.Context, staker string, amount decimal.Decimal) (*Receipt, error) {
	addr, err := parseAddress("joinPool", staker)
	if err != nil {
		return nil, err
	}
	if err := requirePositive("joinPool", amount); err != nil {
		return nil, err
	}
	return l.transact(ctx, l.pool, "joinPool", addr, reward.ToWei(amount))
}

// ClaimPoolReward pays out the staker's pending pool reward
func (l *EVMLedger) ClaimPoolReward(ctx context.Context, staker string) (*Receipt, decimal.Decimal, error) {
	addr, err := parseAddress("claimPoolReward", staker)
	if err != nil {
		return nil, decimal.Zero, err
	}

	pending, err := l.callUint(ctx, l.pool, "pendingReward", addr)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if pending.Sign() == 0 {
		return nil, decimal.Zero, &Error{Kind: KindReverted, Op: "claimPoolReward", Message: "No pool reward to claim."}
	}

	receipt, err := l.transact(ctx, l.pool, "claimPoolReward", addr)
	if err != nil {
		return receipt, decimal.Zero, err
	}
	return receipt, reward.FromWei(pending), nil
}

// TransactionStatus looks up the receipt of txHash
func (l *EVMLedger) TransactionStatus(ctx context.Context, txHash string) (models.TxStatus, error) {
	receipt, err := l.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return models.TxPending, nil
	}
	if err != nil {
		return "", Classify("transactionReceipt", err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return models.TxConfirmed, nil
	}
	return models.TxFailed, nil
}

func (l *EVMLedger) spender(spender string) (common.Address, error) {
	if spender == "" || strings.EqualFold(spender, "pool") {
		return l.poolAddr, nil
	}
	return parseAddress("approve", spender)
}

func (l *EVMLedger) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(l.key, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	l.mu.Lock()
	tx, err := contract.Transact(opts, method, args...)
	l.mu.Unlock()
	if err != nil {
		l.log.Warn("chain transaction rejected", "method", method, "error", err)
		return nil, Classify(method, err)
	}

	hash := tx.Hash().Hex()
	l.log.Debug("chain transaction submitted", "method", method, "tx_hash", hash)

	waitCtx, cancel := context.WithTimeout(ctx, l.txTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, l.client, tx)
	if err != nil {
		// Accepted but not mined in time; the reconciler settles it later
		l.log.Warn("chain transaction not mined before timeout", "method", method, "tx_hash", hash, "error", err)
		return &Receipt{TxHash: hash, Status: models.TxPending}, nil
	}

	out := &Receipt{TxHash: hash, BlockNumber: receipt.BlockNumber.Uint64(), Status: models.TxConfirmed}
	if receipt.Status != types.ReceiptStatusSuccessful {
		out.Status = models.TxFailed
		return out, &Error{Kind: KindReverted, Op: method, Message: "The contract rejected this transaction."}
	}

	l.log.Info("chain transaction confirmed", "method", method, "tx_hash", hash, "block", out.BlockNumber)
	return out, nil
}

func (l *EVMLedger) callUint(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, Classify(method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected output count %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}

// PackCall encodes a contract call, for offline signing and tests
func PackCall(contractABI abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// MethodOf decodes the method selector of calldata
func MethodOf(contractABI abi.ABI, data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("calldata too short")
	}
	for name, m := range contractABI.Methods {
		if bytes.Equal(m.ID, data[:4]) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown selector %x", data[:4])
}
