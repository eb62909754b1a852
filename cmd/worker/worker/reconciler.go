package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/repository"
	"github.com/DEEPML1818/dsoc/common/telemetry"
)

const reconcileBatch = 100

// Reconciler settles transactions that were recorded as pending
type Reconciler struct {
	txs       repository.TransactionStore
	ledger    chain.Ledger
	telemetry *telemetry.Telemetry
	log       *logger.Logger
	every     time.Duration
	grace     time.Duration
	now       func() time.Time
}

// ReconcileResult counts what one pass changed
type ReconcileResult struct {
	Checked   int
	Confirmed int
	Failed    int
}

// NewReconciler creates a reconciler polling every interval for
// transactions pending longer than grace
func NewReconciler(txs repository.TransactionStore, ledger chain.Ledger, tel *telemetry.Telemetry, log *logger.Logger, every, grace time.Duration) *Reconciler {
	if every <= 0 {
		every = 30 * time.Second
	}
	if grace < 0 {
		grace = 0
	}
	return &Reconciler{
		txs:       txs,
		ledger:    ledger,
		telemetry: tel,
		log:       log,
		every:     every,
		grace:     grace,
		now:       time.Now,
	}
}

// Run reconciles on every tick until ctx is done
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	r.log.Info("reconciler started", "interval", r.every.String(), "grace", r.grace.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.log.Warn("reconcile pass failed", "error", err)
			}
		}
	}
}

// ReconcileOnce checks one batch of stale pending transactions against the ledger
func (r *Reconciler) ReconcileOnce(ctx context.Context) (ReconcileResult, error) {
	start := time.Now()
	defer r.telemetry.RecordDuration("reconcile", start)

	var res ReconcileResult
	pending, err := r.txs.ListPending(ctx, r.now().Add(-r.grace), reconcileBatch)
	if err != nil {
		return res, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	for _, tx := range pending {
		res.Checked++
		status, reason := r.check(ctx, tx)
		if status == models.TxPending {
			continue
		}
		if err := r.txs.SetStatus(ctx, tx.ID, status, reason); err != nil {
			return res, fmt.Errorf("failed to settle transaction %d: %w", tx.ID, err)
		}
		if status == models.TxConfirmed {
			res.Confirmed++
		} else {
			res.Failed++
		}
		r.log.Info("transaction settled", "tx_hash", tx.TxHash, "kind", tx.Kind, "status", status)
	}

	if res.Checked > 0 {
		r.log.Debug("reconcile pass complete", "checked", res.Checked, "confirmed", res.Confirmed, "failed", res.Failed)
	}
	return res, nil
}

// check returns the settled status of tx, or pending when it cannot tell yet
func (r *Reconciler) check(ctx context.Context, tx *models.Transaction) (models.TxStatus, string) {
	if tx.TxHash == "" {
		return models.TxFailed, "no transaction hash recorded"
	}

	status, err := r.ledger.TransactionStatus(ctx, tx.TxHash)
	switch {
	case chain.IsKind(err, chain.KindInvalidInput):
		return models.TxFailed, "transaction unknown to the ledger"
	case err != nil:
		r.log.Warn("could not check transaction", "tx_hash", tx.TxHash, "error", err)
		return models.TxPending, ""
	case status == models.TxFailed:
		return models.TxFailed, "transaction reverted"
	}
	return status, ""
}
