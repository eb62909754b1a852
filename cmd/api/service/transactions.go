package service

import (
	"context"

	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// txRecorder stores the outcome of every chain write
type txRecorder struct {
	txs     repository.TransactionStore
	backend string
	log     *logger.Logger
}

// record saves receipt under kind. note is kept on the row, e.g. when the
// off-chain write that should have followed did not happen.
func (r *txRecorder) record(ctx context.Context, receipt *chain.Receipt, kind models.TxKind, from string, ticketID *int64, note string) *models.Transaction {
	if receipt == nil {
		return nil
	}

	status := receipt.Status
	if status == "" {
		status = models.TxConfirmed
	}
	if note != "" && status == models.TxConfirmed {
		// Leave it for the reconciler so the gap is visible
		status = models.TxPending
	}

	tx := &models.Transaction{
		TxHash:      receipt.TxHash,
		TicketID:    ticketID,
		Kind:        kind,
		FromAddress: from,
		Status:      status,
		Error:       note,
		Chain:       r.backend,
	}
	if err := r.txs.Record(ctx, tx); err != nil {
		r.log.Error("failed to record transaction",
			"tx_hash", receipt.TxHash,
			"kind", kind,
			"error", err)
		return nil
	}
	return tx
}

func ticketRef(id int64) *int64 {
	return &id
}
