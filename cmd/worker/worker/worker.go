// Package worker consumes ticket events in the background.
//
// Three loops run side by side:
//  1. triage - AI analysis for incident reports linked to new tickets
//  2. notifier - client e-mails on workflow milestones
//  3. reconciler - settles pending chain transactions
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/notify"
	"github.com/DEEPML1818/dsoc/common/queue"
	"github.com/DEEPML1818/dsoc/common/repository"
	"github.com/DEEPML1818/dsoc/common/telemetry"
)

// Consumer groups are shared by every worker instance so each event is
// handled once per concern.
const (
	TriageGroup   = "worker-triage"
	NotifierGroup = "worker-notifier"
)

// Opts holds the worker's collaborators
type Opts struct {
	Queue        queue.Queue
	Tickets      repository.TicketStore
	Reports      repository.IncidentReportStore
	Users        repository.UserStore
	Transactions repository.TransactionStore
	Ledger       chain.Ledger
	Assistant    *ai.Assistant
	Mailer       notify.Notifier
	Telemetry    *telemetry.Telemetry // optional
	Logger       *logger.Logger

	ReconcileEvery time.Duration
	ReconcileGrace time.Duration
}

// Worker runs triage, notification and reconciliation
type Worker struct {
	queue      queue.Queue
	triage     *Triage
	notifier   *Notifier
	reconciler *Reconciler
	log        *logger.Logger
}

// New creates a worker
func New(opts *Opts) *Worker {
	return &Worker{
		queue: opts.Queue,
		triage: &Triage{
			reports:   opts.Reports,
			assistant: opts.Assistant,
			queue:     opts.Queue,
			log:       opts.Logger,
		},
		notifier: &Notifier{
			tickets: opts.Tickets,
			users:   opts.Users,
			mailer:  opts.Mailer,
			log:     opts.Logger,
		},
		reconciler: NewReconciler(opts.Transactions, opts.Ledger, opts.Telemetry, opts.Logger, opts.ReconcileEvery, opts.ReconcileGrace),
		log:        opts.Logger,
	}
}

// Run blocks until ctx is done or a loop fails
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.consume(ctx, TriageGroup, w.triage.Handle)
	})
	g.Go(func() error {
		return w.consume(ctx, NotifierGroup, w.notifier.Handle)
	})
	g.Go(func() error {
		return w.reconciler.Run(ctx)
	})

	w.log.Info("worker started")
	return g.Wait()
}

// consume subscribes handler under group and holds until ctx is done
func (w *Worker) consume(ctx context.Context, group string, handler queue.MessageHandler) error {
	if err := w.queue.Subscribe(ctx, models.TicketEventsTopic, group, handler); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", group, err)
	}
	<-ctx.Done()
	return nil
}

// decode parses a queue payload. Malformed payloads are logged and dropped.
func decode(log *logger.Logger, value []byte) (*models.TicketEvent, bool) {
	evt, err := models.UnmarshalTicketEvent(value)
	if err != nil {
		log.Warn("dropping malformed ticket event", "error", err, "bytes", len(value))
		return nil, false
	}
	return evt, true
}
