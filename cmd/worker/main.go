package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DEEPML1818/dsoc/cmd/worker/worker"
	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/bootstrap"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/notify"
	"github.com/DEEPML1818/dsoc/common/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap service components
	components, err := bootstrap.Setup(ctx, "worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	log := components.Logger
	cfg := components.Config
	log.Info("worker starting")

	if components.DB == nil {
		log.Error("worker requires a database")
		os.Exit(1)
	}
	if components.Queue == nil {
		log.Error("worker requires a queue")
		os.Exit(1)
	}

	ledger, closeLedger, err := chain.New(ctx, cfg.Chain, log)
	if err != nil {
		log.Error("failed to initialize chain backend", "error", err)
		os.Exit(1)
	}
	defer closeLedger()

	var gen ai.TextGenerator
	if cfg.AI.APIKey != "" {
		g, err := ai.NewGenAIGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			log.Error("failed to initialize ai client", "error", err)
			os.Exit(1)
		}
		gen = g
	} else {
		log.Warn("AI_API_KEY not set, triage disabled")
	}

	w := worker.New(&worker.Opts{
		Queue:          components.Queue,
		Tickets:        repository.NewTicketRepository(components.DB),
		Reports:        repository.NewIncidentReportRepository(components.DB),
		Users:          repository.NewUserRepository(components.DB),
		Transactions:   repository.NewTransactionRepository(components.DB),
		Ledger:         ledger,
		Assistant:      ai.NewAssistant(gen, cfg.AI, log),
		Mailer:         notify.New(cfg.Mail, log),
		Telemetry:      components.Telemetry,
		Logger:         log,
		ReconcileEvery: cfg.Chain.ReconcileEvery,
		ReconcileGrace: cfg.Chain.ReconcileGrace,
	})

	// Start worker in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("worker error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("worker failed", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}

	log.Info("worker shutting down gracefully")
}
