package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/queue"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// Triage analyzes the incident report behind every new ticket
type Triage struct {
	reports   repository.IncidentReportStore
	assistant *ai.Assistant
	queue     queue.Queue
	log       *logger.Logger
}

// Handle processes one ticket event
func (t *Triage) Handle(ctx context.Context, key string, value []byte) error {
	evt, ok := decode(t.log, value)
	if !ok || evt.Type != models.EventTicketCreated {
		return nil
	}
	log := t.log.WithTicketID(evt.TicketID)

	report, err := t.reports.GetByTicketID(ctx, evt.TicketID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Debug("ticket has no incident report, skipping triage")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load report for ticket %d: %w", evt.TicketID, err)
	}
	if report.AIAnalysis != "" {
		log.Debug("report already analyzed", "report_id", report.ID)
		return nil
	}

	analysis, err := t.assistant.AnalyzeIncident(ctx, ai.IncidentFromReport(report))
	switch {
	case errors.Is(err, ai.ErrUnavailable), errors.Is(err, ai.ErrEmptyInput):
		log.Warn("skipping triage", "report_id", report.ID, "reason", err.Error())
		return nil
	case err != nil:
		return fmt.Errorf("failed to analyze report %d: %w", report.ID, err)
	}

	report.AIAnalysis = analysis
	if report.Status == models.ReportSubmitted {
		report.Status = models.ReportTriaged
	}
	if err := t.reports.Update(ctx, report); err != nil {
		return fmt.Errorf("failed to store analysis for report %d: %w", report.ID, err)
	}
	log.Info("incident report triaged", "report_id", report.ID, "chars", len(analysis))

	t.announce(ctx, evt.TicketID, report)
	return nil
}

func (t *Triage) announce(ctx context.Context, ticketID int64, report *models.IncidentReport) {
	out := &models.TicketEvent{
		EventID:    uuid.NewString(),
		Type:       models.EventReportAnalyzed,
		TicketID:   ticketID,
		ReportID:   report.ID,
		Actor:      "worker",
		Recipients: []string{report.ReporterAddress},
		OccurredAt: time.Now().UTC(),
	}
	data, err := out.Marshal()
	if err != nil {
		t.log.Error("failed to marshal ticket event", "error", err)
		return
	}
	if err := t.queue.Publish(ctx, models.TicketEventsTopic, strconv.FormatInt(ticketID, 10), data); err != nil {
		t.log.Warn("failed to publish report analysis", "ticket_id", ticketID, "error", err)
	}
}
