package service

import (
	"context"
	"errors"

	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// AIService exposes the assistant over tickets and free text
type AIService struct {
	assistant *ai.Assistant
	tickets   repository.TicketStore
	reports   repository.IncidentReportStore
	log       *logger.Logger
}

// NewAIService creates a new AI service
func NewAIService(assistant *ai.Assistant, tickets repository.TicketStore, reports repository.IncidentReportStore, log *logger.Logger) *AIService {
	return &AIService{assistant: assistant, tickets: tickets, reports: reports, log: log}
}

// Analyze runs incident analysis on ad hoc input
func (s *AIService) Analyze(ctx context.Context, in ai.IncidentInput) (string, error) {
	return s.assistant.AnalyzeIncident(ctx, in)
}

// Chat answers a security question
func (s *AIService) Chat(ctx context.Context, history []ai.Message, message string) (string, error) {
	return s.assistant.Chat(ctx, history, message)
}

// AuditReport writes an audit report for a ticket, using the AI triage of
// its incident report when there is one
func (s *AIService) AuditReport(ctx context.Context, ticketID int64) (string, error) {
	t, err := s.tickets.GetByTicketID(ctx, ticketID)
	if err != nil {
		return "", err
	}

	analysis := ""
	report, err := s.reports.GetByTicketID(ctx, ticketID)
	switch {
	case err == nil:
		analysis = report.AIAnalysis
	case !errors.Is(err, repository.ErrNotFound):
		return "", err
	}

	return s.assistant.AuditReport(ctx, t, analysis)
}
