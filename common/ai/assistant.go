// Package ai is the generative text passthrough used for incident analysis,
// security Q&A and audit reports.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/models"
)

var (
	// ErrEmptyInput is returned before any remote call when there is nothing to send
	ErrEmptyInput = errors.New("empty input")

	// ErrUnavailable is returned when the model cannot be reached
	ErrUnavailable = errors.New("ai service unavailable")
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

const (
	analystSystem = "You are a senior SOC analyst. Be precise, cite indicators from the report, " +
		"and never invent evidence that is not present."
	chatSystem = "You are a security assistant for the dSOC platform. Answer security questions " +
		"concisely. Decline requests for offensive tooling."
	auditSystem = "You are a security auditor writing a formal incident audit report in Markdown."

	maxHistory = 20
)

// IncidentInput is the incident data sent for analysis
type IncidentInput struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Severity        string   `json:"severity"`
	Category        string   `json:"category"`
	AffectedSystems string   `json:"affected_systems"`
	Evidence        []string `json:"evidence_urls"`
}

// IncidentFromReport converts a stored report
func IncidentFromReport(r *models.IncidentReport) IncidentInput {
	return IncidentInput{
		Title:           r.Title,
		Description:     r.Description,
		Severity:        string(r.Severity),
		Category:        r.Category,
		AffectedSystems: r.AffectedSystems,
		Evidence:        r.EvidenceURLs,
	}
}

// Assistant runs prompts through a generator behind a circuit breaker
type Assistant struct {
	gen         TextGenerator
	cb          *gobreaker.CircuitBreaker[string]
	timeout     time.Duration
	temperature float32
	log         Logger
}

// NewAssistant wraps gen. A nil gen yields an assistant that reports ErrUnavailable.
func NewAssistant(gen TextGenerator, cfg config.AIConfig, log Logger) *Assistant {
	if gen == nil {
		gen = disabledGenerator{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ai",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Missing configuration says nothing about upstream health
			return err == nil || errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("ai circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Assistant{
		gen:         gen,
		cb:          cb,
		timeout:     timeout,
		temperature: float32(cfg.Temperature),
		log:         log,
	}
}

// AnalyzeIncident produces a triage analysis for an incident
func (a *Assistant) AnalyzeIncident(ctx context.Context, in IncidentInput) (string, error) {
	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(in.Description) == "" {
		return "", ErrEmptyInput
	}

	var b strings.Builder
	b.WriteString("Analyze this security incident and respond with the sections ")
	b.WriteString("Summary, Likely Attack Vector, Indicators of Compromise, Recommended Actions, and Suggested Severity.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	fmt.Fprintf(&b, "Reported severity: %s\n", orNone(in.Severity))
	fmt.Fprintf(&b, "Category: %s\n", orNone(in.Category))
	fmt.Fprintf(&b, "Affected systems: %s\n", orNone(in.AffectedSystems))
	fmt.Fprintf(&b, "Description:\n%s\n", in.Description)
	if len(in.Evidence) > 0 {
		fmt.Fprintf(&b, "Evidence: %s\n", strings.Join(in.Evidence, ", "))
	}

	return a.run(ctx, "analyze", Request{System: analystSystem, Prompt: b.String()})
}

// Chat answers a security question given prior turns
func (a *Assistant) Chat(ctx context.Context, history []Message, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyInput
	}

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	return a.run(ctx, "chat", Request{System: chatSystem, History: history, Prompt: message})
}

// AuditReport writes an audit report for a ticket and its analysis
func (a *Assistant) AuditReport(ctx context.Context, ticket *models.Ticket, analysis string) (string, error) {
	if ticket == nil {
		return "", ErrEmptyInput
	}
	if strings.TrimSpace(ticket.Report) == "" && strings.TrimSpace(analysis) == "" {
		return "", fmt.Errorf("%w: ticket has no report to audit", ErrEmptyInput)
	}

	var b strings.Builder
	b.WriteString("Write an audit report with the sections Executive Summary, Timeline, Findings, ")
	b.WriteString("Impact, Remediation, and Certification Notes.\n\n")
	fmt.Fprintf(&b, "Ticket #%d: %s\n", ticket.TicketID, ticket.Title)
	fmt.Fprintf(&b, "Severity: %s\nStatus: %s\n", ticket.Severity, ticket.Status)
	fmt.Fprintf(&b, "Analysts: %s\n", orNone(strings.Join(ticket.Analysts, ", ")))
	fmt.Fprintf(&b, "Certifier: %s\n", orNone(ticket.CertifierAddress))
	fmt.Fprintf(&b, "Incident description:\n%s\n\n", ticket.Description)
	if ticket.Report != "" {
		fmt.Fprintf(&b, "Analyst report:\n%s\n\n", ticket.Report)
	}
	if analysis != "" {
		fmt.Fprintf(&b, "Automated triage:\n%s\n", analysis)
	}

	return a.run(ctx, "audit_report", Request{System: auditSystem, Prompt: b.String()})
}

func (a *Assistant) run(ctx context.Context, op string, req Request) (string, error) {
	req.Temperature = a.temperature

	start := time.Now()
	text, err := a.cb.Execute(func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.gen.Generate(callCtx, req)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return "", err
		}
		a.log.Error("ai generation failed", "op", op, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	a.log.Debug("ai generation complete", "op", op, "duration_ms", time.Since(start).Milliseconds(), "chars", len(text))
	return text, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not provided"
	}
	return s
}
