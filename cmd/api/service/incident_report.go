package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/DEEPML1818/dsoc/common/ai"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/repository"
	"github.com/DEEPML1818/dsoc/common/validation"
)

// IncidentReportService handles incident reports submitted by clients
type IncidentReportService struct {
	reports   repository.IncidentReportStore
	tickets   repository.TicketStore
	assistant *ai.Assistant
	validator *validation.PatchValidator
	urls      *validation.URLValidator
	events    *EventPublisher
	log       *logger.Logger
}

// NewIncidentReportService creates a new incident report service
func NewIncidentReportService(
	reports repository.IncidentReportStore,
	tickets repository.TicketStore,
	assistant *ai.Assistant,
	events *EventPublisher,
	log *logger.Logger,
) *IncidentReportService {
	return &IncidentReportService{
		reports:   reports,
		tickets:   tickets,
		assistant: assistant,
		validator: validation.NewPatchValidator(),
		urls:      validation.NewURLValidator(),
		events:    events,
		log:       log,
	}
}

// CreateReportRequest represents a new incident report
type CreateReportRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Severity        string   `json:"severity"`
	Category        string   `json:"category"`
	AffectedSystems string   `json:"affected_systems"`
	EvidenceURLs    []string `json:"evidence_urls"`
}

// Create stores a report submitted by reporter
func (s *IncidentReportService) Create(ctx context.Context, reporter string, req *CreateReportRequest) (*models.IncidentReport, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, invalid("title is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, invalid("description is required")
	}
	severity, err := models.ParseSeverity(req.Severity)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if err := s.urls.ValidateAll(req.EvidenceURLs); err != nil {
		return nil, invalid("%v", err)
	}

	report := &models.IncidentReport{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Severity:        severity,
		Category:        req.Category,
		ReporterAddress: reporter,
		AffectedSystems: req.AffectedSystems,
		EvidenceURLs:    req.EvidenceURLs,
		Status:          models.ReportSubmitted,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}

	s.log.WithAddress(report.ReporterAddress).Info("incident report created", "report_id", report.ID, "severity", severity)
	return report, nil
}

// Get returns a report by id
func (s *IncidentReportService) Get(ctx context.Context, id int64) (*models.IncidentReport, error) {
	return s.reports.GetByID(ctx, id)
}

// List returns reports, optionally only those of reporter
func (s *IncidentReportService) List(ctx context.Context, reporter string, limit, offset int) ([]*models.IncidentReport, error) {
	return s.reports.List(ctx, reporter, limit, offset)
}

// Patch applies an RFC 7396 merge patch from the reporter
func (s *IncidentReportService) Patch(ctx context.Context, id int64, caller string, patch []byte) (*models.IncidentReport, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.ReporterAddress != models.NormalizeAddress(caller) {
		return nil, forbidden("only the reporter can edit incident report %d", id)
	}

	if err := s.validator.ValidateReportPatch(patch); err != nil {
		return nil, invalid("%v", err)
	}

	original, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return nil, invalid("failed to apply patch: %v", err)
	}

	var updated models.IncidentReport
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, invalid("patched report is malformed: %v", err)
	}

	// Immutable fields always come from the stored row
	updated.ID = report.ID
	updated.TicketID = report.TicketID
	updated.ReporterAddress = report.ReporterAddress
	updated.AIAnalysis = report.AIAnalysis
	updated.CreatedAt = report.CreatedAt
	if updated.EvidenceURLs == nil {
		updated.EvidenceURLs = []string{}
	}
	if err := s.urls.ValidateAll(updated.EvidenceURLs); err != nil {
		return nil, invalid("%v", err)
	}

	if err := s.reports.Update(ctx, &updated); err != nil {
		return nil, err
	}

	s.log.Info("incident report patched", "report_id", id, "patch_bytes", len(patch))
	return &updated, nil
}

// Analyze runs AI triage on a report and stores the result. Only the
// reporter and the analysts or certifier of the linked ticket may run it.
func (s *IncidentReportService) Analyze(ctx context.Context, id int64, caller string) (*models.IncidentReport, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkAnalyzer(ctx, report, caller); err != nil {
		return nil, err
	}

	analysis, err := s.assistant.AnalyzeIncident(ctx, ai.IncidentFromReport(report))
	if err != nil {
		return nil, err
	}

	report.AIAnalysis = analysis
	if report.Status == models.ReportSubmitted {
		report.Status = models.ReportTriaged
	}
	if err := s.reports.Update(ctx, report); err != nil {
		return nil, err
	}

	evt := &models.TicketEvent{
		Type:       models.EventReportAnalyzed,
		ReportID:   report.ID,
		Actor:      models.NormalizeAddress(caller),
		Recipients: []string{report.ReporterAddress},
	}
	if report.TicketID != nil {
		evt.TicketID = *report.TicketID
	}
	s.events.Publish(ctx, evt)

	s.log.Info("incident report analyzed", "report_id", id, "chars", len(analysis))
	return report, nil
}

func (s *IncidentReportService) checkAnalyzer(ctx context.Context, report *models.IncidentReport, caller string) error {
	caller = models.NormalizeAddress(caller)
	if caller != "" && caller == report.ReporterAddress {
		return nil
	}
	if report.TicketID != nil && caller != "" {
		t, err := s.tickets.GetByTicketID(ctx, *report.TicketID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err == nil && (t.HasAnalyst(caller) || models.NormalizeAddress(t.CertifierAddress) == caller) {
			return nil
		}
	}
	return forbidden("only the reporter or the ticket's analysts and certifier can analyze incident report %d", report.ID)
}
