package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/DEEPML1818/dsoc/common/db"
	"github.com/DEEPML1818/dsoc/common/models"
)

// IncidentReportRepository handles database operations for incident reports
type IncidentReportRepository struct {
	db *db.DB
}

// NewIncidentReportRepository creates a new incident report repository
func NewIncidentReportRepository(database *db.DB) *IncidentReportRepository {
	return &IncidentReportRepository{db: database}
}

const reportColumns = `id, ticket_id, title, description, severity, category, reporter_address,
	affected_systems, evidence_urls, ai_analysis, status, created_at, updated_at`

// Create inserts an incident report
func (r *IncidentReportRepository) Create(ctx context.Context, report *models.IncidentReport) error {
	query := `
		INSERT INTO incident_reports (ticket_id, title, description, severity, category,
			reporter_address, affected_systems, evidence_urls, ai_analysis, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	report.ReporterAddress = models.NormalizeAddress(report.ReporterAddress)
	err := r.db.QueryRow(ctx, query,
		report.TicketID,
		report.Title,
		report.Description,
		report.Severity,
		report.Category,
		report.ReporterAddress,
		report.AffectedSystems,
		nonNil(report.EvidenceURLs),
		report.AIAnalysis,
		report.Status,
	).Scan(&report.ID, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return wrap("create incident report", err)
	}
	return nil
}

// GetByID retrieves an incident report
func (r *IncidentReportRepository) GetByID(ctx context.Context, id int64) (*models.IncidentReport, error) {
	query := `SELECT ` + reportColumns + ` FROM incident_reports WHERE id = $1`

	report, err := scanReport(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrap("get incident report", err)
	}
	return report, nil
}

// GetByTicketID retrieves the report linked to a ticket
func (r *IncidentReportRepository) GetByTicketID(ctx context.Context, ticketID int64) (*models.IncidentReport, error) {
	query := `SELECT ` + reportColumns + ` FROM incident_reports WHERE ticket_id = $1 ORDER BY id LIMIT 1`

	report, err := scanReport(r.db.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, wrap("get incident report by ticket", err)
	}
	return report, nil
}

// List returns reports, optionally filtered by reporter, newest first
func (r *IncidentReportRepository) List(ctx context.Context, reporter string, limit, offset int) ([]*models.IncidentReport, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM incident_reports
		WHERE ($1 = '' OR reporter_address = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, models.NormalizeAddress(reporter), clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, wrap("list incident reports", err)
	}
	defer rows.Close()

	reports := []*models.IncidentReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, wrap("scan incident report", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Update writes every mutable field of report
func (r *IncidentReportRepository) Update(ctx context.Context, report *models.IncidentReport) error {
	query := `
		UPDATE incident_reports
		SET ticket_id = $2, title = $3, description = $4, severity = $5, category = $6,
			affected_systems = $7, evidence_urls = $8, ai_analysis = $9, status = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		report.ID,
		report.TicketID,
		report.Title,
		report.Description,
		report.Severity,
		report.Category,
		report.AffectedSystems,
		nonNil(report.EvidenceURLs),
		report.AIAnalysis,
		report.Status,
	).Scan(&report.UpdatedAt)
	if err != nil {
		return wrap("update incident report", err)
	}
	return nil
}

func scanReport(row pgx.Row) (*models.IncidentReport, error) {
	report := &models.IncidentReport{}
	err := row.Scan(
		&report.ID,
		&report.TicketID,
		&report.Title,
		&report.Description,
		&report.Severity,
		&report.Category,
		&report.ReporterAddress,
		&report.AffectedSystems,
		&report.EvidenceURLs,
		&report.AIAnalysis,
		&report.Status,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return report, nil
}
