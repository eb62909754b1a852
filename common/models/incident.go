package models

import "time"

// ReportStatus tracks an incident report through triage
type ReportStatus string

const (
	ReportSubmitted ReportStatus = "submitted"
	ReportTriaged   ReportStatus = "triaged"
	ReportLinked    ReportStatus = "linked"
	ReportClosed    ReportStatus = "closed"
)

// IncidentReport is the client's description of a security incident
// Maps to: incident_reports table
type IncidentReport struct {
	ID              int64        `db:"id" json:"id"`
	TicketID        *int64       `db:"ticket_id" json:"ticket_id,omitempty"`
	Title           string       `db:"title" json:"title"`
	Description     string       `db:"description" json:"description"`
	Severity        Severity     `db:"severity" json:"severity"`
	Category        string       `db:"category" json:"category"`
	ReporterAddress string       `db:"reporter_address" json:"reporter_address"`
	AffectedSystems string       `db:"affected_systems" json:"affected_systems,omitempty"`
	EvidenceURLs    []string     `db:"evidence_urls" json:"evidence_urls"`
	AIAnalysis      string       `db:"ai_analysis" json:"ai_analysis,omitempty"`
	Status          ReportStatus `db:"status" json:"status"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}
