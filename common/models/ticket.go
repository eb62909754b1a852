package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the workflow position of a ticket
type TicketStatus string

const (
	StatusOpen      TicketStatus = "open"
	StatusAssigned  TicketStatus = "assigned"
	StatusAnalyzed  TicketStatus = "analyzed"
	StatusValidated TicketStatus = "validated"
	StatusCompleted TicketStatus = "completed"
)

// ParseTicketStatus validates a status string
func ParseTicketStatus(s string) (TicketStatus, error) {
	switch st := TicketStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusOpen, StatusAssigned, StatusAnalyzed, StatusValidated, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("invalid ticket status: %q", s)
	}
}

// Severity of a reported incident
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a severity string
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("invalid severity: %q", s)
	}
}

// Ticket represents a submitted security incident tracked on and off chain
// Maps to: tickets table
type Ticket struct {
	ID               int64           `db:"id" json:"id"`
	TicketID         int64           `db:"ticket_id" json:"ticket_id"`
	Title            string          `db:"title" json:"title"`
	Description      string          `db:"description" json:"description"`
	Category         string          `db:"category" json:"category"`
	Severity         Severity        `db:"severity" json:"severity"`
	Status           TicketStatus    `db:"status" json:"status"`
	ClientAddress    string          `db:"client_address" json:"client_address"`
	Analysts         []string        `db:"analysts" json:"analysts"`
	CertifierAddress string          `db:"certifier_address" json:"certifier_address,omitempty"`
	Report           string          `db:"report" json:"report,omitempty"`
	RewardAmount     decimal.Decimal `db:"reward_amount" json:"reward_amount"`
	Chain            string          `db:"chain" json:"chain"`
	TxHash           string          `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// HasAnalyst reports whether address is assigned to the ticket
func (t *Ticket) HasAnalyst(address string) bool {
	for _, a := range t.Analysts {
		if strings.EqualFold(a, address) {
			return true
		}
	}
	return false
}

// IsParticipant reports whether address is the client, an analyst or the certifier
func (t *Ticket) IsParticipant(address string) bool {
	return strings.EqualFold(t.ClientAddress, address) ||
		strings.EqualFold(t.CertifierAddress, address) ||
		t.HasAnalyst(address)
}

// Participants returns every address that should see updates for the ticket
func (t *Ticket) Participants() []string {
	out := make([]string, 0, len(t.Analysts)+2)
	out = append(out, t.ClientAddress)
	out = append(out, t.Analysts...)
	if t.CertifierAddress != "" {
		out = append(out, t.CertifierAddress)
	}
	return out
}

// TicketFilter narrows ticket listings
type TicketFilter struct {
	Status        TicketStatus
	ClientAddress string
	Analyst       string
	Certifier     string
	Limit         int
	Offset        int
}

// ShortlistEntry is an analyst's application to work on a ticket
// Maps to: ticket_shortlist table
type ShortlistEntry struct {
	ID             int64     `db:"id" json:"id"`
	TicketID       int64     `db:"ticket_id" json:"ticket_id"`
	AnalystAddress string    `db:"analyst_address" json:"analyst_address"`
	Note           string    `db:"note" json:"note,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
