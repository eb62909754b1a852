package models

import (
	"encoding/json"
	"time"
)

// TicketEventsTopic carries every ticket workflow event
const TicketEventsTopic = "ticket.events"

// EventType names a ticket workflow event
type EventType string

const (
	EventTicketCreated     EventType = "ticket.created"
	EventAnalystAssigned   EventType = "ticket.analyst_assigned"
	EventReportSubmitted   EventType = "ticket.analyzed"
	EventCertifierAssigned EventType = "ticket.certifier_assigned"
	EventTicketValidated   EventType = "ticket.validated"
	EventTicketRejected    EventType = "ticket.rejected"
	EventTicketCompleted   EventType = "ticket.completed"
	EventReportAnalyzed    EventType = "incident_report.analyzed"
)

// TicketEvent is the queue payload published after every workflow change
type TicketEvent struct {
	EventID    string       `json:"event_id"`
	Type       EventType    `json:"type"`
	TicketID   int64        `json:"ticket_id"`
	ReportID   int64        `json:"report_id,omitempty"`
	Status     TicketStatus `json:"status"`
	Actor      string       `json:"actor"`
	Recipients []string     `json:"recipients"`
	TxHash     string       `json:"tx_hash,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Marshal encodes the event for the queue
func (e *TicketEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalTicketEvent decodes a queue payload
func UnmarshalTicketEvent(data []byte) (*TicketEvent, error) {
	var e TicketEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
