package notify

import (
	"fmt"

	"github.com/DEEPML1818/dsoc/common/models"
)

// TicketUpdate renders the client e-mail for a ticket event. ok is false for
// events the client is not mailed about.
func TicketUpdate(to string, event *models.TicketEvent, title string) (Email, bool) {
	var subject, body string

	switch event.Type {
	case models.EventReportSubmitted:
		subject = fmt.Sprintf("Ticket #%d analyzed", event.TicketID)
		body = "An analyst has submitted a report for your incident. It is now awaiting certification."
	case models.EventTicketValidated:
		subject = fmt.Sprintf("Ticket #%d validated", event.TicketID)
		body = "A certifier has validated the analysis of your incident. You can now complete the ticket."
	case models.EventTicketRejected:
		subject = fmt.Sprintf("Ticket #%d returned for rework", event.TicketID)
		body = "The certifier rejected the current analysis. The assigned analysts will revise their report."
	case models.EventTicketCompleted:
		subject = fmt.Sprintf("Ticket #%d completed", event.TicketID)
		body = "Your incident has been closed and CLT rewards were distributed."
	default:
		return Email{}, false
	}

	text := fmt.Sprintf("%s\n\nIncident: %s\nStatus: %s\n", body, title, event.Status)
	if event.TxHash != "" {
		text += fmt.Sprintf("Transaction: %s\n", event.TxHash)
	}

	return Email{
		To:      to,
		Subject: "[dSOC] " + subject,
		Text:    text,
	}, true
}
