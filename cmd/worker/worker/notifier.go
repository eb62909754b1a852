package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/notify"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// Notifier e-mails clients as their tickets move through review
type Notifier struct {
	tickets repository.TicketStore
	users   repository.UserStore
	mailer  notify.Notifier
	log     *logger.Logger
}

// Handle processes one ticket event
func (n *Notifier) Handle(ctx context.Context, key string, value []byte) error {
	evt, ok := decode(n.log, value)
	if !ok || evt.TicketID == 0 {
		return nil
	}

	switch evt.Type {
	case models.EventReportSubmitted, models.EventTicketValidated, models.EventTicketRejected, models.EventTicketCompleted:
	default:
		return nil
	}

	ticket, err := n.tickets.GetByTicketID(ctx, evt.TicketID)
	if err != nil {
		return fmt.Errorf("failed to load ticket %d: %w", evt.TicketID, err)
	}

	client, err := n.users.GetByAddress(ctx, ticket.ClientAddress)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load client %s: %w", ticket.ClientAddress, err)
	}
	if client.Email == "" {
		n.log.Debug("client has no e-mail on file", "ticket_id", ticket.TicketID)
		return nil
	}

	email, ok := notify.TicketUpdate(client.Email, evt, ticket.Title)
	if !ok {
		return nil
	}
	if err := n.mailer.Send(ctx, email); err != nil {
		return fmt.Errorf("failed to notify client of ticket %d: %w", ticket.TicketID, err)
	}
	return nil
}
