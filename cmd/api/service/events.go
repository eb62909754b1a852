package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/queue"
)

// EventPublisher publishes ticket workflow events to the queue
type EventPublisher struct {
	queue queue.Queue
	log   *logger.Logger
}

// NewEventPublisher creates a publisher; a nil queue drops events
func NewEventPublisher(q queue.Queue, log *logger.Logger) *EventPublisher {
	return &EventPublisher{queue: q, log: log}
}

// Publish sends evt. The workflow change is already committed, so failures
// are logged and not returned.
func (p *EventPublisher) Publish(ctx context.Context, evt *models.TicketEvent) {
	if p == nil || p.queue == nil {
		return
	}

	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := evt.Marshal()
	if err != nil {
		p.log.Error("failed to marshal ticket event", "type", evt.Type, "error", err)
		return
	}

	key := strconv.FormatInt(evt.TicketID, 10)
	if err := p.queue.Publish(ctx, models.TicketEventsTopic, key, data); err != nil {
		p.log.Error("failed to publish ticket event",
			"type", evt.Type,
			"ticket_id", evt.TicketID,
			"error", err)
		return
	}

	p.log.Debug("published ticket event", "type", evt.Type, "ticket_id", evt.TicketID, "event_id", evt.EventID)
}

// ticketEvent builds an event addressed to every participant of t
func ticketEvent(t *models.Ticket, typ models.EventType, actor, txHash string) *models.TicketEvent {
	return &models.TicketEvent{
		Type:       typ,
		TicketID:   t.TicketID,
		Status:     t.Status,
		Actor:      models.NormalizeAddress(actor),
		Recipients: t.Participants(),
		TxHash:     txHash,
	}
}
