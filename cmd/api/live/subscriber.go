package live

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/queue"
)

// Subscribe forwards ticket events from q to their recipients on the hub.
// Every API instance uses its own group so each one sees every event.
func Subscribe(ctx context.Context, q queue.Queue, hub *Hub) error {
	group := "live-" + uuid.NewString()
	if err := q.Subscribe(ctx, models.TicketEventsTopic, group, Forward(hub)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", models.TicketEventsTopic, err)
	}
	hub.log.Info("live updates subscribed", "topic", models.TicketEventsTopic, "group", group)
	return nil
}

// Forward returns a queue handler that fans each event out to its recipients
func Forward(hub *Hub) queue.MessageHandler {
	return func(ctx context.Context, key string, value []byte) error {
		evt, err := models.UnmarshalTicketEvent(value)
		if err != nil {
			// Malformed payloads are not retried
			hub.log.Warn("dropping malformed ticket event", "key", key, "error", err)
			return nil
		}

		seen := make(map[string]bool, len(evt.Recipients))
		for _, r := range evt.Recipients {
			addr := models.NormalizeAddress(r)
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			hub.Send(addr, value)
		}
		return nil
	}
}
