package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MovementEvent is the message published for each committed movement record.
type MovementEvent struct {
	EventID    string         `json:"event_id"`
	Type       string         `json:"type"`
	Record     MovementRecord `json:"record"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher delivers payloads to a message bus.
type EventPublisher interface {
	PublishMessage(ctx context.Context, routingKey string, payload any) error
}

// RoutingKey is the bus routing key for a movement kind.
func RoutingKey(kind MovementKind) string {
	return "inventory.movement." + strings.ToLower(string(kind))
}

// NewEventHook publishes every committed record. Publish failures are logged;
// the ledger remains the source of truth.
func NewEventHook(publisher EventPublisher, logger *slog.Logger) MovementHook {
	if logger == nil {
		logger = slog.Default()
	}
	return HookFunc(func(ctx context.Context, records []MovementRecord) {
		if publisher == nil {
			return
		}
		for _, rec := range records {
			evt := MovementEvent{
				EventID:    uuid.NewString(),
				Type:       RoutingKey(rec.Kind),
				Record:     rec,
				OccurredAt: rec.CreatedAt,
			}
			if err := publisher.PublishMessage(ctx, evt.Type, evt); err != nil {
				logger.Warn("publish movement event",
					slog.String("kind", string(rec.Kind)),
					slog.Int64("movement_id", rec.ID),
					slog.Any("error", err))
			}
		}
	})
}
