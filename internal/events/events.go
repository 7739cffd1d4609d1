// Package events defines the outbound domain-event contract of
// SPEC_FULL.md's Domain Stack section: escrow released/refunded/
// disputed and webhook-processed events, published for external
// collaborators but never required for the correctness of any
// money-moving operation (if the publish fails, the caller logs a
// warning and proceeds — the event queue is best-effort).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names one outbound domain event type.
type Kind string

const (
	KindEscrowReleased  Kind = "escrow.released"
	KindEscrowRefunded  Kind = "escrow.refunded"
	KindEscrowDisputed  Kind = "escrow.disputed"
	KindWebhookProcessed Kind = "webhook.processed"
)

// Event is the envelope published for every outbound domain event.
type Event struct {
	Kind      Kind      `json:"kind"`
	OrderID   uuid.UUID `json:"orderId,omitempty"`
	EscrowID  uuid.UUID `json:"escrowId,omitempty"`
	EventID   string    `json:"eventId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher fans an Event out to external collaborators. Implemented
// in production by internal/adapters/rabbitmq.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
