package webhook

import (
	"context"

	"github.com/escrowcore/ledgercore/internal/domain"
)

// EventRepository persists WebhookEvent rows.
type EventRepository interface {
	FindByEventID(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error)
	Create(ctx context.Context, e *domain.WebhookEvent) error
	Update(ctx context.Context, e *domain.WebhookEvent) error
	// ListDueForRetry returns FAILED events whose retry_count is below
	// the cap and whose backoff window has elapsed, for C7's retry job.
	ListDueForRetry(ctx context.Context) ([]*domain.WebhookEvent, error)
}

// HistoryRepository persists PaymentStatusHistory rows.
type HistoryRepository interface {
	Create(ctx context.Context, h *domain.PaymentStatusHistory) error
}
