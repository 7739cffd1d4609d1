// Package escrow implements C3: the order and escrow-hold state
// machines, their coupling, and dispute arbitration, per spec §4.3.
package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/domain"
)

// OrderRepository persists Order rows.
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByInviteToken(ctx context.Context, token string) (*domain.Order, error)
	Create(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, order *domain.Order) error
	// ListAwaitingAutoRelease returns PAID orders whose auto_release_at
	// has passed asOf, for C7's escrow auto-release job.
	ListAwaitingAutoRelease(ctx context.Context, asOf time.Time) ([]*domain.Order, error)
}

// EscrowRepository persists EscrowHold rows.
type EscrowRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.EscrowHold, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.EscrowHold, error)
	Create(ctx context.Context, hold *domain.EscrowHold) error
	Update(ctx context.Context, hold *domain.EscrowHold) error
}

// DisputeRepository persists Dispute rows.
type DisputeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error)
	FindOpenByEscrowID(ctx context.Context, escrowID uuid.UUID) (*domain.Dispute, error)
	Create(ctx context.Context, dispute *domain.Dispute) error
	Update(ctx context.Context, dispute *domain.Dispute) error
}
