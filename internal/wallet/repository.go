// Package wallet implements C2: available/locked balance bookkeeping
// on top of C1's ledger, with optimistic concurrency control via a
// monotonic version column — modeled on the teacher's repository
// pattern (components/ledger_two/.../portfolio.postgresql.go) adapted
// from row-locking to compare-and-swap per spec §4.2.
package wallet

import (
	"context"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/domain"
)

// Repository persists Wallet rows and implements the conditional
// UPDATE ... WHERE version = ? pattern that backs every mutation.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	Create(ctx context.Context, wallet *domain.Wallet) error

	// CompareAndSwap applies the row exactly as given, succeeding only
	// if the stored version still equals expectedVersion, and reports
	// whether the swap took effect (false means a concurrent writer won
	// the race and the caller should retry against a fresh read).
	CompareAndSwap(ctx context.Context, wallet *domain.Wallet, expectedVersion int64) (bool, error)

	ListAll(ctx context.Context) ([]*domain.Wallet, error)
}
