// Package withdrawal implements C4: the disbursement engine — tiered
// limits, velocity scoring, dual-admin approval, and completion — per
// spec §4.4.
package withdrawal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/money"
)

// Repository persists Withdrawal rows.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Withdrawal, error)
	// FindLastByUserID returns the user's most recently created
	// withdrawal (by created_at), for the cooling-period check of spec
	// §4.4 step 5. Returns a NotFoundError when the user has none.
	FindLastByUserID(ctx context.Context, userID uuid.UUID) (*domain.Withdrawal, error)
	Create(ctx context.Context, w *domain.Withdrawal) error
	Update(ctx context.Context, w *domain.Withdrawal) error
}

// ApprovalRepository persists WithdrawalApproval rows.
type ApprovalRepository interface {
	ListByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) ([]*domain.WithdrawalApproval, error)
	Create(ctx context.Context, a *domain.WithdrawalApproval) error
}

// LimitRepository persists the per-user TransactionLimit row.
type LimitRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.TransactionLimit, error)
	Create(ctx context.Context, l *domain.TransactionLimit) error
	// Update persists a limit row, typically after usage accrual or a
	// C7-driven daily/monthly reset.
	Update(ctx context.Context, l *domain.TransactionLimit) error
	// ListAll returns every active limit row, for C7's hourly
	// daily/monthly reset sweep.
	ListAll(ctx context.Context) ([]*domain.TransactionLimit, error)
}

// VelocityRepository records and queries recent withdrawal activity
// for the scoring model of spec §4.4 step 6.
type VelocityRepository interface {
	Create(ctx context.Context, entry *domain.WithdrawalVelocityLog) error
	// CountSince and SumSince scope over [since, now) for userID,
	// backing the hourly/daily/weekly windows of the velocity model.
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	SumSince(ctx context.Context, userID uuid.UUID, since time.Time) (money.Minor, error)
}

// UserLookup resolves a user and their bank accounts for the
// create-withdrawal preconditions of spec §4.4 steps 2-3.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// BankAccountLookup resolves a bank account for ownership/status
// validation.
type BankAccountLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
}
