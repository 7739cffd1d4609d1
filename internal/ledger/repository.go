package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/money"
)

// AccountRepository persists LedgerAccount rows.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.LedgerAccount, error)
	FindByWalletID(ctx context.Context, walletID uuid.UUID) (*domain.LedgerAccount, error)
	FindByPlatformKey(ctx context.Context, key string) (*domain.LedgerAccount, error)
	Create(ctx context.Context, account *domain.LedgerAccount) error
	ListPlatformAccounts(ctx context.Context) ([]*domain.LedgerAccount, error)
}

// JournalRepository persists LedgerJournal headers.
type JournalRepository interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerJournal, error)
	Create(ctx context.Context, journal *domain.LedgerJournal) error
	ListAll(ctx context.Context) ([]*domain.LedgerJournal, error)
}

// EntryRepository persists immutable LedgerEntry rows and answers
// running-balance queries.
type EntryRepository interface {
	// LastRunningBalance returns the most recent entry's running
	// balance for account, ordered (created_at ASC, id ASC) per spec
	// §4.1, or zero if the account has no entries yet.
	LastRunningBalance(ctx context.Context, accountID uuid.UUID) (money.Minor, error)
	CreateBatch(ctx context.Context, entries []*domain.LedgerEntry) error
	SumByAccount(ctx context.Context, accountID uuid.UUID) (money.Minor, error)
	ListByJournal(ctx context.Context, journalID uuid.UUID) ([]*domain.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.LedgerEntry, error)
}
