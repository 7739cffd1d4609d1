// Package ledger implements C1: the append-only double-entry journal,
// modeled on the teacher's components/ledger_two command/query split —
// a UseCase struct holding repository interfaces, one method per
// operation, span-wrapped and logged the same way.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/mlog"
	"github.com/escrowcore/ledgercore/internal/money"
)

// UseCase is C1's entrypoint: journal creation, typed convenience
// constructors, and invariant verification.
type UseCase struct {
	Accounts AccountRepository
	Journals JournalRepository
	Entries  EntryRepository
	Tracer   trace.Tracer
}

func (uc *UseCase) tracer() trace.Tracer {
	if uc.Tracer != nil {
		return uc.Tracer
	}

	return trace.NewNoopTracerProvider().Tracer("ledger")
}

// CreateJournalInput is the caller-supplied shape for CreateJournal.
type CreateJournalInput struct {
	Type           domain.JournalType
	AmountMinor    money.Minor
	Description    string
	Entries        []domain.JournalEntryInput
	IdempotencyKey string
	Links          domain.JournalLinks
}

// CreateJournal validates J1 pre-insert, deduplicates by idempotency
// key, inserts header + entries atomically, computes each touched
// account's running balance by continuing from its last entry (O(1)
// insert, not a fresh aggregate), and re-validates J1 post-insert
// (spec §4.1's "paranoid" re-check).
func (uc *UseCase) CreateJournal(ctx context.Context, in CreateJournalInput) (*domain.LedgerJournal, error) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := uc.tracer().Start(ctx, "ledger.create_journal")
	defer span.End()

	if existing, err := uc.Journals.FindByIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		logger.Infof("journal replay for idempotency key %s", in.IdempotencyKey)
		return existing, nil
	}

	if sum := domain.SumEntryInputs(in.Entries); sum != 0 {
		return nil, apperrors.IntegrityError{
			Code:    apperrors.CodeLedgerInvariantViolation,
			Message: fmt.Sprintf("journal entries sum to %d, want 0", sum),
		}
	}

	if len(in.Entries) < 2 {
		return nil, apperrors.ValidationError{
			Code:    apperrors.CodeInvalidAmount,
			Message: "a journal requires at least two entries",
		}
	}

	journal := &domain.LedgerJournal{
		ID:             uuid.New(),
		Type:           in.Type,
		AmountMinor:    in.AmountMinor,
		Description:    in.Description,
		IdempotencyKey: in.IdempotencyKey,
		Links:          in.Links,
		CreatedAt:      time.Now().UTC(),
	}

	if err := uc.Journals.Create(ctx, journal); err != nil {
		return nil, err
	}

	entries := make([]*domain.LedgerEntry, 0, len(in.Entries))

	for _, e := range in.Entries {
		last, err := uc.Entries.LastRunningBalance(ctx, e.AccountID)
		if err != nil {
			return nil, err
		}

		running, err := money.Add(last, e.AmountMinor)
		if err != nil {
			return nil, apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		entries = append(entries, &domain.LedgerEntry{
			ID:                  uuid.New(),
			JournalID:           journal.ID,
			AccountID:           e.AccountID,
			AmountMinor:         e.AmountMinor,
			RunningBalanceMinor: running,
			CreatedAt:           journal.CreatedAt,
		})
	}

	if err := uc.Entries.CreateBatch(ctx, entries); err != nil {
		return nil, err
	}

	var postSum money.Minor
	for _, e := range entries {
		postSum += e.AmountMinor
	}

	if postSum != 0 {
		logger.Errorf("post-insert invariant check failed for journal %s: sum=%d", journal.ID, postSum)

		return nil, apperrors.IntegrityError{
			Code:    apperrors.CodeLedgerInvariantViolation,
			Message: "post-insert journal sum is nonzero",
		}
	}

	return journal, nil
}

// GetAccountBalance sums all entries for account_id, per spec §4.1.
func (uc *UseCase) GetAccountBalance(ctx context.Context, accountID uuid.UUID) (money.Minor, error) {
	ctx, span := uc.tracer().Start(ctx, "ledger.get_account_balance")
	defer span.End()

	return uc.Entries.SumByAccount(ctx, accountID)
}

// WalletLedgerBalance resolves a wallet's backing USER_WALLET account
// and sums its entries, satisfying wallet.BalanceReader for C2's
// reconciliation path (spec §4.2: "wallet balance must equal the
// ledger-derived balance for its account").
func (uc *UseCase) WalletLedgerBalance(ctx context.Context, walletID uuid.UUID) (money.Minor, error) {
	ctx, span := uc.tracer().Start(ctx, "ledger.wallet_ledger_balance")
	defer span.End()

	account, err := uc.Accounts.FindByWalletID(ctx, walletID)
	if err != nil {
		return 0, err
	}

	return uc.Entries.SumByAccount(ctx, account.ID)
}

// VerifyAllJournalsBalanced implements spec §4.1's verify_all_journals_balanced.
func (uc *UseCase) VerifyAllJournalsBalanced(ctx context.Context) (domain.BalanceReport, error) {
	ctx, span := uc.tracer().Start(ctx, "ledger.verify_all_journals_balanced")
	defer span.End()

	journals, err := uc.Journals.ListAll(ctx)
	if err != nil {
		return domain.BalanceReport{}, err
	}

	report := domain.BalanceReport{Checked: len(journals)}

	for _, j := range journals {
		entries, err := uc.Entries.ListByJournal(ctx, j.ID)
		if err != nil {
			return domain.BalanceReport{}, err
		}

		var sum money.Minor
		for _, e := range entries {
			sum += e.AmountMinor
		}

		if sum != 0 {
			jid := j.ID
			report.Violations = append(report.Violations, domain.BalanceViolation{
				JournalID: &jid,
				Detail:    "journal entries do not sum to zero",
				NetMinor:  sum,
			})
		}
	}

	return report, nil
}

// VerifyPlatformBalance implements spec §4.1's verify_platform_balance:
// platform-key accounts must net to zero across the whole ledger; any
// non-zero is a critical alert.
func (uc *UseCase) VerifyPlatformBalance(ctx context.Context) (domain.BalanceReport, error) {
	ctx, span := uc.tracer().Start(ctx, "ledger.verify_platform_balance")
	defer span.End()

	accounts, err := uc.Accounts.ListPlatformAccounts(ctx)
	if err != nil {
		return domain.BalanceReport{}, err
	}

	report := domain.BalanceReport{Checked: len(accounts)}

	var total money.Minor

	for _, a := range accounts {
		bal, err := uc.Entries.SumByAccount(ctx, a.ID)
		if err != nil {
			return domain.BalanceReport{}, err
		}

		total += bal
	}

	if total != 0 {
		report.Violations = append(report.Violations, domain.BalanceViolation{
			Detail:   "platform accounts do not net to zero",
			NetMinor: total,
		})
	}

	return report, nil
}
