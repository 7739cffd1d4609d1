package wallet

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/mlog"
	"github.com/escrowcore/ledgercore/internal/mretry"
	"github.com/escrowcore/ledgercore/internal/money"
)

// BalanceReader answers the ledger-derived balance for a wallet,
// satisfied in production by ledger.UseCase composed with its account
// repository — kept as a narrow interface here so wallet does not
// import ledger's full surface.
type BalanceReader interface {
	WalletLedgerBalance(ctx context.Context, walletID uuid.UUID) (money.Minor, error)
}

// Service implements C2: optimistic-concurrency balance mutation on
// top of Repository, per spec §4.2.
type Service struct {
	Repo        Repository
	Ledger      BalanceReader
	RetryConfig mretry.Config
	Tracer      trace.Tracer
}

func NewService(repo Repository, ledger BalanceReader) *Service {
	return &Service{Repo: repo, Ledger: ledger, RetryConfig: mretry.DefaultWalletConfig()}
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}

	return trace.NewNoopTracerProvider().Tracer("wallet")
}

// mutate reads the current row, applies fn, and writes it back with
// CompareAndSwap, retrying on lost races up to s.RetryConfig.MaxRetries
// times with exponential backoff — per spec §4.2's optimistic-lock
// retry discipline (3 attempts, 100ms initial backoff).
func (s *Service) mutate(ctx context.Context, walletID uuid.UUID, fn func(*domain.Wallet) error) (*domain.Wallet, error) {
	logger := mlog.NewLoggerFromContext(ctx)

	var lastErr error

	attempts := s.RetryConfig.MaxRetries
	if attempts <= 0 {
		attempts = mretry.WalletMaxRetries
	}

	for attempt := 1; attempt <= attempts+1; attempt++ {
		w, err := s.Repo.FindByID(ctx, walletID)
		if err != nil {
			return nil, err
		}

		expected := w.Version

		if err := fn(w); err != nil {
			return nil, err
		}

		w.Version = expected + 1
		w.UpdatedAt = time.Now().UTC()

		ok, err := s.Repo.CompareAndSwap(ctx, w, expected)
		if err != nil {
			return nil, err
		}

		if ok {
			return w, nil
		}

		lastErr = apperrors.ConflictError{
			Code:    apperrors.CodeConcurrentModification,
			Message: fmt.Sprintf("wallet %s version changed concurrently", walletID),
		}

		if attempt <= attempts {
			logger.Warnf("wallet %s CAS lost race, attempt %d/%d", walletID, attempt, attempts)
			time.Sleep(s.RetryConfig.Backoff(attempt))
		}
	}

	return nil, lastErr
}

// Credit increases available balance by amount.
func (s *Service) Credit(ctx context.Context, walletID uuid.UUID, amount money.Minor) (*domain.Wallet, error) {
	ctx, span := s.tracer().Start(ctx, "wallet.credit")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "credit amount must be positive"}
	}

	return s.mutate(ctx, walletID, func(w *domain.Wallet) error {
		next, err := money.Add(w.BalanceMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.BalanceMinor = next

		return nil
	})
}

// Deduct decreases available balance by amount, failing with
// INSUFFICIENT_BALANCE if available < amount (spec I4: locked ≤
// balance must always hold).
func (s *Service) Deduct(ctx context.Context, walletID uuid.UUID, amount money.Minor) (*domain.Wallet, error) {
	ctx, span := s.tracer().Start(ctx, "wallet.deduct")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "deduct amount must be positive"}
	}

	return s.mutate(ctx, walletID, func(w *domain.Wallet) error {
		if w.Available() < amount {
			return apperrors.ValidationError{Code: apperrors.CodeInsufficientBalance, Message: "insufficient available balance"}
		}

		next, err := money.Sub(w.BalanceMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.BalanceMinor = next

		return nil
	})
}

// Lock moves amount from available into locked, used to hold funds
// for an escrow or a pending withdrawal.
func (s *Service) Lock(ctx context.Context, walletID uuid.UUID, amount money.Minor) (*domain.Wallet, error) {
	ctx, span := s.tracer().Start(ctx, "wallet.lock")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "lock amount must be positive"}
	}

	return s.mutate(ctx, walletID, func(w *domain.Wallet) error {
		if w.Available() < amount {
			return apperrors.ValidationError{Code: apperrors.CodeInsufficientBalance, Message: "insufficient available balance"}
		}

		next, err := money.Add(w.LockedMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.LockedMinor = next

		return nil
	})
}

// Unlock reverses Lock without touching the stored balance (available
// rises by amount as locked falls) — used
// when an escrow is cancelled before any funds move.
func (s *Service) Unlock(ctx context.Context, walletID uuid.UUID, amount money.Minor) (*domain.Wallet, error) {
	ctx, span := s.tracer().Start(ctx, "wallet.unlock")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "unlock amount must be positive"}
	}

	return s.mutate(ctx, walletID, func(w *domain.Wallet) error {
		if w.LockedMinor < amount {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: "unlock exceeds locked balance"}
		}

		next, err := money.Sub(w.LockedMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.LockedMinor = next

		return nil
	})
}

// TransferLocked releases amount from fromWalletID's locked+balance
// and credits toWalletID's available balance — the wallet-side mirror
// of C1's RecordEscrowRelease/RecordEscrowRefund. Wallets are always
// touched in ascending ID order so concurrent transfers can never
// deadlock against each other.
func (s *Service) TransferLocked(ctx context.Context, fromWalletID, toWalletID uuid.UUID, amount money.Minor) error {
	ctx, span := s.tracer().Start(ctx, "wallet.transfer_locked")
	defer span.End()

	if !amount.IsPositive() {
		return apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "transfer amount must be positive"}
	}

	first, second := fromWalletID, toWalletID
	fromIsFirst := true

	if second.String() < first.String() {
		first, second = second, first
		fromIsFirst = false
	}

	debit := func(w *domain.Wallet) error {
		if w.LockedMinor < amount {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: "release exceeds locked balance"}
		}

		lockedNext, err := money.Sub(w.LockedMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		balanceNext, err := money.Sub(w.BalanceMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.LockedMinor = lockedNext
		w.BalanceMinor = balanceNext

		return nil
	}

	credit := func(w *domain.Wallet) error {
		next, err := money.Add(w.BalanceMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.BalanceMinor = next

		return nil
	}

	firstFn, secondFn := debit, credit
	if !fromIsFirst {
		firstFn, secondFn = credit, debit
	}

	if _, err := s.mutate(ctx, first, firstFn); err != nil {
		return err
	}

	if _, err := s.mutate(ctx, second, secondFn); err != nil {
		return err
	}

	return nil
}

// ReleaseEscrow clears held (the full locked amount) from the buyer's
// wallet — locked and balance both drop by held — and credits only
// netToSeller to the seller, the wallet-side mirror of C1's
// RecordEscrowRelease when a platform fee is taken: the held-netToSeller
// difference leaves the buyer's wallet but is never credited to any
// wallet, since C1 already recorded it against the platform fees
// account. Wallets are touched in ascending ID order.
func (s *Service) ReleaseEscrow(ctx context.Context, buyerWalletID, sellerWalletID uuid.UUID, held, netToSeller money.Minor) error {
	ctx, span := s.tracer().Start(ctx, "wallet.release_escrow")
	defer span.End()

	if !held.IsPositive() || netToSeller < 0 || netToSeller > held {
		return apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "invalid escrow release amounts"}
	}

	debitBuyer := func(w *domain.Wallet) error {
		if w.LockedMinor < held {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: "release exceeds locked balance"}
		}

		lockedNext, err := money.Sub(w.LockedMinor, held)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		balanceNext, err := money.Sub(w.BalanceMinor, held)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.LockedMinor = lockedNext
		w.BalanceMinor = balanceNext

		return nil
	}

	creditSeller := func(w *domain.Wallet) error {
		if netToSeller == 0 {
			return nil
		}

		next, err := money.Add(w.BalanceMinor, netToSeller)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.BalanceMinor = next

		return nil
	}

	first, firstFn, second, secondFn := buyerWalletID, debitBuyer, sellerWalletID, creditSeller
	if sellerWalletID.String() < buyerWalletID.String() {
		first, firstFn, second, secondFn = sellerWalletID, creditSeller, buyerWalletID, debitBuyer
	}

	if _, err := s.mutate(ctx, first, firstFn); err != nil {
		return err
	}

	if _, err := s.mutate(ctx, second, secondFn); err != nil {
		return err
	}

	return nil
}

// SettleWithdrawal decrements both balance and locked by amount —
// funds that leave the system entirely rather than moving to another
// wallet, used by C4's complete() once a disbursement is confirmed.
func (s *Service) SettleWithdrawal(ctx context.Context, walletID uuid.UUID, amount money.Minor) (*domain.Wallet, error) {
	ctx, span := s.tracer().Start(ctx, "wallet.settle_withdrawal")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "settlement amount must be positive"}
	}

	return s.mutate(ctx, walletID, func(w *domain.Wallet) error {
		if w.LockedMinor < amount {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: "settlement exceeds locked balance"}
		}

		lockedNext, err := money.Sub(w.LockedMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		balanceNext, err := money.Sub(w.BalanceMinor, amount)
		if err != nil {
			return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
		}

		w.LockedMinor = lockedNext
		w.BalanceMinor = balanceNext

		return nil
	})
}

// Reconcile compares the wallet's stored balance against the
// ledger-derived balance for its account, stamping last_reconciled_at
// and a SHA-256 reconciliation hash when they match and returning
// LEDGER_MISMATCH, without stamping, when they drift (spec §4.2, run by
// C7 every six hours).
func (s *Service) Reconcile(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := s.tracer().Start(ctx, "wallet.reconcile")
	defer span.End()

	w, err := s.Repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	ledgerBalance, err := s.Ledger.WalletLedgerBalance(ctx, walletID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	hash := reconciliationHash(walletID, w.BalanceMinor, now)

	if ledgerBalance != w.BalanceMinor {
		logger.Errorf("reconcile mismatch wallet=%s stored=%d ledger=%d", walletID, w.BalanceMinor, ledgerBalance)

		return nil, apperrors.IntegrityError{
			Code:    apperrors.CodeLedgerMismatch,
			Message: fmt.Sprintf("wallet %s: stored balance %d does not match ledger balance %d", walletID, w.BalanceMinor, ledgerBalance),
		}
	}

	w.LastReconciledAt = &now
	w.ReconciliationHash = hash

	if _, err := s.Repo.CompareAndSwap(ctx, w, w.Version); err != nil {
		return nil, err
	}

	return w, nil
}

func reconciliationHash(walletID uuid.UUID, balance money.Minor, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", walletID, balance, at.Unix())))

	return fmt.Sprintf("%x", sum)
}
