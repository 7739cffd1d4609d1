package withdrawal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/ledger"
	"github.com/escrowcore/ledgercore/internal/money"
	"github.com/escrowcore/ledgercore/internal/wallet"
)

type fakeWithdrawals struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.Withdrawal
}

func newFakeWithdrawals() *fakeWithdrawals {
	return &fakeWithdrawals{byID: map[uuid.UUID]*domain.Withdrawal{}}
}

func (f *fakeWithdrawals) FindByID(_ context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWithdrawalNotFound, EntityType: "withdrawal"}
	}

	cp := *w

	return &cp, nil
}

func (f *fakeWithdrawals) FindByIdempotencyKey(_ context.Context, userID uuid.UUID, key string) (*domain.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, w := range f.byID {
		if w.UserID == userID && w.IdempotencyKey == key {
			cp := *w
			return &cp, nil
		}
	}

	return nil, apperrors.NotFoundError{Code: apperrors.CodeWithdrawalNotFound, EntityType: "withdrawal"}
}

func (f *fakeWithdrawals) FindLastByUserID(_ context.Context, userID uuid.UUID) (*domain.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var last *domain.Withdrawal

	for _, w := range f.byID {
		if w.UserID != userID {
			continue
		}

		if last == nil || w.CreatedAt.After(last.CreatedAt) {
			last = w
		}
	}

	if last == nil {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWithdrawalNotFound, EntityType: "withdrawal"}
	}

	cp := *last

	return &cp, nil
}

func (f *fakeWithdrawals) Create(_ context.Context, w *domain.Withdrawal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *w
	f.byID[w.ID] = &cp

	return nil
}

func (f *fakeWithdrawals) Update(_ context.Context, w *domain.Withdrawal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *w
	f.byID[w.ID] = &cp

	return nil
}

type fakeApprovals struct {
	mu   sync.Mutex
	rows []*domain.WithdrawalApproval
}

func (f *fakeApprovals) ListByWithdrawalID(_ context.Context, withdrawalID uuid.UUID) ([]*domain.WithdrawalApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.WithdrawalApproval
	for _, a := range f.rows {
		if a.WithdrawalID == withdrawalID {
			out = append(out, a)
		}
	}

	return out, nil
}

func (f *fakeApprovals) Create(_ context.Context, a *domain.WithdrawalApproval) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rows = append(f.rows, a)

	return nil
}

type fakeLimits struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.TransactionLimit
}

func newFakeLimits() *fakeLimits {
	return &fakeLimits{byID: map[uuid.UUID]*domain.TransactionLimit{}}
}

func (f *fakeLimits) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.TransactionLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.byID[userID]
	if !ok {
		return nil, apperrors.NotFoundError{Code: "LIMIT_NOT_FOUND", EntityType: "transaction_limit"}
	}

	cp := *l

	return &cp, nil
}

func (f *fakeLimits) Create(_ context.Context, l *domain.TransactionLimit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *l
	f.byID[l.UserID] = &cp

	return nil
}

func (f *fakeLimits) Update(_ context.Context, l *domain.TransactionLimit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *l
	f.byID[l.UserID] = &cp

	return nil
}

type fakeVelocity struct {
	mu   sync.Mutex
	rows []*domain.WithdrawalVelocityLog
}

func (f *fakeVelocity) Create(_ context.Context, entry *domain.WithdrawalVelocityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rows = append(f.rows, entry)

	return nil
}

func (f *fakeVelocity) CountSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, r := range f.rows {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			n++
		}
	}

	return n, nil
}

func (f *fakeVelocity) SumSince(_ context.Context, userID uuid.UUID, since time.Time) (money.Minor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sum money.Minor
	for _, r := range f.rows {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			sum += r.AmountMinor
		}
	}

	return sum, nil
}

type fakeUsers struct {
	byID map[uuid.UUID]*domain.User
}

func (f fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{EntityType: "user"}
	}

	return u, nil
}

type fakeBankAccounts struct {
	byID map[uuid.UUID]*domain.BankAccount
}

func (f fakeBankAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeBankAccountNotFound, EntityType: "bank_account"}
	}

	return b, nil
}

type fakeWalletLookup struct {
	byUser map[uuid.UUID]*domain.Wallet
}

func (f fakeWalletLookup) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w, ok := f.byUser[userID]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: "wallet"}
	}

	return w, nil
}

// noopLedgerReader satisfies wallet.BalanceReader without exercising
// C1 — these tests are scoped to C4's own logic.
type noopLedgerReader struct{}

func (noopLedgerReader) WalletLedgerBalance(_ context.Context, _ uuid.UUID) (money.Minor, error) {
	return 0, nil
}

type harness struct {
	svc          *Service
	walletRepo   *walletFakeRepo
	withdrawals  *fakeWithdrawals
	limits       *fakeLimits
	velocity     *fakeVelocity
	userID       uuid.UUID
	bankID       uuid.UUID
	walletID     uuid.UUID
}

// walletFakeRepo is a minimal wallet.Repository backing the wallet
// service under test, mirroring the fakeRepo in internal/wallet's own
// tests.
type walletFakeRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newWalletFakeRepo() *walletFakeRepo {
	return &walletFakeRepo{wallets: map[uuid.UUID]*domain.Wallet{}}
}

func (r *walletFakeRepo) put(w *domain.Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *w
	r.wallets[w.ID] = &cp
}

func (r *walletFakeRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[id]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: "wallet"}
	}

	cp := *w

	return &cp, nil
}

func (r *walletFakeRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.wallets {
		if w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}

	return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: "wallet"}
}

func (r *walletFakeRepo) Create(_ context.Context, w *domain.Wallet) error {
	r.put(w)
	return nil
}

func (r *walletFakeRepo) CompareAndSwap(_ context.Context, w *domain.Wallet, expectedVersion int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.wallets[w.ID]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}

	cp := *w
	r.wallets[w.ID] = &cp

	return true, nil
}

func (r *walletFakeRepo) ListAll(_ context.Context) ([]*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		out = append(out, w)
	}

	return out, nil
}

func newHarness(tier domain.KYCTier, walletBalance money.Minor) *harness {
	userID := uuid.New()
	bankID := uuid.New()
	walletID := uuid.New()
	now := time.Now().UTC()

	walletRepo := newWalletFakeRepo()
	walletRepo.put(&domain.Wallet{
		ID: walletID, UserID: userID, Currency: "IDR",
		BalanceMinor: walletBalance, LockedMinor: 0, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	})

	withdrawals := newFakeWithdrawals()
	limits := newFakeLimits()
	velocity := &fakeVelocity{}

	walletSvc := wallet.NewService(walletRepo, noopLedgerReader{})

	svc := &Service{
		Withdrawals: withdrawals,
		Approvals:   &fakeApprovals{},
		Limits:      limits,
		Velocity:    velocity,
		Users: fakeUsers{byID: map[uuid.UUID]*domain.User{
			userID: {ID: userID, KYCTier: tier, CreatedAt: now, UpdatedAt: now},
		}},
		BankAccounts: fakeBankAccounts{byID: map[uuid.UUID]*domain.BankAccount{
			bankID: {ID: bankID, UserID: userID, Active: true, CreatedAt: now},
		}},
		Wallets:   fakeWalletLookup{byUser: map[uuid.UUID]*domain.Wallet{userID: {ID: walletID, UserID: userID, BalanceMinor: walletBalance}}},
		WalletSvc: walletSvc,
		Ledger:    &ledger.UseCase{},
	}

	return &harness{
		svc: svc, walletRepo: walletRepo, withdrawals: withdrawals,
		limits: limits, velocity: velocity, userID: userID, bankID: bankID, walletID: walletID,
	}
}

func TestCreateWithdrawal_HappyPathLocksFunds(t *testing.T) {
	h := newHarness(domain.KYCVerified, 10_000_000)

	w, err := h.svc.CreateWithdrawal(context.Background(), CreateInput{
		UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, w.Status)
	assert.Equal(t, 1, w.RequiredApprovals)

	wallet, err := h.walletRepo.FindByID(context.Background(), h.walletID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(1_000_000), wallet.LockedMinor)
}

func TestCreateWithdrawal_IsIdempotent(t *testing.T) {
	h := newHarness(domain.KYCVerified, 10_000_000)
	ctx := context.Background()

	first, err := h.svc.CreateWithdrawal(ctx, CreateInput{UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	second, err := h.svc.CreateWithdrawal(ctx, CreateInput{UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	wallet, err := h.walletRepo.FindByID(ctx, h.walletID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(1_000_000), wallet.LockedMinor, "replay must not lock funds twice")
}

func TestCreateWithdrawal_RejectsOverPerTxLimit(t *testing.T) {
	h := newHarness(domain.KYCNone, 10_000_000)

	_, err := h.svc.CreateWithdrawal(context.Background(), CreateInput{
		UserID: h.userID, AmountMinor: 2_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1",
	})
	require.Error(t, err)

	var verr apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, apperrors.CodeWithdrawalLimitExceeded, verr.Code)
}

func TestCreateWithdrawal_RejectsSuspendedUser(t *testing.T) {
	h := newHarness(domain.KYCVerified, 10_000_000)

	from := time.Now().UTC().Add(-time.Hour)
	until := time.Now().UTC().Add(time.Hour)
	h.svc.Users = fakeUsers{byID: map[uuid.UUID]*domain.User{
		h.userID: {ID: h.userID, KYCTier: domain.KYCVerified, SuspendedFrom: &from, SuspendedUntil: &until},
	}}

	_, err := h.svc.CreateWithdrawal(context.Background(), CreateInput{
		UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1",
	})
	require.Error(t, err)

	var ferr apperrors.ForbiddenError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, apperrors.CodeUserSuspended, ferr.Code)
}

func TestCreateWithdrawal_DualApprovalRequiredAboveThreshold(t *testing.T) {
	h := newHarness(domain.KYCVerified, 100_000_000)

	w, err := h.svc.CreateWithdrawal(context.Background(), CreateInput{
		UserID: h.userID, AmountMinor: 30_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, w.RequiredApprovals)
}

func TestCreateWithdrawal_BlocksOnHighVelocityScore(t *testing.T) {
	h := newHarness(domain.KYCVerified, 100_000_000)

	now := time.Now().UTC()
	for i := 0; i < 35; i++ {
		h.velocity.rows = append(h.velocity.rows, &domain.WithdrawalVelocityLog{
			ID: uuid.New(), UserID: h.userID, AmountMinor: 2_000_000, CreatedAt: now.Add(-time.Minute * time.Duration(i)),
		})
	}

	_, err := h.svc.CreateWithdrawal(context.Background(), CreateInput{
		UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1",
	})
	require.Error(t, err)

	var ferr apperrors.ForbiddenError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, apperrors.CodeWithdrawalFlagged, ferr.Code)
}

func TestApprove_SecondApprovalTransitionsToApproved(t *testing.T) {
	h := newHarness(domain.KYCVerified, 100_000_000)
	ctx := context.Background()

	w, err := h.svc.CreateWithdrawal(ctx, CreateInput{UserID: h.userID, AmountMinor: 30_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	w, err = h.svc.Approve(ctx, w.ID, uuid.New(), "looks fine")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, w.Status)

	w, err = h.svc.Approve(ctx, w.ID, uuid.New(), "confirmed")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, w.Status)
}

func TestApprove_RejectsSelfApproval(t *testing.T) {
	h := newHarness(domain.KYCVerified, 10_000_000)
	ctx := context.Background()

	w, err := h.svc.CreateWithdrawal(ctx, CreateInput{UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, w.ID, h.userID, "self sign-off")
	require.Error(t, err)

	var ferr apperrors.ForbiddenError
	require.ErrorAs(t, err, &ferr)
}

func TestReject_UnlocksFunds(t *testing.T) {
	h := newHarness(domain.KYCVerified, 10_000_000)
	ctx := context.Background()

	w, err := h.svc.CreateWithdrawal(ctx, CreateInput{UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	_, err = h.svc.Reject(ctx, w.ID, uuid.New(), "suspicious bank account")
	require.NoError(t, err)

	wallet, err := h.walletRepo.FindByID(ctx, h.walletID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(0), wallet.LockedMinor)
}

func TestCreateWithdrawal_RejectsWithinCoolingPeriod(t *testing.T) {
	h := newHarness(domain.KYCVerified, 100_000_000)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, h.withdrawals.Create(ctx, &domain.Withdrawal{
		ID: uuid.New(), UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID,
		IdempotencyKey: "prior", Status: domain.WithdrawalCompleted,
		CoolingPeriodEndsAt: now.Add(-10 * time.Minute).Add(15 * time.Minute),
		CreatedAt:           now.Add(-10 * time.Minute),
	}))

	_, err := h.svc.CreateWithdrawal(ctx, CreateInput{
		UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1",
	})
	require.Error(t, err)

	var verr apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, apperrors.CodeWithdrawalCoolingPeriod, verr.Code)
	assert.Equal(t, 5, verr.Details["wait_minutes"])

	wallet, err := h.walletRepo.FindByID(ctx, h.walletID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(0), wallet.LockedMinor, "rejected request must not lock funds")
}

func TestCreateWithdrawal_SucceedsAfterCoolingPeriodElapses(t *testing.T) {
	h := newHarness(domain.KYCVerified, 100_000_000)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, h.withdrawals.Create(ctx, &domain.Withdrawal{
		ID: uuid.New(), UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID,
		IdempotencyKey: "prior", Status: domain.WithdrawalCompleted,
		CoolingPeriodEndsAt: now.Add(-time.Second),
		CreatedAt:           now.Add(-20 * time.Minute),
	}))

	w, err := h.svc.CreateWithdrawal(ctx, CreateInput{
		UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, w.Status)
}

type fakeLedgerAccounts struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*domain.LedgerAccount
	byWallet    map[uuid.UUID]*domain.LedgerAccount
	byPlatform  map[string]*domain.LedgerAccount
}

func newFakeLedgerAccounts() *fakeLedgerAccounts {
	return &fakeLedgerAccounts{
		byID: map[uuid.UUID]*domain.LedgerAccount{}, byWallet: map[uuid.UUID]*domain.LedgerAccount{},
		byPlatform: map[string]*domain.LedgerAccount{},
	}
}

func (f *fakeLedgerAccounts) seedWallet(walletID uuid.UUID) *domain.LedgerAccount {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := &domain.LedgerAccount{ID: uuid.New(), Type: domain.AccountUserWallet, WalletID: &walletID, Currency: "IDR", CreatedAt: time.Now().UTC()}
	f.byID[a.ID] = a
	f.byWallet[walletID] = a

	return a
}

func (f *fakeLedgerAccounts) seedPlatform(key string) *domain.LedgerAccount {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key
	a := &domain.LedgerAccount{ID: uuid.New(), Type: domain.AccountProviderFloat, PlatformKey: &k, Currency: "IDR", CreatedAt: time.Now().UTC()}
	f.byID[a.ID] = a
	f.byPlatform[key] = a

	return a
}

func (f *fakeLedgerAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeAccountNotFound, EntityType: "ledger_account"}
	}

	return a, nil
}

func (f *fakeLedgerAccounts) FindByWalletID(_ context.Context, walletID uuid.UUID) (*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.byWallet[walletID]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeAccountNotFound, EntityType: "ledger_account"}
	}

	return a, nil
}

func (f *fakeLedgerAccounts) FindByPlatformKey(_ context.Context, key string) (*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.byPlatform[key]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeAccountNotFound, EntityType: "ledger_account"}
	}

	return a, nil
}

func (f *fakeLedgerAccounts) Create(_ context.Context, a *domain.LedgerAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.byID[a.ID] = a

	return nil
}

func (f *fakeLedgerAccounts) ListPlatformAccounts(_ context.Context) ([]*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*domain.LedgerAccount, 0, len(f.byPlatform))
	for _, a := range f.byPlatform {
		out = append(out, a)
	}

	return out, nil
}

type fakeLedgerJournals struct {
	mu       sync.Mutex
	byKey    map[string]*domain.LedgerJournal
	journals []*domain.LedgerJournal
}

func (f *fakeLedgerJournals) FindByIdempotencyKey(_ context.Context, key string) (*domain.LedgerJournal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.byKey[key]
	if !ok {
		return nil, apperrors.NotFoundError{EntityType: "journal"}
	}

	return j, nil
}

func (f *fakeLedgerJournals) Create(_ context.Context, journal *domain.LedgerJournal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.byKey == nil {
		f.byKey = map[string]*domain.LedgerJournal{}
	}

	f.byKey[journal.IdempotencyKey] = journal
	f.journals = append(f.journals, journal)

	return nil
}

func (f *fakeLedgerJournals) ListAll(_ context.Context) ([]*domain.LedgerJournal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.journals, nil
}

type fakeLedgerEntries struct {
	mu      sync.Mutex
	byAccount map[uuid.UUID][]*domain.LedgerEntry
}

func newFakeLedgerEntries() *fakeLedgerEntries {
	return &fakeLedgerEntries{byAccount: map[uuid.UUID][]*domain.LedgerEntry{}}
}

func (f *fakeLedgerEntries) LastRunningBalance(_ context.Context, accountID uuid.UUID) (money.Minor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.byAccount[accountID]
	if len(entries) == 0 {
		return 0, nil
	}

	return entries[len(entries)-1].RunningBalanceMinor, nil
}

func (f *fakeLedgerEntries) CreateBatch(_ context.Context, entries []*domain.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range entries {
		f.byAccount[e.AccountID] = append(f.byAccount[e.AccountID], e)
	}

	return nil
}

func (f *fakeLedgerEntries) SumByAccount(_ context.Context, accountID uuid.UUID) (money.Minor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sum money.Minor
	for _, e := range f.byAccount[accountID] {
		sum += e.AmountMinor
	}

	return sum, nil
}

func (f *fakeLedgerEntries) ListByJournal(_ context.Context, journalID uuid.UUID) ([]*domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.LedgerEntry
	for _, entries := range f.byAccount {
		for _, e := range entries {
			if e.JournalID == journalID {
				out = append(out, e)
			}
		}
	}

	return out, nil
}

func (f *fakeLedgerEntries) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.byAccount[accountID], nil
}

func TestComplete_SettlesFundsAndRecordsLedgerJournal(t *testing.T) {
	h := newHarness(domain.KYCVerified, 10_000_000)
	ctx := context.Background()

	accounts := newFakeLedgerAccounts()
	accounts.seedWallet(h.walletID)
	accounts.seedPlatform(domain.PlatformKeyProviderFloat)

	h.svc.Ledger = &ledger.UseCase{Accounts: accounts, Journals: &fakeLedgerJournals{}, Entries: newFakeLedgerEntries()}

	w, err := h.svc.CreateWithdrawal(ctx, CreateInput{UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	w, err = h.svc.Approve(ctx, w.ID, uuid.New(), "ok")
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalApproved, w.Status)

	completed, err := h.svc.Complete(ctx, w.ID, "disb-ref-1", "key-complete-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, completed.Status)
	assert.Equal(t, "disb-ref-1", completed.ProviderDisbursement)

	settledWallet, err := h.walletRepo.FindByID(ctx, h.walletID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(0), settledWallet.LockedMinor)
	assert.Equal(t, money.Minor(9_000_000), settledWallet.BalanceMinor)
}

func TestComplete_RejectsWhenNotApproved(t *testing.T) {
	h := newHarness(domain.KYCVerified, 10_000_000)
	ctx := context.Background()

	w, err := h.svc.CreateWithdrawal(ctx, CreateInput{UserID: h.userID, AmountMinor: 1_000_000, BankAccountID: h.bankID, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	_, err = h.svc.Complete(ctx, w.ID, "disb-1", "key-complete-1")
	require.Error(t, err)

	var verr apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, apperrors.CodeInvalidStateTransition, verr.Code)
}
