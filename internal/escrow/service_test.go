package escrow

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

// --- in-memory fakes for every repository interface this package needs ---

type fakeOrders struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.Order
}

func newFakeOrders() *fakeOrders { return &fakeOrders{byID: map[uuid.UUID]*domain.Order{}} }

func (f *fakeOrders) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeOrderNotFound, EntityType: "order"}
	}

	cp := *o

	return &cp, nil
}

func (f *fakeOrders) FindByInviteToken(_ context.Context, token string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.byID {
		if o.InviteToken == token {
			cp := *o
			return &cp, nil
		}
	}

	return nil, apperrors.NotFoundError{Code: apperrors.CodeOrderNotFound, EntityType: "order"}
}

func (f *fakeOrders) Create(_ context.Context, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *o
	f.byID[o.ID] = &cp

	return nil
}

func (f *fakeOrders) Update(_ context.Context, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *o
	f.byID[o.ID] = &cp

	return nil
}

func (f *fakeOrders) ListAwaitingAutoRelease(_ context.Context, asOf time.Time) ([]*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.Order
	for _, o := range f.byID {
		if o.Status == domain.OrderPaid && o.AutoReleaseAt != nil && o.AutoReleaseAt.Before(asOf) {
			cp := *o
			out = append(out, &cp)
		}
	}

	return out, nil
}

type fakeEscrows struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*domain.EscrowHold
	byOrderID map[uuid.UUID]uuid.UUID
}

func newFakeEscrows() *fakeEscrows {
	return &fakeEscrows{byID: map[uuid.UUID]*domain.EscrowHold{}, byOrderID: map[uuid.UUID]uuid.UUID{}}
}

func (f *fakeEscrows) FindByID(_ context.Context, id uuid.UUID) (*domain.EscrowHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeEscrowNotFound, EntityType: "escrow"}
	}

	cp := *h

	return &cp, nil
}

func (f *fakeEscrows) FindByOrderID(_ context.Context, orderID uuid.UUID) (*domain.EscrowHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byOrderID[orderID]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeEscrowNotFound, EntityType: "escrow"}
	}

	cp := *f.byID[id]

	return &cp, nil
}

func (f *fakeEscrows) Create(_ context.Context, h *domain.EscrowHold) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *h
	f.byID[h.ID] = &cp
	f.byOrderID[h.OrderID] = h.ID

	return nil
}

func (f *fakeEscrows) Update(_ context.Context, h *domain.EscrowHold) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *h
	f.byID[h.ID] = &cp

	return nil
}

type fakeDisputes struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.Dispute
}

func newFakeDisputes() *fakeDisputes { return &fakeDisputes{byID: map[uuid.UUID]*domain.Dispute{}} }

func (f *fakeDisputes) FindByID(_ context.Context, id uuid.UUID) (*domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{EntityType: "dispute"}
	}

	cp := *d

	return &cp, nil
}

func (f *fakeDisputes) FindOpenByEscrowID(_ context.Context, escrowID uuid.UUID) (*domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range f.byID {
		if d.EscrowID == escrowID && d.Status == domain.DisputeOpen {
			cp := *d
			return &cp, nil
		}
	}

	return nil, apperrors.NotFoundError{EntityType: "dispute"}
}

func (f *fakeDisputes) Create(_ context.Context, d *domain.Dispute) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *d
	f.byID[d.ID] = &cp

	return nil
}

func (f *fakeDisputes) Update(_ context.Context, d *domain.Dispute) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *d
	f.byID[d.ID] = &cp

	return nil
}

// fakeWallets backs both WalletLookup and the ledger/wallet account
// resolution needed by ledger.UseCase in these tests.
type fakeWallets struct {
	mu       sync.Mutex
	byUser   map[uuid.UUID]*domain.Wallet
	byID     map[uuid.UUID]*domain.Wallet
	casCalls int
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{byUser: map[uuid.UUID]*domain.Wallet{}, byID: map[uuid.UUID]*domain.Wallet{}}
}

func (f *fakeWallets) seed(userID uuid.UUID, balance money.Minor) *domain.Wallet {
	w := &domain.Wallet{ID: uuid.New(), UserID: userID, Currency: "IDR", BalanceMinor: balance, Version: 1, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	f.mu.Lock()
	f.byUser[userID] = w
	f.byID[w.ID] = w
	f.mu.Unlock()

	return w
}

func (f *fakeWallets) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.byUser[userID]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: "wallet"}
	}

	cp := *w

	return &cp, nil
}

func (f *fakeWallets) FindByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: "wallet"}
	}

	cp := *w

	return &cp, nil
}

func (f *fakeWallets) Create(_ context.Context, w *domain.Wallet) error { return nil }

func (f *fakeWallets) CompareAndSwap(_ context.Context, w *domain.Wallet, expectedVersion int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.casCalls++

	current, ok := f.byID[w.ID]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}

	cp := *w
	f.byID[w.ID] = &cp
	f.byUser[w.UserID] = &cp

	return true, nil
}

func (f *fakeWallets) ListAll(_ context.Context) ([]*domain.Wallet, error) { return nil, nil }

// fakeLedgerAccounts maps wallet IDs and platform keys to LedgerAccount
// rows, and fakeLedgerJournals/fakeLedgerEntries complete C1's
// repository surface so a real ledger.UseCase drives these tests.
type fakeLedgerAccounts struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*domain.LedgerAccount
	byWal map[uuid.UUID]*domain.LedgerAccount
	byKey map[string]*domain.LedgerAccount
}

func newFakeLedgerAccounts() *fakeLedgerAccounts {
	return &fakeLedgerAccounts{
		byID:  map[uuid.UUID]*domain.LedgerAccount{},
		byWal: map[uuid.UUID]*domain.LedgerAccount{},
		byKey: map[string]*domain.LedgerAccount{},
	}
}

func (f *fakeLedgerAccounts) seedWallet(walletID uuid.UUID) *domain.LedgerAccount {
	a := &domain.LedgerAccount{ID: uuid.New(), Type: domain.AccountUserWallet, WalletID: &walletID}
	f.mu.Lock()
	f.byID[a.ID] = a
	f.byWal[walletID] = a
	f.mu.Unlock()

	return a
}

func (f *fakeLedgerAccounts) seedPlatform(key string, typ domain.LedgerAccountType) *domain.LedgerAccount {
	k := key
	a := &domain.LedgerAccount{ID: uuid.New(), Type: typ, PlatformKey: &k}
	f.mu.Lock()
	f.byID[a.ID] = a
	f.byKey[key] = a
	f.mu.Unlock()

	return a
}

func (f *fakeLedgerAccounts) Create(_ context.Context, a *domain.LedgerAccount) error { return nil }

func (f *fakeLedgerAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.byID[id], nil
}

func (f *fakeLedgerAccounts) FindByWalletID(_ context.Context, walletID uuid.UUID) (*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.byWal[walletID]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeAccountNotFound, EntityType: "ledger_account"}
	}

	return a, nil
}

func (f *fakeLedgerAccounts) FindByPlatformKey(_ context.Context, key string) (*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.byKey[key]
	if !ok {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeAccountNotFound, EntityType: "ledger_account"}
	}

	return a, nil
}

func (f *fakeLedgerAccounts) ListPlatformAccounts(_ context.Context) ([]*domain.LedgerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*domain.LedgerAccount, 0, len(f.byKey))
	for _, a := range f.byKey {
		out = append(out, a)
	}

	return out, nil
}

type fakeLedgerJournals struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*domain.LedgerJournal
	byIdemp map[string]*domain.LedgerJournal
}

func newFakeLedgerJournals() *fakeLedgerJournals {
	return &fakeLedgerJournals{byID: map[uuid.UUID]*domain.LedgerJournal{}, byIdemp: map[string]*domain.LedgerJournal{}}
}

func (f *fakeLedgerJournals) FindByIdempotencyKey(_ context.Context, key string) (*domain.LedgerJournal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.byIdemp[key], nil
}

func (f *fakeLedgerJournals) Create(_ context.Context, j *domain.LedgerJournal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.byID[j.ID] = j
	f.byIdemp[j.IdempotencyKey] = j

	return nil
}

func (f *fakeLedgerJournals) ListAll(_ context.Context) ([]*domain.LedgerJournal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*domain.LedgerJournal, 0, len(f.byID))
	for _, j := range f.byID {
		out = append(out, j)
	}

	return out, nil
}

type fakeLedgerEntries struct {
	mu        sync.Mutex
	byJournal map[uuid.UUID][]*domain.LedgerEntry
	byAccount map[uuid.UUID][]*domain.LedgerEntry
}

func newFakeLedgerEntries() *fakeLedgerEntries {
	return &fakeLedgerEntries{byJournal: map[uuid.UUID][]*domain.LedgerEntry{}, byAccount: map[uuid.UUID][]*domain.LedgerEntry{}}
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
		f.byJournal[e.JournalID] = append(f.byJournal[e.JournalID], e)
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

	return f.byJournal[journalID], nil
}

func (f *fakeLedgerEntries) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.byAccount[accountID], nil
}

// testHarness wires a full Service with real ledger.UseCase and
// wallet.Service against in-memory fakes, mirroring how main.go
// composes these three components.
type testHarness struct {
	svc          *Service
	wallets      *fakeWallets
	ledgerAccts  *fakeLedgerAccounts
	buyerID      uuid.UUID
	sellerID     uuid.UUID
	buyerWallet  *domain.Wallet
	sellerWallet *domain.Wallet
}

func newTestHarness(t *testing.T, buyerBalance money.Minor) *testHarness {
	t.Helper()

	wallets := newFakeWallets()
	ledgerAccts := newFakeLedgerAccounts()

	ledgerAccts.seedPlatform(domain.PlatformKeyEscrowHolding, domain.AccountEscrowHolding)
	ledgerAccts.seedPlatform(domain.PlatformKeyFees, domain.AccountPlatformFees)

	buyerID, sellerID := uuid.New(), uuid.New()
	buyerWallet := wallets.seed(buyerID, buyerBalance)
	sellerWallet := wallets.seed(sellerID, 0)

	ledgerAccts.seedWallet(buyerWallet.ID)
	ledgerAccts.seedWallet(sellerWallet.ID)

	ledgerUC := &ledger.UseCase{
		Accounts: ledgerAccts,
		Journals: newFakeLedgerJournals(),
		Entries:  newFakeLedgerEntries(),
	}

	walletSvc := wallet.NewService(wallets, ledgerBalanceReader{ledgerUC, ledgerAccts})

	svc := &Service{
		Orders:    newFakeOrders(),
		Escrows:   newFakeEscrows(),
		Disputes:  newFakeDisputes(),
		Wallets:   wallets,
		WalletSvc: walletSvc,
		Ledger:    ledgerUC,
	}

	return &testHarness{
		svc:          svc,
		wallets:      wallets,
		ledgerAccts:  ledgerAccts,
		buyerID:      buyerID,
		sellerID:     sellerID,
		buyerWallet:  buyerWallet,
		sellerWallet: sellerWallet,
	}
}

type ledgerBalanceReader struct {
	uc       *ledger.UseCase
	accounts *fakeLedgerAccounts
}

func (r ledgerBalanceReader) WalletLedgerBalance(ctx context.Context, walletID uuid.UUID) (money.Minor, error) {
	account, err := r.accounts.FindByWalletID(ctx, walletID)
	if err != nil {
		return 0, err
	}

	return r.uc.GetAccountBalance(ctx, account.ID)
}

func (h *testHarness) createPaidOrder(t *testing.T, ctx context.Context, amount, fee money.Minor) *domain.Order {
	t.Helper()

	order, err := h.svc.CreateOrder(ctx, CreateOrderInput{
		InitiatorID:       h.buyerID,
		CounterpartyID:    h.sellerID,
		InitiatorRole:     domain.RoleBuyer,
		AmountMinor:       amount,
		PlatformFeeMinor:  fee,
		FeePayer:          domain.RoleSeller,
		HoldingPeriodDays: 7,
	})
	require.NoError(t, err)

	_, err = h.svc.AcceptOrder(ctx, order.ID, h.sellerID)
	require.NoError(t, err)

	_, err = h.svc.PayOrder(ctx, order.ID, "pay-"+order.ID.String())
	require.NoError(t, err)

	refreshed, err := h.svc.Orders.FindByID(ctx, order.ID)
	require.NoError(t, err)

	return refreshed
}

func TestHappyPath_ReleaseSplitsFeeToSeller(t *testing.T) {
	h := newTestHarness(t, 100000)
	ctx := context.Background()

	order := h.createPaidOrder(t, ctx, 100000, 2500)

	err := h.svc.Release(ctx, order.ID, "", h.buyerID, "release-1")
	require.NoError(t, err)

	finalOrder, err := h.svc.Orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, finalOrder.Status)

	sellerWallet, err := h.wallets.FindByUserID(ctx, h.sellerID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(97500), sellerWallet.BalanceMinor)

	buyerWallet, err := h.wallets.FindByUserID(ctx, h.buyerID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(0), buyerWallet.LockedMinor)
}

func TestHappyPath_SellerCannotRelease(t *testing.T) {
	h := newTestHarness(t, 100000)
	ctx := context.Background()

	order := h.createPaidOrder(t, ctx, 100000, 0)

	err := h.svc.Release(ctx, order.ID, "", h.sellerID, "release-2")
	require.Error(t, err)

	var forbidden apperrors.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestRefundPath_ReturnsFundsToBuyer(t *testing.T) {
	h := newTestHarness(t, 50000)
	ctx := context.Background()

	order := h.createPaidOrder(t, ctx, 50000, 0)

	err := h.svc.Refund(ctx, order.ID, h.sellerID, "refund-1")
	require.NoError(t, err)

	finalOrder, err := h.svc.Orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRefunded, finalOrder.Status)

	buyerWallet, err := h.wallets.FindByUserID(ctx, h.buyerID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(50000), buyerWallet.BalanceMinor)
	assert.Equal(t, money.Minor(0), buyerWallet.LockedMinor)
}

func TestDisputeSplit_TwoPartyNoFee(t *testing.T) {
	h := newTestHarness(t, 100000)
	ctx := context.Background()

	order := h.createPaidOrder(t, ctx, 100000, 0)

	dispute, err := h.svc.Dispute(ctx, order.ID, h.buyerID, "item not as described")
	require.NoError(t, err)

	err = h.svc.ResolveDispute(ctx, order.ID, dispute.ID, uuid.New(), ResolveDisputeInput{
		BuyerShareMinor:  60000,
		SellerShareMinor: 40000,
		Resolution:       domain.ResolutionSplit,
	}, "resolve-1")
	require.NoError(t, err)

	finalOrder, err := h.svc.Orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, finalOrder.Status)

	buyerWallet, err := h.wallets.FindByUserID(ctx, h.buyerID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(60000), buyerWallet.BalanceMinor)
	assert.Equal(t, money.Minor(0), buyerWallet.LockedMinor)

	sellerWallet, err := h.wallets.FindByUserID(ctx, h.sellerID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(40000), sellerWallet.BalanceMinor)
}

func TestDisputeSplit_FourEntryResolutionWithFee(t *testing.T) {
	h := newTestHarness(t, 1000000)
	ctx := context.Background()

	order := h.createPaidOrder(t, ctx, 1000000, 0)

	dispute, err := h.svc.Dispute(ctx, order.ID, h.buyerID, "partial damage")
	require.NoError(t, err)

	err = h.svc.ResolveDispute(ctx, order.ID, dispute.ID, uuid.New(), ResolveDisputeInput{
		BuyerShareMinor:  400000,
		SellerShareMinor: 580000,
		PlatformFeeMinor: 20000,
		Resolution:       domain.ResolutionSplit,
	}, "resolve-2")
	require.NoError(t, err)

	finalOrder, err := h.svc.Orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, finalOrder.Status)

	buyerWallet, err := h.wallets.FindByUserID(ctx, h.buyerID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(400000), buyerWallet.BalanceMinor)
	assert.Equal(t, money.Minor(0), buyerWallet.LockedMinor)

	sellerWallet, err := h.wallets.FindByUserID(ctx, h.sellerID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(580000), sellerWallet.BalanceMinor)

	feesAccount, err := h.ledgerAccts.FindByPlatformKey(ctx, domain.PlatformKeyFees)
	require.NoError(t, err)

	feesBalance, err := h.svc.Ledger.GetAccountBalance(ctx, feesAccount.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(-20000), feesBalance)

	holdingAccount, err := h.ledgerAccts.FindByPlatformKey(ctx, domain.PlatformKeyEscrowHolding)
	require.NoError(t, err)

	holdingBalance, err := h.svc.Ledger.GetAccountBalance(ctx, holdingAccount.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(0), holdingBalance)
}

func TestDisputeSplit_RejectsSharesNotSummingToHold(t *testing.T) {
	h := newTestHarness(t, 100000)
	ctx := context.Background()

	order := h.createPaidOrder(t, ctx, 100000, 0)

	dispute, err := h.svc.Dispute(ctx, order.ID, h.buyerID, "item not as described")
	require.NoError(t, err)

	err = h.svc.ResolveDispute(ctx, order.ID, dispute.ID, uuid.New(), ResolveDisputeInput{
		BuyerShareMinor:  60000,
		SellerShareMinor: 30000,
		PlatformFeeMinor: 5000,
		Resolution:       domain.ResolutionSplit,
	}, "resolve-3")
	require.Error(t, err)

	var verr apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, apperrors.CodeInvalidAmount, verr.Code)
}

func TestEscrowStateMachine_RejectsReReleaseAfterTerminal(t *testing.T) {
	h := newTestHarness(t, 100000)
	ctx := context.Background()

	order := h.createPaidOrder(t, ctx, 100000, 0)

	require.NoError(t, h.svc.Release(ctx, order.ID, "", h.buyerID, "release-3"))

	err := h.svc.Release(ctx, order.ID, "", h.buyerID, "release-4")
	require.Error(t, err)

	var verr apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, apperrors.CodeInvalidStateTransition, verr.Code)
}
