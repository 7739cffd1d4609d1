package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/money"
)

// walletAccount resolves a wallet's LedgerAccount row — every typed
// constructor below needs this lookup at least once.
func (uc *UseCase) walletAccount(ctx context.Context, walletID uuid.UUID) (*domain.LedgerAccount, error) {
	return uc.Accounts.FindByWalletID(ctx, walletID)
}

func (uc *UseCase) platformAccount(ctx context.Context, key string) (*domain.LedgerAccount, error) {
	return uc.Accounts.FindByPlatformKey(ctx, key)
}

// RecordDeposit debits the provider float platform account and
// credits the depositing user's wallet account.
func (uc *UseCase) RecordDeposit(ctx context.Context, walletID, depositID uuid.UUID, amount money.Minor, idempotencyKey string) (*domain.LedgerJournal, error) {
	wallet, err := uc.walletAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}

	float, err := uc.platformAccount(ctx, domain.PlatformKeyProviderFloat)
	if err != nil {
		return nil, err
	}

	return uc.CreateJournal(ctx, CreateJournalInput{
		Type:           domain.JournalDeposit,
		AmountMinor:    amount,
		Description:    fmt.Sprintf("deposit %s", depositID),
		IdempotencyKey: idempotencyKey,
		Links:          domain.JournalLinks{DepositID: &depositID},
		Entries: []domain.JournalEntryInput{
			{AccountID: float.ID, AmountMinor: amount},
			{AccountID: wallet.ID, AmountMinor: -amount},
		},
	})
}

// RecordWithdrawal debits the withdrawing user's wallet account and
// credits the provider float platform account.
func (uc *UseCase) RecordWithdrawal(ctx context.Context, walletID, withdrawalID uuid.UUID, amount money.Minor, idempotencyKey string) (*domain.LedgerJournal, error) {
	wallet, err := uc.walletAccount(ctx, walletID)
	if err != nil {
		return nil, err
	}

	float, err := uc.platformAccount(ctx, domain.PlatformKeyProviderFloat)
	if err != nil {
		return nil, err
	}

	return uc.CreateJournal(ctx, CreateJournalInput{
		Type:           domain.JournalWithdrawal,
		AmountMinor:    amount,
		Description:    fmt.Sprintf("withdrawal %s", withdrawalID),
		IdempotencyKey: idempotencyKey,
		Links:          domain.JournalLinks{WithdrawalID: &withdrawalID},
		Entries: []domain.JournalEntryInput{
			{AccountID: wallet.ID, AmountMinor: amount},
			{AccountID: float.ID, AmountMinor: -amount},
		},
	})
}

// RecordEscrowHold debits the buyer's wallet account and credits the
// platform escrow-holding account, per spec §4.3's CreateEscrow.
func (uc *UseCase) RecordEscrowHold(ctx context.Context, buyerWalletID, escrowID uuid.UUID, amount money.Minor, idempotencyKey string) (*domain.LedgerJournal, error) {
	buyer, err := uc.walletAccount(ctx, buyerWalletID)
	if err != nil {
		return nil, err
	}

	holding, err := uc.platformAccount(ctx, domain.PlatformKeyEscrowHolding)
	if err != nil {
		return nil, err
	}

	return uc.CreateJournal(ctx, CreateJournalInput{
		Type:           domain.JournalEscrowHold,
		AmountMinor:    amount,
		Description:    fmt.Sprintf("escrow hold %s", escrowID),
		IdempotencyKey: idempotencyKey,
		Links:          domain.JournalLinks{EscrowID: &escrowID},
		Entries: []domain.JournalEntryInput{
			{AccountID: buyer.ID, AmountMinor: amount},
			{AccountID: holding.ID, AmountMinor: -amount},
		},
	})
}

// RecordEscrowRelease debits the platform escrow-holding account and
// splits the credit between the seller's wallet (net of fee) and the
// platform fees account — a three-entry journal per spec §8's
// happy-path scenario.
func (uc *UseCase) RecordEscrowRelease(ctx context.Context, sellerWalletID, escrowID uuid.UUID, total, fee money.Minor, idempotencyKey string) (*domain.LedgerJournal, error) {
	seller, err := uc.walletAccount(ctx, sellerWalletID)
	if err != nil {
		return nil, err
	}

	holding, err := uc.platformAccount(ctx, domain.PlatformKeyEscrowHolding)
	if err != nil {
		return nil, err
	}

	feeAccount, err := uc.platformAccount(ctx, domain.PlatformKeyFees)
	if err != nil {
		return nil, err
	}

	net, err := money.Sub(total, fee)
	if err != nil {
		return nil, err
	}

	return uc.CreateJournal(ctx, CreateJournalInput{
		Type:           domain.JournalEscrowRelease,
		AmountMinor:    total,
		Description:    fmt.Sprintf("escrow release %s", escrowID),
		IdempotencyKey: idempotencyKey,
		Links:          domain.JournalLinks{EscrowID: &escrowID},
		Entries: []domain.JournalEntryInput{
			{AccountID: holding.ID, AmountMinor: total},
			{AccountID: seller.ID, AmountMinor: -net},
			{AccountID: feeAccount.ID, AmountMinor: -fee},
		},
	})
}

// RecordEscrowRefund debits the platform escrow-holding account and
// credits the buyer's wallet account in full — no fee is retained.
func (uc *UseCase) RecordEscrowRefund(ctx context.Context, buyerWalletID, escrowID uuid.UUID, amount money.Minor, idempotencyKey string) (*domain.LedgerJournal, error) {
	buyer, err := uc.walletAccount(ctx, buyerWalletID)
	if err != nil {
		return nil, err
	}

	holding, err := uc.platformAccount(ctx, domain.PlatformKeyEscrowHolding)
	if err != nil {
		return nil, err
	}

	return uc.CreateJournal(ctx, CreateJournalInput{
		Type:           domain.JournalEscrowRefund,
		AmountMinor:    amount,
		Description:    fmt.Sprintf("escrow refund %s", escrowID),
		IdempotencyKey: idempotencyKey,
		Links:          domain.JournalLinks{EscrowID: &escrowID},
		Entries: []domain.JournalEntryInput{
			{AccountID: holding.ID, AmountMinor: amount},
			{AccountID: buyer.ID, AmountMinor: -amount},
		},
	})
}

// DisputeSplit is one party's share of a dispute resolution.
type DisputeSplit struct {
	WalletID uuid.UUID
	Amount   money.Minor
}

// RecordDisputeResolution debits the platform escrow-holding account
// for the full held amount and credits each split recipient plus,
// optionally, the platform fee account — a variable 2-4 entry journal
// per spec §4.3's ADJUSTED resolution.
func (uc *UseCase) RecordDisputeResolution(ctx context.Context, escrowID, disputeID uuid.UUID, held money.Minor, splits []DisputeSplit, fee money.Minor, idempotencyKey string) (*domain.LedgerJournal, error) {
	holding, err := uc.platformAccount(ctx, domain.PlatformKeyEscrowHolding)
	if err != nil {
		return nil, err
	}

	entries := []domain.JournalEntryInput{
		{AccountID: holding.ID, AmountMinor: held},
	}

	for _, s := range splits {
		account, err := uc.walletAccount(ctx, s.WalletID)
		if err != nil {
			return nil, err
		}

		entries = append(entries, domain.JournalEntryInput{AccountID: account.ID, AmountMinor: -s.Amount})
	}

	if fee > 0 {
		feeAccount, err := uc.platformAccount(ctx, domain.PlatformKeyFees)
		if err != nil {
			return nil, err
		}

		entries = append(entries, domain.JournalEntryInput{AccountID: feeAccount.ID, AmountMinor: -fee})
	}

	return uc.CreateJournal(ctx, CreateJournalInput{
		Type:           domain.JournalDisputeResolution,
		AmountMinor:    held,
		Description:    fmt.Sprintf("dispute resolution %s", disputeID),
		IdempotencyKey: idempotencyKey,
		Links:          domain.JournalLinks{EscrowID: &escrowID, DisputeID: &disputeID},
		Entries:        entries,
	})
}
