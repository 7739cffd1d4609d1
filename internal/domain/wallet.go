package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/money"
)

// Wallet holds a user's available/locked balance. Exactly one per
// user, per spec §3. Available balance ≡ balance − locked.
type Wallet struct {
	ID                  uuid.UUID    `json:"id"`
	UserID              uuid.UUID    `json:"userId"`
	Currency            string       `json:"currency"`
	BalanceMinor        money.Minor  `json:"balanceMinor"`
	LockedMinor         money.Minor  `json:"lockedMinor"`
	Version             int64        `json:"version"`
	LastReconciledAt    *time.Time   `json:"lastReconciledAt,omitempty"`
	ReconciliationHash  string       `json:"reconciliationHash,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// Available returns balance minus locked (I4: locked ≤ balance always
// holds, so this never goes negative in a consistent row).
func (w Wallet) Available() money.Minor {
	return w.BalanceMinor - w.LockedMinor
}

// LedgerAccountType enumerates the owner kinds of a LedgerAccount.
type LedgerAccountType string

const (
	AccountUserWallet    LedgerAccountType = "USER_WALLET"
	AccountEscrowHolding LedgerAccountType = "ESCROW_HOLDING"
	AccountPlatformFees  LedgerAccountType = "PLATFORM_FEES"
	AccountProviderFloat LedgerAccountType = "PROVIDER_FLOAT"
	AccountReserve       LedgerAccountType = "RESERVE"
)

// LedgerAccount is owned either by exactly one wallet OR by a platform
// key — never both, never neither (spec §3's XOR constraint).
type LedgerAccount struct {
	ID          uuid.UUID         `json:"id"`
	Type        LedgerAccountType `json:"type"`
	WalletID    *uuid.UUID        `json:"walletId,omitempty"`
	PlatformKey *string           `json:"platformKey,omitempty"`
	Currency    string            `json:"currency"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// IsPlatformOwned reports whether this account is a platform-key
// account rather than a user wallet account.
func (a LedgerAccount) IsPlatformOwned() bool {
	return a.PlatformKey != nil
}

// Well-known platform account keys.
const (
	PlatformKeyEscrowHolding = "PLATFORM_ESCROW_HOLDING"
	PlatformKeyFees          = "PLATFORM_FEES"
	PlatformKeyProviderFloat = "PLATFORM_PROVIDER_FLOAT"
	PlatformKeyReserve       = "PLATFORM_RESERVE"
)
