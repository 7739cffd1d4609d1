package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/money"
)

// JournalType classifies a LedgerJournal for reporting and for the
// typed convenience constructors of C1 (spec §4.1).
type JournalType string

const (
	JournalDeposit           JournalType = "DEPOSIT"
	JournalWithdrawal        JournalType = "WITHDRAWAL"
	JournalEscrowHold        JournalType = "ESCROW_HOLD"
	JournalEscrowRelease     JournalType = "ESCROW_RELEASE"
	JournalEscrowRefund      JournalType = "ESCROW_REFUND"
	JournalDisputeResolution JournalType = "DISPUTE_RESOLUTION"
)

// JournalLinks carries the optional foreign references a journal may
// be tagged with, per spec §3 ("linked references").
type JournalLinks struct {
	OrderID      *uuid.UUID `json:"orderId,omitempty"`
	EscrowID     *uuid.UUID `json:"escrowId,omitempty"`
	WithdrawalID *uuid.UUID `json:"withdrawalId,omitempty"`
	DepositID    *uuid.UUID `json:"depositId,omitempty"`
	DisputeID    *uuid.UUID `json:"disputeId,omitempty"`
}

// LedgerJournal is the immutable header of a balanced set of entries.
type LedgerJournal struct {
	ID             uuid.UUID   `json:"id"`
	Type           JournalType `json:"type"`
	AmountMinor    money.Minor `json:"amountMinor"`
	Description    string      `json:"description"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Links          JournalLinks `json:"links"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// LedgerEntry is an immutable child row of a journal. Positive
// AmountMinor is a debit, negative is a credit (spec §3).
type LedgerEntry struct {
	ID                   uuid.UUID   `json:"id"`
	JournalID            uuid.UUID   `json:"journalId"`
	AccountID            uuid.UUID   `json:"accountId"`
	AmountMinor          money.Minor `json:"amountMinor"`
	RunningBalanceMinor  money.Minor `json:"runningBalanceMinor"`
	CreatedAt            time.Time   `json:"createdAt"`
}

// JournalEntryInput is the caller-supplied shape of one entry before
// it is persisted (no ID/running-balance yet).
type JournalEntryInput struct {
	AccountID   uuid.UUID
	AmountMinor money.Minor
}

// SumEntryInputs returns the signed sum of a set of entry inputs — used to
// validate invariant J1 before insert.
func SumEntryInputs(entries []JournalEntryInput) money.Minor {
	var total money.Minor
	for _, e := range entries {
		total += e.AmountMinor
	}

	return total
}

// BalanceReport is returned by verify_all_journals_balanced and
// verify_platform_balance (spec §4.1).
type BalanceReport struct {
	Checked     int                  `json:"checked"`
	Violations  []BalanceViolation   `json:"violations,omitempty"`
}

// BalanceViolation names one journal or account whose invariant failed.
type BalanceViolation struct {
	JournalID *uuid.UUID  `json:"journalId,omitempty"`
	AccountID *uuid.UUID  `json:"accountId,omitempty"`
	Detail    string      `json:"detail"`
	NetMinor  money.Minor `json:"netMinor"`
}

// OK reports whether the report found zero violations.
func (r BalanceReport) OK() bool { return len(r.Violations) == 0 }
