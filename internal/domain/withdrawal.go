package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/money"
)

// WithdrawalStatus is the withdrawal lifecycle of spec §4.4.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalApproved  WithdrawalStatus = "APPROVED"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
)

// Withdrawal is a disbursement request.
type Withdrawal struct {
	ID                   uuid.UUID        `json:"id"`
	UserID               uuid.UUID        `json:"userId"`
	AmountMinor          money.Minor      `json:"amountMinor"`
	BankAccountID        uuid.UUID        `json:"bankAccountId"`
	IdempotencyKey       string           `json:"idempotencyKey"`
	Status               WithdrawalStatus `json:"status"`
	VelocityScore        int              `json:"velocityScore"`
	FlaggedBySystem      bool             `json:"flaggedBySystem"`
	FlagReason           string           `json:"flagReason,omitempty"`
	CoolingPeriodEndsAt  time.Time        `json:"coolingPeriodEndsAt"`
	RequiredApprovals    int              `json:"requiredApprovals"`
	ApprovalsCount       int              `json:"approvalsCount"`
	ProviderDisbursement string           `json:"providerDisbursementId,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	ApprovedAt           *time.Time       `json:"approvedAt,omitempty"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
	RejectedAt            *time.Time       `json:"rejectedAt,omitempty"`
}

// WithdrawalApproval records one administrator's sign-off, enabling
// the dual-approval rule of spec §4.4.
type WithdrawalApproval struct {
	ID           uuid.UUID `json:"id"`
	WithdrawalID uuid.UUID `json:"withdrawalId"`
	ApproverID   uuid.UUID `json:"approverId"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TierLimits is one row of the per-tier withdrawal caps table
// (spec §4.4's example-defaults table; authoritative copy lives in
// TransactionLimit rows per user, seeded from these on registration).
type TierLimits struct {
	Tier              KYCTier
	PerTxMinor        money.Minor
	DailyAmountMinor  money.Minor
	DailyCount        int
	MonthlyAmountMinor money.Minor
	CoolingMinutes    int
	DualApprovalMinor money.Minor
}

// DefaultTierLimits mirrors spec §4.4's example-defaults table. These
// seed TransactionLimit rows at registration; the DB row is
// authoritative thereafter (spec §9's Open Question resolution — see
// DESIGN.md).
var DefaultTierLimits = map[KYCTier]TierLimits{
	KYCNone: {
		Tier: KYCNone, PerTxMinor: 1_000_000, DailyAmountMinor: 1_000_000, DailyCount: 1,
		MonthlyAmountMinor: 5_000_000, CoolingMinutes: 60, DualApprovalMinor: 500_000,
	},
	KYCPending: {
		Tier: KYCPending, PerTxMinor: 10_000_000, DailyAmountMinor: 10_000_000, DailyCount: 3,
		MonthlyAmountMinor: 50_000_000, CoolingMinutes: 30, DualApprovalMinor: 5_000_000,
	},
	KYCVerified: {
		Tier: KYCVerified, PerTxMinor: 50_000_000, DailyAmountMinor: 100_000_000, DailyCount: 5,
		MonthlyAmountMinor: 500_000_000, CoolingMinutes: 15, DualApprovalMinor: 25_000_000,
	},
}

// TransactionLimit is the per-user cap row of spec §9 (one unified
// table replacing the source's overlapping schemas).
type TransactionLimit struct {
	UserID             uuid.UUID   `json:"userId"`
	DailyLimitMinor    money.Minor `json:"dailyLimitMinor"`
	PerTxLimitMinor    money.Minor `json:"perTxLimitMinor"`
	MonthlyLimitMinor  money.Minor `json:"monthlyLimitMinor"`
	CoolingMinutes     int         `json:"coolingMinutes"`
	DualApprovalMinor  money.Minor `json:"dualApprovalMinor"`
	DailyUsedMinor     money.Minor `json:"dailyUsedMinor"`
	DailyCount         int         `json:"dailyCount"`
	MonthlyUsedMinor   money.Minor `json:"monthlyUsedMinor"`
	EffectiveFrom      time.Time   `json:"effectiveFrom"`
	EffectiveUntil     *time.Time  `json:"effectiveUntil,omitempty"`
	IsActive           bool        `json:"isActive"`
	LastDailyResetAt   time.Time   `json:"lastDailyResetAt"`
	LastMonthlyResetAt time.Time   `json:"lastMonthlyResetAt"`
}

// WithdrawalVelocityLog is an append-only record of a withdrawal event
// used to compute the velocity score of spec §4.4.
type WithdrawalVelocityLog struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"userId"`
	AmountMinor money.Minor `json:"amountMinor"`
	CreatedAt   time.Time   `json:"createdAt"`
}
