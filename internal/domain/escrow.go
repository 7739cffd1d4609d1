package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/money"
)

// EscrowStatus is the escrow hold state machine of spec §4.3.
type EscrowStatus string

const (
	EscrowActive   EscrowStatus = "ACTIVE"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowDisputed EscrowStatus = "DISPUTED"
	EscrowAdjusted EscrowStatus = "ADJUSTED"
)

var escrowTransitions = map[EscrowStatus]map[EscrowStatus]bool{
	EscrowActive:   {EscrowReleased: true, EscrowRefunded: true, EscrowDisputed: true},
	EscrowDisputed: {EscrowAdjusted: true, EscrowReleased: true, EscrowRefunded: true},
}

// CanTransitionEscrow reports whether from → to is an allowed edge of
// the escrow state machine of spec §4.3. RELEASED/REFUNDED/ADJUSTED
// are terminal — absent from the map, so every target from them is
// rejected.
func CanTransitionEscrow(from, to EscrowStatus) bool {
	return escrowTransitions[from][to]
}

// EscrowHold is the platform-held balance for one paid order.
type EscrowHold struct {
	ID            uuid.UUID    `json:"id"`
	OrderID       uuid.UUID    `json:"orderId"`
	BuyerWalletID uuid.UUID    `json:"buyerWalletId"`
	SellerWalletID uuid.UUID   `json:"sellerWalletId"`
	AmountMinor   money.Minor  `json:"amountMinor"`
	Status        EscrowStatus `json:"status"`
	TimeoutAt     time.Time    `json:"timeoutAt"`
	ResolvedAt    *time.Time   `json:"resolvedAt,omitempty"`
	TimeoutJobID  *string      `json:"timeoutJobId,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Actor identifies who is requesting a state transition.
type Actor string

const (
	ActorSystem Actor = "SYSTEM"
)

// Action is one of the operations gated by spec §4.3's authorization
// table.
type Action string

const (
	ActionRelease Action = "RELEASE"
	ActionRefund  Action = "REFUND"
	ActionDispute Action = "DISPUTE"
	ActionResolve Action = "RESOLVE"
)

// DisputeStatus parallels the escrow machine; only an arbitrator can
// drive it to a terminal state (spec §4.3 RESOLVE).
type DisputeStatus string

const (
	DisputeOpen   DisputeStatus = "OPEN"
	DisputeClosed DisputeStatus = "CLOSED"
)

// DisputeResolution records which side(s) prevailed, for reporting.
type DisputeResolution string

const (
	ResolutionBuyerFavor  DisputeResolution = "BUYER_FAVOR"
	ResolutionSellerFavor DisputeResolution = "SELLER_FAVOR"
	ResolutionSplit       DisputeResolution = "SPLIT"
)

// Dispute is the arbitration record opened against an escrow.
type Dispute struct {
	ID           uuid.UUID          `json:"id"`
	EscrowID     uuid.UUID          `json:"escrowId"`
	OpenedBy     uuid.UUID          `json:"openedBy"`
	Reason       string             `json:"reason"`
	Status       DisputeStatus      `json:"status"`
	Resolution   *DisputeResolution `json:"resolution,omitempty"`
	ResolverID   *uuid.UUID         `json:"resolverId,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	ClosedAt     *time.Time         `json:"closedAt,omitempty"`
}
