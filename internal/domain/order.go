package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/money"
)

// OrderStatus is the order state machine of spec §4.3.
type OrderStatus string

const (
	OrderPendingAccept OrderStatus = "PENDING_ACCEPT"
	OrderAccepted      OrderStatus = "ACCEPTED"
	OrderPaid          OrderStatus = "PAID"
	OrderCompleted     OrderStatus = "COMPLETED"
	OrderCancelled     OrderStatus = "CANCELLED"
	OrderDisputed      OrderStatus = "DISPUTED"
	OrderRefunded      OrderStatus = "REFUNDED"
)

// orderTransitions enumerates the allowed targets for each order
// status; any target not listed here is INVALID_STATE_TRANSITION.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPendingAccept: {OrderAccepted: true, OrderCancelled: true},
	OrderAccepted:      {OrderPaid: true, OrderCancelled: true},
	OrderPaid:          {OrderCompleted: true, OrderRefunded: true, OrderDisputed: true},
	OrderDisputed:      {OrderCompleted: true, OrderRefunded: true},
}

// CanTransitionOrder reports whether from → to is an allowed edge of
// the order state machine of spec §4.3.
func CanTransitionOrder(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// Role distinguishes the two parties to an order.
type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
)

// Order is the core commercial record.
type Order struct {
	ID                uuid.UUID   `json:"id"`
	InitiatorID       uuid.UUID   `json:"initiatorId"`
	CounterpartyID    uuid.UUID   `json:"counterpartyId"`
	InitiatorRole     Role        `json:"initiatorRole"`
	AmountMinor       money.Minor `json:"amountMinor"`
	PlatformFeeMinor  money.Minor `json:"platformFeeMinor"`
	FeePayer          Role        `json:"feePayer"`
	HoldingPeriodDays int         `json:"holdingPeriodDays"`
	Status            OrderStatus `json:"status"`
	InviteToken       string      `json:"inviteToken,omitempty"`
	InviteExpiresAt   *time.Time  `json:"inviteExpiresAt,omitempty"`
	AutoReleaseAt     *time.Time  `json:"autoReleaseAt,omitempty"`
	AcceptedAt        *time.Time  `json:"acceptedAt,omitempty"`
	PaidAt            *time.Time  `json:"paidAt,omitempty"`
	CompletedAt       *time.Time  `json:"completedAt,omitempty"`
	CancelledAt       *time.Time  `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// BuyerID and SellerID resolve initiator/counterparty to their fixed
// commercial roles regardless of who initiated the order.
func (o Order) BuyerID() uuid.UUID {
	if o.InitiatorRole == RoleBuyer {
		return o.InitiatorID
	}

	return o.CounterpartyID
}

func (o Order) SellerID() uuid.UUID {
	if o.InitiatorRole == RoleSeller {
		return o.InitiatorID
	}

	return o.CounterpartyID
}
