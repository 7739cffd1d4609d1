package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/escrow"
)

// OrderHandlers implements spec §6's order/escrow/dispute endpoints.
type OrderHandlers struct {
	Escrow *escrow.Service
}

// createOrderRequest is the wire shape of POST /orders.
type createOrderRequest struct {
	CounterpartyID    uuid.UUID `json:"counterpartyId" validate:"required"`
	InitiatorRole     string    `json:"initiatorRole" validate:"required,oneof=BUYER SELLER"`
	Amount            string    `json:"amount" validate:"required"`
	PlatformFee       string    `json:"platformFee"`
	FeePayer          string    `json:"feePayer" validate:"required,oneof=BUYER SELLER"`
	HoldingPeriodDays int       `json:"holdingPeriodDays" validate:"required,min=1"`
}

func (h *OrderHandlers) Create(body any, c *fiber.Ctx) error {
	req := body.(*createOrderRequest)
	actor := ActorFromContext(c)

	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		return WithError(c, err)
	}

	fee, err := parseOptionalAmountMinor(req.PlatformFee)
	if err != nil {
		return WithError(c, err)
	}

	order, err := h.Escrow.CreateOrder(c.UserContext(), escrow.CreateOrderInput{
		InitiatorID:       actor.UserID,
		CounterpartyID:    req.CounterpartyID,
		InitiatorRole:     domain.Role(req.InitiatorRole),
		AmountMinor:       amount,
		PlatformFeeMinor:  fee,
		FeePayer:          domain.Role(req.FeePayer),
		HoldingPeriodDays: req.HoldingPeriodDays,
	})
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

func orderIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.UUID{}, errValidation("path parameter id is not a valid UUID")
	}

	return id, nil
}

// Accept handles POST /orders/{id}/accept.
func (h *OrderHandlers) Accept(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return WithError(c, err)
	}

	actor := ActorFromContext(c)

	order, err := h.Escrow.AcceptOrder(c.UserContext(), id, actor.UserID)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(order)
}

// payOrderRequest is the wire shape of POST /orders/{id}/pay. The
// payment method is accepted for the provider-facing audit trail but
// does not change C3's PayOrder contract, which only needs the order
// and an idempotency key.
type payOrderRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

func (h *OrderHandlers) Pay(body any, c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return WithError(c, err)
	}

	idempotencyKey := c.Get(idempotencyKeyHeader)

	hold, err := h.Escrow.PayOrder(c.UserContext(), id, idempotencyKey)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(hold)
}

// ConfirmReceipt handles POST /orders/{id}/confirm-receipt, C3.release.
func (h *OrderHandlers) ConfirmReceipt(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return WithError(c, err)
	}

	actor := ActorFromContext(c)
	idempotencyKey := c.Get(idempotencyKeyHeader)

	if err := h.Escrow.Release(c.UserContext(), id, domain.Actor(""), actor.UserID, idempotencyKey); err != nil {
		return WithError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

// disputeRequest is the wire shape of POST /orders/{id}/dispute.
type disputeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *OrderHandlers) Dispute(body any, c *fiber.Ctx) error {
	req := body.(*disputeRequest)

	id, err := orderIDParam(c)
	if err != nil {
		return WithError(c, err)
	}

	actor := ActorFromContext(c)

	dispute, err := h.Escrow.Dispute(c.UserContext(), id, actor.UserID, req.Reason)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(dispute)
}
