package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/withdrawal"
)

// WithdrawalHandlers implements spec §6's withdrawal endpoints.
type WithdrawalHandlers struct {
	Withdrawals *withdrawal.Service
}

// createWithdrawalRequest is the wire shape of POST /withdrawals.
type createWithdrawalRequest struct {
	Amount        string    `json:"amount" validate:"required"`
	BankAccountID uuid.UUID `json:"bankAccountId" validate:"required"`
}

func (h *WithdrawalHandlers) Create(body any, c *fiber.Ctx) error {
	req := body.(*createWithdrawalRequest)
	actor := ActorFromContext(c)

	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		return WithError(c, err)
	}

	w, err := h.Withdrawals.CreateWithdrawal(c.UserContext(), withdrawal.CreateInput{
		UserID:         actor.UserID,
		AmountMinor:    amount,
		BankAccountID:  req.BankAccountID,
		IdempotencyKey: c.Get(idempotencyKeyHeader),
	})
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(w)
}

// approveWithdrawalRequest is the wire shape of
// POST /admin/withdrawals/{id}/approve.
type approveWithdrawalRequest struct {
	Notes string `json:"notes"`
}

func (h *WithdrawalHandlers) Approve(body any, c *fiber.Ctx) error {
	req := body.(*approveWithdrawalRequest)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return WithError(c, errValidation("path parameter id is not a valid UUID"))
	}

	actor := ActorFromContext(c)

	w, err := h.Withdrawals.Approve(c.UserContext(), id, actor.UserID, req.Notes)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(w)
}
