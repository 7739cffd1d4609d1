package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/adapters/postgres/user"
	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/wallet"
)

// UserHandlers implements the peripheral identity/bank-account surface
// of spec §6's "others are peripheral" note — registration is in
// scope because spec §3 ties exactly one Wallet's creation to it
// ("created once at user registration").
type UserHandlers struct {
	Users        *user.Repository
	BankAccounts *user.BankAccountRepository
	Wallets      wallet.Repository
}

// registerUserRequest is the wire shape of POST /users.
type registerUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

// Register handles POST /users: creates the identity row and its
// exactly-one Wallet in the same onboarding call.
func (h *UserHandlers) Register(body any, c *fiber.Ctx) error {
	req := body.(*registerUserRequest)
	now := time.Now().UTC()

	u := &domain.User{
		ID:        uuid.New(),
		Email:     req.Email,
		Phone:     req.Phone,
		KYCTier:   domain.KYCNone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Users.Create(c.UserContext(), u); err != nil {
		return WithError(c, err)
	}

	w := &domain.Wallet{
		ID:        uuid.New(),
		UserID:    u.ID,
		Currency:  req.Currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Wallets.Create(c.UserContext(), w); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(u)
}

// addBankAccountRequest is the wire shape of POST /users/{id}/bank-accounts.
type addBankAccountRequest struct {
	BankCode  string `json:"bankCode" validate:"required"`
	AccountNo string `json:"accountNo" validate:"required"`
}

// AddBankAccount handles POST /users/{id}/bank-accounts.
func (h *UserHandlers) AddBankAccount(body any, c *fiber.Ctx) error {
	req := body.(*addBankAccountRequest)

	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return WithError(c, errValidation("path parameter id is not a valid UUID"))
	}

	actor := ActorFromContext(c)
	if actor.UserID != userID {
		return WithError(c, errForbidden("cannot register a bank account for another user"))
	}

	b := &domain.BankAccount{
		ID:        uuid.New(),
		UserID:    userID,
		BankCode:  req.BankCode,
		AccountNo: req.AccountNo,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.BankAccounts.Create(c.UserContext(), b); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(b)
}
