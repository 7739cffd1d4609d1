package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/escrowcore/ledgercore/internal/idempotency"
	"github.com/escrowcore/ledgercore/internal/mlog"
)

// Handlers bundles every entity handler group NewRouter wires into the
// app, mirroring the teacher's NewRouter(lg, cc, ah, ph, lh, ...) shape.
type Handlers struct {
	Orders      *OrderHandlers
	Withdrawals *WithdrawalHandlers
	Webhooks    *WebhookHandlers
	Wallets     *WalletHandlers
	Users       *UserHandlers
}

// NewRouter builds the fiber.App, wiring the middleware chain (CORS,
// correlation id, logging, auth, idempotency) the way the teacher's
// NewRouter does, then every handler of spec §6's HTTP surface plus
// its peripheral wallet/user registration routes.
func NewRouter(lg mlog.Logger, jwtSecret, mfaKey string, guard *idempotency.Guard, h *Handlers) *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	f.Use(WithCORS())
	f.Use(WithCorrelationID())
	f.Use(WithHTTPLogging(lg))

	auth := NewAuthMiddleware(jwtSecret)
	idem := RequireIdempotencyKey(guard)

	// Orders / escrow / disputes.
	f.Post("/orders", auth.Protect(), idem, WithBody(new(createOrderRequest), h.Orders.Create))
	f.Post("/orders/:id/accept", auth.Protect(), h.Orders.Accept)
	f.Post("/orders/:id/pay", auth.Protect(), idem, WithBody(new(payOrderRequest), h.Orders.Pay))
	f.Post("/orders/:id/confirm-receipt", auth.Protect(), idem, h.Orders.ConfirmReceipt)
	f.Post("/orders/:id/dispute", auth.Protect(), WithBody(new(disputeRequest), h.Orders.Dispute))

	// Withdrawals.
	f.Post("/withdrawals", auth.Protect(), idem, WithBody(new(createWithdrawalRequest), h.Withdrawals.Create))
	f.Post("/admin/withdrawals/:id/approve", auth.Protect(), RequireAdmin(), RequireMFA(mfaKey),
		WithBody(new(approveWithdrawalRequest), h.Withdrawals.Approve))

	// Webhooks — provider-specific signature, never behind auth/idempotency.
	f.Post("/webhooks/:provider/notification", h.Webhooks.Notification)

	// Wallet query / user registration — peripheral per spec §6.
	f.Get("/wallets/me", auth.Protect(), h.Wallets.Mine)
	f.Post("/users", WithBody(new(registerUserRequest), h.Users.Register))
	f.Post("/users/:id/bank-accounts", auth.Protect(), WithBody(new(addBankAccountRequest), h.Users.AddBankAccount))

	f.Get("/health", Ping)

	return f
}

// Ping answers the liveness probe, mirroring the teacher's lib.Ping.
func Ping(c *fiber.Ctx) error {
	return c.SendString("healthy")
}
