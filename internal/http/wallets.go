package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/escrowcore/ledgercore/internal/wallet"
)

// WalletHandlers implements the peripheral wallet-query surface of
// spec §6's "others are peripheral" note.
type WalletHandlers struct {
	Wallets wallet.Repository
}

// Mine handles GET /wallets/me, returning the caller's own wallet
// snapshot (balance, locked, available, version).
func (h *WalletHandlers) Mine(c *fiber.Ctx) error {
	actor := ActorFromContext(c)

	w, err := h.Wallets.FindByUserID(c.UserContext(), actor.UserID)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(w)
}
