package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/escrowcore/ledgercore/internal/idempotency"
)

const idempotencyKeyHeader = "X-Idempotency-Key"

// RequireIdempotencyKey enforces C6 on every money-moving endpoint
// spec §6 marks "Idempotency": it replays a cached terminal outcome
// verbatim, rejects a fingerprint mismatch or an in-flight duplicate,
// and otherwise lets the request through, recording whatever the
// handler produced once it returns.
func RequireIdempotencyKey(guard *idempotency.Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return WithError(c, errValidation("missing "+idempotencyKeyHeader+" header"))
		}

		actor := ActorFromContext(c)
		fingerprint := idempotency.Fingerprint(c.Method(), c.Path(), c.Body(), actor.UserID)

		ctx := c.UserContext()

		decision, rec, err := guard.Begin(ctx, actor.UserID, key, fingerprint)
		if err != nil {
			return WithError(c, err)
		}

		switch decision {
		case idempotency.DecisionCachedCompleted, idempotency.DecisionCachedFailed:
			c.Status(rec.StatusCode)
			return c.Send(rec.Body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		body := c.Response().Body()

		if status >= 500 {
			// A 5xx is not a terminal business outcome — don't poison the
			// cache with it, let the caller retry with the same key.
			return nil
		}

		if status >= 400 {
			return guard.Fail(ctx, actor.UserID, key, fingerprint, status, body)
		}

		return guard.Complete(ctx, actor.UserID, key, fingerprint, status, body)
	}
}
