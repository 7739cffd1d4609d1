package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/mlog"
)

const headerCorrelationID = "X-Correlation-Id"

// WithCORS enables cross-origin requests, mirroring the teacher's
// WithCORS default policy.
func WithCORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "POST, GET, OPTIONS, PUT, PATCH, DELETE",
		AllowHeaders:     "Accept, Content-Type, Authorization, X-Idempotency-Key, X-MFA-Code, " + headerCorrelationID,
		AllowCredentials: false,
	})
}

// WithCorrelationID stamps every request/response pair with a
// correlation id, generating one when the caller didn't supply it —
// grounded on the teacher's WithCorrelationID.
func WithCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := c.Get(headerCorrelationID)
		if cid == "" {
			cid = uuid.NewString()
		}

		c.Set(headerCorrelationID, cid)
		c.Request().Header.Set(headerCorrelationID, cid)

		return c.Next()
	}
}

// WithHTTPLogging attaches a request-scoped logger carrying the
// correlation id to the request context, and logs method/path/status/
// latency on completion — grounded on the teacher's WithHTTPLogging,
// simplified from Apache CLF to a single structured line since this
// service has no operator tooling parsing CLF.
func WithHTTPLogging(base mlog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}

		start := time.Now()
		cid := c.Get(headerCorrelationID)

		logger := base.WithFields("correlationId", cid)
		ctx := mlog.ContextWithLogger(c.UserContext(), logger)
		c.SetUserContext(ctx)

		err := c.Next()

		logger.Infof("%s %s -> %d (%s)", c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start))

		return err
	}
}
