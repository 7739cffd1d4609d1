package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowcore/ledgercore/internal/idempotency"
)

func newIdempotencyTestApp(guard *idempotency.Guard, calls *int32) *fiber.App {
	app := fiber.New()
	auth := NewAuthMiddleware("secret")

	app.Post("/pay", auth.Protect(), RequireIdempotencyKey(guard), func(c *fiber.Ctx) error {
		atomic.AddInt32(calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true})
	})

	return app
}

func signedBearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	claims := &Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}

	return "Bearer " + signToken(t, "secret", claims)
}

func TestRequireIdempotencyKey_RejectsMissingHeader(t *testing.T) {
	guard := idempotency.NewGuard(idempotency.NewInProcessStore())
	var calls int32
	app := newIdempotencyTestApp(guard, &calls)

	userID := uuid.New()

	req := httptest.NewRequest(fiber.MethodPost, "/pay", bytes.NewBufferString(`{}`))
	req.Header.Set(fiber.HeaderAuthorization, signedBearer(t, userID))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRequireIdempotencyKey_ReplaysCachedCompletion(t *testing.T) {
	guard := idempotency.NewGuard(idempotency.NewInProcessStore())
	var calls int32
	app := newIdempotencyTestApp(guard, &calls)

	userID := uuid.New()
	bearer := signedBearer(t, userID)

	makeReq := func() *http.Request {
		req := httptest.NewRequest(fiber.MethodPost, "/pay", bytes.NewBufferString(`{}`))
		req.Header.Set(fiber.HeaderAuthorization, bearer)
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(idempotencyKeyHeader, "key-1")

		return req
	}

	resp1, err := app.Test(makeReq())
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp1.StatusCode)

	resp2, err := app.Test(makeReq())
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp2.StatusCode)

	// The handler only ran once — the second response was replayed
	// from the cached record.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRequireIdempotencyKey_RejectsFingerprintMismatch(t *testing.T) {
	guard := idempotency.NewGuard(idempotency.NewInProcessStore())
	var calls int32
	app := newIdempotencyTestApp(guard, &calls)

	userID := uuid.New()
	bearer := signedBearer(t, userID)

	first := httptest.NewRequest(fiber.MethodPost, "/pay", bytes.NewBufferString(`{"a":1}`))
	first.Header.Set(fiber.HeaderAuthorization, bearer)
	first.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	first.Header.Set(idempotencyKeyHeader, "key-2")

	_, err := app.Test(first)
	require.NoError(t, err)

	second := httptest.NewRequest(fiber.MethodPost, "/pay", bytes.NewBufferString(`{"a":2}`))
	second.Header.Set(fiber.HeaderAuthorization, bearer)
	second.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	second.Header.Set(idempotencyKeyHeader, "key-2")

	resp, err := app.Test(second)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}
