package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return signed
}

func newTestApp(secret string, protected fiber.Handler) *fiber.App {
	app := fiber.New()
	auth := NewAuthMiddleware(secret)
	app.Get("/protected", auth.Protect(), protected)

	return app
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	app := newTestApp("secret", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware_RejectsWrongSecret(t *testing.T) {
	app := newTestApp("secret", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	claims := &Claims{
		UserID:           uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token := signToken(t, "wrong-secret", claims)

	req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	userID := uuid.New()

	app := newTestApp("secret", func(c *fiber.Ctx) error {
		actor := ActorFromContext(c)
		assert.Equal(t, userID, actor.UserID)

		return c.SendStatus(fiber.StatusOK)
	})

	claims := &Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token := signToken(t, "secret", claims)

	req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthMiddleware_RejectsExpiredToken(t *testing.T) {
	app := newTestApp("secret", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	claims := &Claims{
		UserID:           uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	}
	token := signToken(t, "secret", claims)

	req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAdmin_RejectsNonAdmin(t *testing.T) {
	app := fiber.New()
	auth := NewAuthMiddleware("secret")
	app.Get("/admin", auth.Protect(), RequireAdmin(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	claims := &Claims{
		UserID: uuid.New(), IsAdmin: false,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token := signToken(t, "secret", claims)

	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireAdmin_AcceptsAdmin(t *testing.T) {
	app := fiber.New()
	auth := NewAuthMiddleware("secret")
	app.Get("/admin", auth.Protect(), RequireAdmin(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	claims := &Claims{
		UserID: uuid.New(), IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token := signToken(t, "secret", claims)

	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
