package apperrors

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// responseError is the JSON envelope returned to clients, mirroring the
// teacher's commonHTTP.ResponseError.
type responseError struct {
	Code    string         `json:"code,omitempty"`
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WithError maps a typed business error to its spec §7 HTTP status and
// body. Anything not in the taxonomy is generalized to a 500 with
// GenericInternalMessage — integrity errors never leak internals.
func WithError(c *fiber.Ctx, err error) error {
	var (
		vErr ValidationError
		uErr UnauthorizedError
		fErr ForbiddenError
		nErr NotFoundError
		cErr ConflictError
		iErr IntegrityError
	)

	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(responseError{
			Code: vErr.Code, Title: vErr.Title, Message: vErr.Message, Details: vErr.Details,
		})
	case errors.As(err, &uErr):
		return c.Status(fiber.StatusUnauthorized).JSON(responseError{
			Code: uErr.Code, Title: uErr.Title, Message: uErr.Message,
		})
	case errors.As(err, &fErr):
		return c.Status(fiber.StatusForbidden).JSON(responseError{
			Code: fErr.Code, Title: fErr.Title, Message: fErr.Message,
		})
	case errors.As(err, &nErr):
		return c.Status(fiber.StatusNotFound).JSON(responseError{
			Code: nErr.Code, Message: nErr.Error(),
		})
	case errors.As(err, &cErr):
		return c.Status(fiber.StatusConflict).JSON(responseError{
			Code: cErr.Code, Title: cErr.Title, Message: cErr.Message, Details: cErr.Details,
		})
	case errors.As(err, &iErr):
		// Integrity errors are critical: callers never see the detail.
		return c.Status(fiber.StatusInternalServerError).JSON(responseError{
			Code: iErr.Code, Message: GenericInternalMessage,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(responseError{
			Message: GenericInternalMessage,
		})
	}
}
