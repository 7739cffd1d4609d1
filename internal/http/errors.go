package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/escrowcore/ledgercore/internal/apperrors"
)

// responseError is the JSON body of every non-2xx response, mirroring
// the teacher's ResponseError shape.
type responseError struct {
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func errUnauthorized(message string) error {
	return apperrors.UnauthorizedError{Message: message}
}

func errForbidden(message string) error {
	return apperrors.ForbiddenError{Message: message}
}

func errValidation(message string) error {
	return apperrors.ValidationError{Message: message}
}

func errValidationDetails(message string, details map[string]any) error {
	return apperrors.ValidationError{Message: message, Details: details}
}

// WithError maps a service-layer error onto spec §7's status-code
// table, following the teacher's WithError type switch.
func WithError(c *fiber.Ctx, err error) error {
	switch e := err.(type) {
	case apperrors.ValidationError:
		return c.Status(fiber.StatusBadRequest).JSON(responseError{Code: e.Code, Message: e.Message, Details: e.Details})
	case apperrors.UnauthorizedError:
		return c.Status(fiber.StatusUnauthorized).JSON(responseError{Code: e.Code, Message: e.Message})
	case apperrors.ForbiddenError:
		return c.Status(fiber.StatusForbidden).JSON(responseError{Code: e.Code, Message: e.Message})
	case apperrors.NotFoundError:
		return c.Status(fiber.StatusNotFound).JSON(responseError{Code: e.Code, Message: e.Error()})
	case apperrors.ConflictError:
		return c.Status(fiber.StatusConflict).JSON(responseError{Code: e.Code, Message: e.Message, Details: e.Details})
	case apperrors.IntegrityError:
		// Fatal per spec §7: full detail stays in the server log, the
		// client gets the sanitized generic message.
		return c.Status(fiber.StatusInternalServerError).JSON(responseError{Message: apperrors.GenericInternalMessage})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(responseError{Message: apperrors.GenericInternalMessage})
	}
}
