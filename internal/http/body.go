package http

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var bodyValidator = validator.New()

// DecodeHandlerFunc receives a request already decoded into p by
// WithBody, mirroring the teacher's DecodeHandlerFunc.
type DecodeHandlerFunc func(p any, c *fiber.Ctx) error

// WithBody decodes the request body into a fresh instance of s's type,
// validates it with the go-playground/validator struct tags, and only
// then calls h — grounded on the teacher's WithBody/ValidateStruct,
// ported from validator.v9 to validator/v10.
func WithBody(s any, h DecodeHandlerFunc) fiber.Handler {
	t := reflect.TypeOf(s).Elem()

	return func(c *fiber.Ctx) error {
		instance := reflect.New(t).Interface()

		if len(c.Body()) > 0 {
			if err := c.BodyParser(instance); err != nil {
				return WithError(c, errValidation("malformed request body: "+err.Error()))
			}
		}

		if err := bodyValidator.Struct(instance); err != nil {
			return WithError(c, validationErrorFrom(err))
		}

		return h(instance, c)
	}
}

func validationErrorFrom(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errValidation(err.Error())
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}

	return errValidationDetails("request validation failed", details)
}
