package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/core/domain"
)

// Validator wraps go-playground/validator. It also satisfies echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator that reports fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate checks i and reports every failed field in one validation error.
func (ev *Validator) Validate(i any) error {
	if err := ev.v.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return domain.Validation(strings.Join(msgs, "; "))
		}
		return domain.Validation(err.Error())
	}
	return nil
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return field + " required"
	case "email":
		return field + " not valid"
	case "alphanum":
		return field + " should be alphanumeric a-z and 0-9"
	case "numeric":
		return field + " should be numeric"
	case "min":
		return fmt.Sprintf("%s should be at least %s char length", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s should be at most %s char length", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s and %s do not match", strings.ToLower(fe.Param()[:1])+fe.Param()[1:], field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// decode returns a stage that binds the request body into a fresh T,
// validates it and hands it on as the working value.
func decode[T any](v *Validator) pipeline.Stage {
	return func(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
		req := new(T)
		if err := c.Request.Bind(req); err != nil {
			next(domain.Validation("invalid payload"))
			return
		}
		if err := v.Validate(req); err != nil {
			next(err)
			return
		}
		next(req)
	}
}
