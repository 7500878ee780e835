package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidState means the operation is not valid from the order's current
	// status or payment status. Callers should re-fetch the order.
	ErrInvalidState = errors.New("invalid order state")
	// ErrIllegalTransition means the requested status is not reachable through
	// the generic transition entry point.
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrValidation        = errors.New("validation failed")
	ErrMissingReason     = errors.New("rejection reason is required")
	ErrForbidden         = errors.New("forbidden")
	// ErrDuplicateRequest is returned while an identical checkout is in flight.
	ErrDuplicateRequest   = errors.New("duplicate request in progress")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("already exists")
)

// ValidationError describes a single malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidField(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fromValidator converts validator field errors into a ValidationError
// naming the first offending field.
func fromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "required_if":
		return invalidField(field, "is required")
	case "gt", "gte", "min":
		return invalidField(field, "must be at least %s", minParam(fe))
	case "max":
		return invalidField(field, "must be at most %s", fe.Param())
	case "oneof":
		return invalidField(field, "must be one of [%s]", fe.Param())
	case "email":
		return invalidField(field, "must be a valid email address")
	default:
		return invalidField(field, "failed %q validation", fe.Tag())
	}
}

func minParam(fe validator.FieldError) string {
	if fe.Tag() == "gt" {
		return fe.Param() + " exclusive"
	}
	return fe.Param()
}
