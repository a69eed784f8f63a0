package query

import (
	"errors"
	"fmt"
)

// ErrNoPrimaryKey is returned when an entity schema is built without a primary key.
var ErrNoPrimaryKey = errors.New("query: entity has no primary key column")

// ValidationError reports a malformed request: a bad filter value shape, a
// suspicious field name or an unknown boolean literal. It maps to HTTP 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid column '%s': %s", e.Field, e.Message)
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned by lookups by identifier that match no row. It maps to HTTP 404.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.Entity == "" {
		return "entry not found"
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
