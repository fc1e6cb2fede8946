package account

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation is the root of every input rejection
	ErrValidation = errors.New("validation failed")

	ErrEmailTaken   = fmt.Errorf("%w: email already registered", ErrValidation)
	ErrInvalidLimit = fmt.Errorf("%w: invalid credit limit", ErrValidation)

	ErrNotFound      = errors.New("account not found")
	ErrLimitExceeded = errors.New("credit limit exceeded")
	ErrInternal      = errors.New("internal error")
)

// ValidationError carries per-field messages
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors returns the per-field messages.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
