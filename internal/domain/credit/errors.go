package credit

import "errors"

var (
	// ErrNotFound is returned when the credit does not exist or belongs to another account
	ErrNotFound = errors.New("credit not found")

	// ErrAlreadyPaid guards against paying the same credit twice
	ErrAlreadyPaid = errors.New("credit already paid")

	// ErrInvalidAmount is returned when amount is <= 0, has more than 2 decimal places or is too large
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0 with at most 2 decimal places")

	ErrInternal = errors.New("internal error")
)
