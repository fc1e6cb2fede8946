package notification

import "errors"

var (
	ErrUnknownKind = errors.New("unknown notification kind")
	ErrInternal    = errors.New("internal error")
)
