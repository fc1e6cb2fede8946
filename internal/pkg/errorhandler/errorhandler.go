// Package errorhandler turns a command's error into a stable error code and process exit code.
package errorhandler

import (
	"context"
	"errors"

	"github.com/khatabook/creditbook/internal/pkg/logger"
)

// Exit codes shared by every command.
const (
	ExitOK       = 0
	ExitInternal = 1
	ExitInvalid  = 2
	ExitNotFound = 3
	ExitConflict = 4
)

// Rule maps every error matching Target (via errors.Is) to Code and Exit.
type Rule struct {
	Target error
	Code   string
	Exit   int
}

// Fielder is implemented by validation errors that carry per-field messages.
type Fielder interface {
	FieldErrors() map[string]string
}

// Classify returns the first rule err matches, or INTERNAL_ERROR.
func Classify(err error, rules []Rule) (code string, exit int) {
	if err == nil {
		return "", ExitOK
	}
	for _, r := range rules {
		if errors.Is(err, r.Target) {
			return r.Code, r.Exit
		}
	}
	return "INTERNAL_ERROR", ExitInternal
}

// HandleError logs err with its classification and returns the exit code to use.
// Internal errors are logged at error level; expected failures only at debug.
func HandleError(ctx context.Context, err error, rules []Rule) int {
	code, exit := Classify(err, rules)
	if exit == ExitOK {
		return exit
	}

	l := logger.FromContext(ctx)
	event := l.Debug()
	if exit == ExitInternal {
		event = l.Error()
	}
	event = event.Err(err).Str("error_code", code).Int("exit_code", exit)

	var fe Fielder
	if errors.As(err, &fe) {
		event = event.Interface("error_details", fe.FieldErrors())
	}
	event.Msg("Command failed")
	return exit
}
