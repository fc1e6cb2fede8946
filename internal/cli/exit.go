package cli

import (
	"context"

	"github.com/khatabook/creditbook/internal/domain/account"
	"github.com/khatabook/creditbook/internal/domain/credit"
	"github.com/khatabook/creditbook/internal/pkg/errorhandler"
	"github.com/khatabook/creditbook/internal/pkg/storage"
)

// Order matters: ErrEmailTaken wraps ErrValidation and must match first.
var exitRules = []errorhandler.Rule{
	{Target: account.ErrEmailTaken, Code: "EMAIL_TAKEN", Exit: errorhandler.ExitConflict},
	{Target: account.ErrInvalidLimit, Code: "INVALID_LIMIT", Exit: errorhandler.ExitInvalid},
	{Target: account.ErrValidation, Code: "VALIDATION_ERROR", Exit: errorhandler.ExitInvalid},
	{Target: account.ErrLimitExceeded, Code: "LIMIT_EXCEEDED", Exit: errorhandler.ExitConflict},
	{Target: credit.ErrAlreadyPaid, Code: "ALREADY_PAID", Exit: errorhandler.ExitConflict},
	{Target: account.ErrNotFound, Code: "ACCOUNT_NOT_FOUND", Exit: errorhandler.ExitNotFound},
	{Target: credit.ErrNotFound, Code: "CREDIT_NOT_FOUND", Exit: errorhandler.ExitNotFound},
	{Target: storage.ErrNotFound, Code: "BACKUP_NOT_FOUND", Exit: errorhandler.ExitNotFound},
	{Target: errUsage, Code: "USAGE", Exit: errorhandler.ExitInvalid},
}

// ExitCode logs err and returns the process exit code for it.
func ExitCode(ctx context.Context, err error) int {
	return errorhandler.HandleError(ctx, err, exitRules)
}
