package handlers

import (
	"errors"
	"strings"

	"github.com/imamik/lhctl/internal/longhorn"
	"github.com/imamik/lhctl/internal/ui/prompt"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ErrConflictFound is returned by the conflicts command when the installed
// components disagree on the Longhorn version.
var ErrConflictFound = errors.New("longhorn version conflict detected")

// UsageError marks invalid input: bad arguments, flags or configuration.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code. A declined
// confirmation is a clean exit.
func ExitCode(err error) int {
	var usageErr *UsageError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, longhorn.ErrUserCancelled):
		return ExitOK
	case errors.As(err, &usageErr),
		errors.Is(err, longhorn.ErrInvalidVersionFormat),
		errors.Is(err, prompt.ErrNotInteractive),
		isCobraUsageError(err):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// isCobraUsageError recognizes the errors cobra produces for unknown
// commands and flags before any RunE is reached.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "flag needs an argument", "invalid argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
