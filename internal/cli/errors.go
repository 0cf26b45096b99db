package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/api"
)

// Exit codes returned by the tasker-inbox binary.
const (
	ExitCodeFailure      = 1
	ExitCodeUsage        = 2
	ExitCodeUnauthorized = 3
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
	// Printed is true when the command already reported the error.
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

func usageError(cmd *cobra.Command, msg string) error {
	return &ExitError{Code: ExitCodeUsage, Err: fmt.Errorf("%s (see %s --help)", msg, cmd.CommandPath())}
}

// backendError maps an api error to an exit code, keeping the server detail
// in front when there is one.
func backendError(op string, err error) error {
	if err == nil {
		return nil
	}
	code := ExitCodeFailure
	if errors.Is(err, api.ErrUnauthorized) {
		code = ExitCodeUnauthorized
	}
	if detail := api.DetailOf(err); detail != "" {
		return &ExitError{Code: code, Err: fmt.Errorf("%s: %s", op, detail)}
	}
	return &ExitError{Code: code, Err: fmt.Errorf("%s: %w", op, err)}
}
