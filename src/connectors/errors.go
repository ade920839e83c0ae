package connectors

import (
	"errors"
	"fmt"
)

// TerminalError marks an exchange failure that retrying cannot fix:
// rejected orders, invalid symbols, filter violations. The execution
// worker fails the job immediately without touching any ledger.
type TerminalError struct {
	Code    string
	Message string
}

func (e *TerminalError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange rejected order [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("exchange rejected order: %s", e.Message)
}

// NewTerminalError builds a terminal exchange error.
func NewTerminalError(code, message string) *TerminalError {
	return &TerminalError{Code: code, Message: message}
}

// IsTerminal reports whether err is a non-retryable exchange rejection.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}
