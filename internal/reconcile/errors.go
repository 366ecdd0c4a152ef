package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks records or inputs that failed structural checks.
	ErrValidation = errors.New("validation error")
	// ErrSourceUnavailable marks a source fetch failure after retries.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrIntegrity marks a post-run consistency check failure.
	ErrIntegrity = errors.New("integrity error")
	// ErrLocked means another run already holds the reconciliation lock.
	ErrLocked = errors.New("reconciliation already running")
)

// Wrap tags an error with a sentinel marker and page/operation context so
// callers can classify failures with errors.Is.
func Wrap(marker error, pageKey, operation string, err error) error {
	detail := buildDetail(pageKey, operation)
	if marker == nil {
		marker = ErrSourceUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(pageKey, operation string) string {
	parts := make([]string, 0, 2)
	if pageKey = strings.TrimSpace(pageKey); pageKey != "" {
		parts = append(parts, pageKey)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "reconcile failure"
	}
	return strings.Join(parts, ": ")
}
