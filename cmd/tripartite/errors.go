package main

import (
	"errors"
	"fmt"

	"github.com/SuperInstance/tripartite/internal/knowledge"
	"github.com/SuperInstance/tripartite/internal/privacy"
	"github.com/SuperInstance/tripartite/internal/router"
)

// cmdError pairs a user-visible failure with the exit code it must produce.
// On any terminal error the user sees a single-line category + one-line
// explanation + this exit code (verbose detail, when requested, is left to
// the error's own %v rendering — never secrets or original redacted values).
type cmdError struct {
	category string
	code     int
	cause    error
}

func (e *cmdError) Error() string {
	return fmt.Sprintf("%s: %v", e.category, e.cause)
}

func (e *cmdError) Unwrap() error { return e.cause }

func userError(cause error) error {
	return &cmdError{category: "user error", code: ExitUserError, cause: cause}
}

func internalError(cause error) error {
	return &cmdError{category: "internal error", code: ExitInternalError, cause: cause}
}

func remoteUnavailableError(cause error) error {
	return &cmdError{category: "remote unavailable", code: ExitRemoteUnavailable, cause: cause}
}

func budgetExceededError(cause error) error {
	return &cmdError{category: "budget exceeded", code: ExitBudgetExceeded, cause: cause}
}

// classifyError maps an error from the router/knowledge/privacy taxonomies
// (spec §7) to the category shown to the user, wrapping it as a cmdError if
// it isn't already one so exitCodeFor has something to key off.
func classifyError(err error) error {
	var ce *cmdError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, router.ErrRemoteUnavailable), errors.Is(err, router.ErrTimeout):
		return remoteUnavailableError(err)
	case errors.Is(err, router.ErrBudgetExceeded):
		return budgetExceededError(err)
	case errors.Is(err, router.ErrUnauthorized):
		return userError(err)
	case errors.Is(err, knowledge.ErrDocumentNotFound), errors.Is(err, knowledge.ErrDimensionMismatch):
		return userError(err)
	case errors.Is(err, knowledge.ErrBackendUnavailable), errors.Is(err, knowledge.ErrEmbedderFailed):
		return internalError(err)
	case errors.Is(err, privacy.ErrVaultUnavailable), errors.Is(err, privacy.ErrTimeout):
		return internalError(err)
	default:
		return internalError(err)
	}
}

// exitCodeFor returns the process exit code for a (possibly unwrapped) error.
func exitCodeFor(err error) int {
	var ce *cmdError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ExitInternalError
}
