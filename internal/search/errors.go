package search

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify an error returned by Engine.Search.
var (
	// ErrInvalidRequest reports a request that violates paging or sort constraints.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStoreUnavailable reports a record store failure; the search cannot be answered.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrIndexUnavailable and ErrEmbeddingUnavailable never fail a search. They mark
	// the semantic branch as skipped and the response as degraded.
	ErrIndexUnavailable     = errors.New("semantic index unavailable")
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
)

// DegradedWarning is the generic warning attached to responses without semantic results.
const DegradedWarning = "semantic search is unavailable; showing text matches only"

// Error is a classified search failure. Its message carries the kind and, for invalid
// requests, the reason. The underlying cause is reachable through Unwrap but never printed.
type Error struct {
	Kind   error
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.Error()
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

func invalidRequest(reason string) error {
	return &Error{Kind: ErrInvalidRequest, Reason: reason}
}

func storeUnavailable(cause error) error {
	return &Error{Kind: ErrStoreUnavailable, cause: cause}
}
