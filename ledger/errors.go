package ledger

import "errors"

// Sentinel errors returned by the registry and the analysis ledger. Callers
// match on these with errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrInvalidPayload indicates a submission with missing or out-of-range
	// numeric fields.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNotFound indicates an unknown (or no longer active, for analysis
	// inputs) handle or analysis identifier.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the caller is neither the entity owner nor a
	// privileged identity. Unauthorized calls never mutate state.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmptyInput indicates an analysis request over zero handles.
	ErrEmptyInput = errors.New("empty input")

	// ErrInsufficientInput indicates a pattern analysis over fewer than two
	// handles.
	ErrInsufficientInput = errors.New("insufficient input")

	// ErrAlreadyCompleted indicates a second completion attempt for an
	// analysis request. The stored result is unchanged.
	ErrAlreadyCompleted = errors.New("analysis already completed")

	// ErrBatchTooLarge indicates a batch submission over the configured
	// maximum. It is raised before any item is submitted.
	ErrBatchTooLarge = errors.New("batch too large")
)
