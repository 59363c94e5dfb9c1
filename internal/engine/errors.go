package engine

import "errors"

// Error taxonomy surfaced to callers. Repo lookups return repo.ErrNotFound;
// everything else recoverable falls under one of these two; ErrInvariant
// marks a programming defect detected after a recompute, and the engine
// refuses to persist rather than silently correct.
var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrValidation       = errors.New("validation failed")
	ErrInvariant        = errors.New("computation invariant violation")
)
