package domain

import "errors"

// ErrNotFound is returned when the requested resource does not exist or does
// not belong to the caller. Ownership misses deliberately look identical to
// missing rows so existence is never leaked across users.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails business rule validation
// (e.g. negative amount, missing required field). Rejected before any
// mutation is issued; never retried.
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrUnavailable is returned when the atomic procedure path is unreachable.
// The ledger falls back to the manual multi-step path exactly once; if that
// also fails the error escalates to ErrOperationFailed.
var ErrUnavailable = errors.New("transient unavailable")

// ErrOperationFailed is the terminal failure after the fallback is exhausted
// or a mutation times out. It triggers the optimistic rollback path and is
// always surfaced to the caller.
// Handlers should map this to HTTP 502 Bad Gateway.
var ErrOperationFailed = errors.New("operation failed")

// ErrDuplicateOperation is returned when a mutation identical to one already
// in flight is issued again (e.g. a double-click). The duplicate is a no-op:
// the first operation's effect applies exactly once.
var ErrDuplicateOperation = errors.New("duplicate operation in flight")
