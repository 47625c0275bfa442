// Package apperrors defines the sentinel errors shared across the workflow
// engine. Handlers match them with errors.Is and translate them into stable
// HTTP error codes.
package apperrors

import "errors"

var (
	// ErrValidation marks malformed input the caller can correct locally
	// (missing proof on submit, missing reason on reject, payment-schedule
	// sum mismatch). Never retried automatically.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated marks a request with no known caller. It surfaces
	// to the client the same way as ErrForbidden but is logged distinctly.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden marks a known caller lacking role or ownership for the
	// operation. Never retried.
	ErrForbidden = errors.New("forbidden")

	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a state machine rejecting the requested
	// move (e.g. approving an already-approved milestone). Distinct from
	// ErrValidation so clients can tell "this was already done".
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict marks a concurrent mutation that lost an optimistic-lock
	// race. The caller should re-fetch and retry with fresh state.
	ErrConflict = errors.New("conflict")

	// ErrImmutableRecord marks a mutation attempt against a fully executed
	// contract or scope of work.
	ErrImmutableRecord = errors.New("record is immutable")

	// ErrUnavailable marks a downstream dependency failure (storage,
	// generator). Safe to retry with backoff.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrLedgerIntegrity marks a fatal reconciliation failure: the stored
	// paid amount no longer matches the sum of approved milestone amounts.
	// Further payment releases on the affected project are halted until an
	// operator intervenes.
	ErrLedgerIntegrity = errors.New("ledger integrity violation")
)
