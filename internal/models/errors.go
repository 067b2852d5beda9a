package models

import (
	"errors"
	"fmt"
)

// Domain errors surfaced by the ledger engine and the stores. Handlers
// map these to HTTP status codes; callers match with errors.Is/As.
var (
	// ErrAccountNotFound means the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound means the referenced transaction does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidAmount means the amount was zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidAccountID means an identifier failed validation at the boundary.
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrSelfTransfer means sender and recipient are the same account.
	ErrSelfTransfer = errors.New("sender and recipient are the same account")

	// ErrVersionConflict is the transient optimistic-lock failure. The
	// engine retries it internally; it never reaches callers directly.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrRetryExhausted means version conflicts persisted past the retry budget.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrTimeout means the operation deadline expired before completion.
	ErrTimeout = errors.New("operation deadline exceeded")

	// ErrIdempotencyInProgress means another call holding the same key is
	// still in flight; the caller should retry after a short delay.
	ErrIdempotencyInProgress = errors.New("operation with this idempotency key is in progress")

	// ErrIdempotencyKeyReuse means a completed key was replayed with
	// materially different parameters.
	ErrIdempotencyKeyReuse = errors.New("idempotency key reused with different parameters")
)

// InsufficientFundsError reports a debit or transfer that would take the
// balance negative, carrying enough context for the caller to act on.
type InsufficientFundsError struct {
	AccountID string
	Current   int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %s: balance %d, requested %d",
		e.AccountID, e.Current, e.Requested)
}

// StorageError wraps an unexpected failure from a backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
