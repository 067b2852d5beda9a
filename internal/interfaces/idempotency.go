package interfaces

import (
	"context"

	"github.com/rentedmail/wallet-ledger-service/internal/models"
)

// IdempotencyTracker maps caller-supplied keys to completed operation
// results so retried requests are not applied twice. Keys are scoped per
// operation type before they reach the tracker ("credit:k1" and
// "transfer:k1" are distinct claims).
type IdempotencyTracker interface {
	// Begin atomically claims the key. Outcomes:
	//   (nil, nil)        - key reserved, the operation should execute.
	//   (result, nil)     - a prior call completed; return its result verbatim.
	//   ErrIdempotencyInProgress - another call holds the key mid-flight.
	//   ErrIdempotencyKeyReuse   - completed key replayed with a different
	//                              parameter fingerprint.
	Begin(ctx context.Context, key, fingerprint string) (*models.OperationResult, error)

	// Complete stores the final result once the operation durably succeeded.
	Complete(ctx context.Context, key string, result *models.OperationResult) error

	// Abort releases a reserved key after the operation failed, so a
	// later retry can claim it again.
	Abort(ctx context.Context, key string) error
}
