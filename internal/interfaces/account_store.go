package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rentedmail/wallet-ledger-service/internal/models"
)

// AccountStore holds account balances and versions. The ledger engine is
// the only writer; every balance mutation goes through UpdateBalance.
type AccountStore interface {
	// Create persists a new account. Fails if the id already exists.
	Create(ctx context.Context, account *models.Account) error

	// Get returns the current account state, or models.ErrAccountNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)

	// UpdateBalance applies a conditional write: the new balance is
	// accepted only if the stored version still equals expectedVersion,
	// in which case the version is bumped and the fresh account state
	// returned. A lost race surfaces models.ErrVersionConflict and the
	// caller must retry from a fresh read.
	UpdateBalance(ctx context.Context, id uuid.UUID, expectedVersion, newBalance int64, updatedAt time.Time) (*models.Account, error)
}
