package interfaces

import (
	"context"

	"github.com/google/uuid"

	"github.com/rentedmail/wallet-ledger-service/internal/models"
)

// TransactionLog is the append-only store of ledger records. Records are
// never updated or deleted once written.
type TransactionLog interface {
	// AppendSingle durably writes one credit or debit record.
	AppendSingle(ctx context.Context, record *models.TransactionRecord) error

	// AppendLinkedPair durably writes both legs of a transfer, or
	// neither. Backends with multi-record transactions implement this as
	// one atomic write.
	AppendLinkedPair(ctx context.Context, out, in *models.TransactionRecord) error

	// FindByID returns one record, or models.ErrTransactionNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*models.TransactionRecord, error)

	// FindByAccount returns the account's records newest first,
	// windowed by offset/limit.
	FindByAccount(ctx context.Context, accountID uuid.UUID, offset, limit int) ([]models.TransactionRecord, error)

	// CountByAccount returns the total number of records for the account.
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}
