package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics the ledger engine publishes to.
const (
	TopicTransactionCompleted = "transaction.completed"
	TopicTransferCompleted    = "transfer.completed"
)

// TransactionCompleted is emitted after a credit or debit is durably
// applied and recorded. Amount is rendered in decimal major units for
// downstream consumers.
type TransactionCompleted struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// TransferCompleted is emitted once both legs of a transfer are durable.
type TransferCompleted struct {
	TransferID  string          `json:"transfer_id"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
