package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType tags a ledger record with the movement it represents.
type TransactionType string

const (
	TransactionTypeCredit      TransactionType = "CREDIT"
	TransactionTypeDebit       TransactionType = "DEBIT"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
)

// Signed returns the amount with the sign this type contributes to a
// balance: credits and transfer-ins positive, debits and transfer-outs
// negative. Used by the reconciliation check.
func (t TransactionType) Signed(amount int64) int64 {
	switch t {
	case TransactionTypeDebit, TransactionTypeTransferOut:
		return -amount
	default:
		return amount
	}
}

// TransactionRecord is one immutable ledger entry. Records are never
// updated or deleted after they are appended.
//
// CounterpartyAccount, LinkedTransactionID and TransferID are set only
// on the two legs of a transfer; the constructors below are the only way
// records are built, so credit/debit records never carry them.
type TransactionRecord struct {
	ID                  uuid.UUID       `json:"id"`
	AccountID           uuid.UUID       `json:"account_id"`
	Type                TransactionType `json:"type"`
	Amount              int64           `json:"amount"`
	Description         string          `json:"description"`
	CounterpartyAccount *uuid.UUID      `json:"counterparty_account_id,omitempty"`
	LinkedTransactionID *uuid.UUID      `json:"linked_transaction_id,omitempty"`
	TransferID          *uuid.UUID      `json:"transfer_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	IdempotencyKey      string          `json:"idempotency_key,omitempty"`
}

// NewCreditRecord builds the record for a completed credit.
func NewCreditRecord(accountID uuid.UUID, amount int64, description, idempotencyKey string) *TransactionRecord {
	return &TransactionRecord{
		ID:             uuid.New(),
		AccountID:      accountID,
		Type:           TransactionTypeCredit,
		Amount:         amount,
		Description:    description,
		CreatedAt:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

// NewDebitRecord builds the record for a completed debit.
func NewDebitRecord(accountID uuid.UUID, amount int64, description, idempotencyKey string) *TransactionRecord {
	return &TransactionRecord{
		ID:             uuid.New(),
		AccountID:      accountID,
		Type:           TransactionTypeDebit,
		Amount:         amount,
		Description:    description,
		CreatedAt:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

// NewTransferPair builds the two legs of a transfer, mutually linked and
// stamped with the same transfer id. Both legs must be appended together
// (TransactionLog.AppendLinkedPair) or not at all.
func NewTransferPair(transferID, senderID, recipientID uuid.UUID, amount int64, description, idempotencyKey string) (out, in *TransactionRecord) {
	now := time.Now().UTC()
	out = &TransactionRecord{
		ID:                  uuid.New(),
		AccountID:           senderID,
		Type:                TransactionTypeTransferOut,
		Amount:              amount,
		Description:         description,
		CounterpartyAccount: &recipientID,
		TransferID:          &transferID,
		CreatedAt:           now,
		IdempotencyKey:      idempotencyKey,
	}
	in = &TransactionRecord{
		ID:                  uuid.New(),
		AccountID:           recipientID,
		Type:                TransactionTypeTransferIn,
		Amount:              amount,
		Description:         description,
		CounterpartyAccount: &senderID,
		TransferID:          &transferID,
		CreatedAt:           now,
	}
	out.LinkedTransactionID = &in.ID
	in.LinkedTransactionID = &out.ID
	return out, in
}

// TransferResult is returned by a completed Transfer. Status is always
// "completed"; a failed transfer surfaces an error and carries no
// partial result.
type TransferResult struct {
	TransferID       uuid.UUID `json:"transfer_id"`
	OutTransactionID uuid.UUID `json:"sender_transaction_id"`
	InTransactionID  uuid.UUID `json:"recipient_transaction_id"`
	SenderID         uuid.UUID `json:"sender_id"`
	RecipientID      uuid.UUID `json:"recipient_id"`
	Amount           int64     `json:"amount"`
	SenderBalance    int64     `json:"sender_new_balance"`
	RecipientBalance int64     `json:"recipient_new_balance"`
	Status           string    `json:"status"`
	CompletedAt      time.Time `json:"completed_at"`
}

// TransactionPage is one page of an account's history.
type TransactionPage struct {
	Page         int                 `json:"page"`
	Limit        int                 `json:"limit"`
	Total        int64               `json:"total"`
	Transactions []TransactionRecord `json:"transactions"`
}
