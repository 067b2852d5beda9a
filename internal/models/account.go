package models

import (
	"time"

	"github.com/google/uuid"
)

// Account holds the current balance of one wallet.
// Balance is in minor units (cents); Version increments on every balance
// change and drives the conditional updates in the stores.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates an account with a starting balance.
// Callers must have validated initialBalance >= 0.
func NewAccount(initialBalance int64) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:        uuid.New(),
		Balance:   initialBalance,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ParseAccountID validates an externally supplied account identifier.
// A malformed id maps to ErrInvalidAccountID instead of a raw parse error.
func ParseAccountID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidAccountID
	}
	return id, nil
}

// Balance view returned by GetBalance.
type BalanceInfo struct {
	AccountID   uuid.UUID `json:"account_id"`
	Balance     int64     `json:"balance"`
	LastUpdated time.Time `json:"last_updated"`
}
