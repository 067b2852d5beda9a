package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentedmail/wallet-ledger-service/internal/interfaces"
	"github.com/rentedmail/wallet-ledger-service/internal/models"
)

// Store is the in-memory implementation of the account store, the
// transaction log and the idempotency tracker. One mutex guards each
// concern; a conditional balance update and a linked-pair append are
// each atomic under their lock. Intended for tests and local runs.
type Store struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account

	logMu   sync.Mutex
	records []models.TransactionRecord
	byID    map[uuid.UUID]int // record id -> index into records

	idemMu sync.Mutex
	claims map[string]*claim
}

// claim tracks one idempotency key: pending while the operation runs,
// then holding the result once completed.
type claim struct {
	pending bool
	result  *models.OperationResult
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*models.Account),
		byID:     make(map[uuid.UUID]int),
		claims:   make(map[string]*claim),
	}
}

// ---- AccountStore ----

func (s *Store) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	// return a copy so callers cannot mutate internal state
	cp := *account
	return &cp, nil
}

func (s *Store) UpdateBalance(ctx context.Context, id uuid.UUID, expectedVersion, newBalance int64, updatedAt time.Time) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	if account.Version != expectedVersion {
		return nil, models.ErrVersionConflict
	}
	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = updatedAt

	cp := *account
	return &cp, nil
}

// ---- TransactionLog ----

func (s *Store) AppendSingle(ctx context.Context, record *models.TransactionRecord) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	s.byID[record.ID] = len(s.records)
	s.records = append(s.records, *record)
	return nil
}

// AppendLinkedPair writes both legs under one lock acquisition, so a
// reader never observes one leg without the other.
func (s *Store) AppendLinkedPair(ctx context.Context, out, in *models.TransactionRecord) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	s.byID[out.ID] = len(s.records)
	s.records = append(s.records, *out)
	s.byID[in.ID] = len(s.records)
	s.records = append(s.records, *in)
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*models.TransactionRecord, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	cp := s.records[idx]
	return &cp, nil
}

func (s *Store) FindByAccount(ctx context.Context, accountID uuid.UUID, offset, limit int) ([]models.TransactionRecord, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	// newest first: walk the append-only slice backwards
	var result []models.TransactionRecord
	skipped := 0
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		if s.records[i].AccountID != accountID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, s.records[i])
	}
	return result, nil
}

func (s *Store) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	var n int64
	for i := range s.records {
		if s.records[i].AccountID == accountID {
			n++
		}
	}
	return n, nil
}

// ---- IdempotencyTracker ----

func (s *Store) Begin(ctx context.Context, key, fingerprint string) (*models.OperationResult, error) {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()

	c, exists := s.claims[key]
	if !exists {
		s.claims[key] = &claim{pending: true}
		return nil, nil
	}
	if c.pending {
		return nil, models.ErrIdempotencyInProgress
	}
	if c.result.Fingerprint != fingerprint {
		return nil, models.ErrIdempotencyKeyReuse
	}
	return c.result, nil
}

func (s *Store) Complete(ctx context.Context, key string, result *models.OperationResult) error {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()

	s.claims[key] = &claim{result: result}
	return nil
}

func (s *Store) Abort(ctx context.Context, key string) error {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()

	if c, exists := s.claims[key]; exists && c.pending {
		delete(s.claims, key)
	}
	return nil
}

// Compile-time checks: Store implements all three store contracts.
var (
	_ interfaces.AccountStore       = (*Store)(nil)
	_ interfaces.TransactionLog     = (*Store)(nil)
	_ interfaces.IdempotencyTracker = (*Store)(nil)
)
