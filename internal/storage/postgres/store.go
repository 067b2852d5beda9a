package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rentedmail/wallet-ledger-service/internal/interfaces"
	"github.com/rentedmail/wallet-ledger-service/internal/models"
)

// Store is the postgres implementation of the account store, the
// transaction log and the idempotency tracker. Conditional balance
// updates ride on `WHERE version = $n`; the linked transfer pair is
// written inside one database transaction. Schema in migrations/schema.sql.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ---- AccountStore ----

func (s *Store) Create(ctx context.Context, account *models.Account) error {
	const query = `INSERT INTO accounts (id, balance, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Balance, account.Version, account.CreatedAt, account.UpdatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const query = `SELECT id, balance, version, created_at, updated_at
	FROM accounts WHERE id = $1`

	var a models.Account
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) UpdateBalance(ctx context.Context, id uuid.UUID, expectedVersion, newBalance int64, updatedAt time.Time) (*models.Account, error) {
	const query = `UPDATE accounts
	SET balance = $1, version = version + 1, updated_at = $2
	WHERE id = $3 AND version = $4
	RETURNING id, balance, version, created_at, updated_at`

	var a models.Account
	err := s.db.QueryRowContext(ctx, query, newBalance, updatedAt, id, expectedVersion).Scan(
		&a.ID, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		// No row matched: either the account is gone or another writer
		// bumped the version first.
		exists, checkErr := s.accountExists(ctx, id)
		if checkErr != nil {
			return nil, checkErr
		}
		if !exists {
			return nil, models.ErrAccountNotFound
		}
		return nil, models.ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) accountExists(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `SELECT 1 FROM accounts WHERE id = $1`

	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ---- TransactionLog ----

const insertRecordQuery = `INSERT INTO transactions
	(id, account_id, type, amount, description, counterparty_account_id, linked_transaction_id, transfer_id, created_at, idempotency_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))`

func (s *Store) AppendSingle(ctx context.Context, record *models.TransactionRecord) error {
	_, err := s.db.ExecContext(ctx, insertRecordQuery, recordArgs(record)...)
	return err
}

// AppendLinkedPair writes both legs inside one database transaction, so
// either both commit or neither does.
func (s *Store) AppendLinkedPair(ctx context.Context, out, in *models.TransactionRecord) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if _, err = dbTx.ExecContext(ctx, insertRecordQuery, recordArgs(out)...); err != nil {
		return err
	}
	if _, err = dbTx.ExecContext(ctx, insertRecordQuery, recordArgs(in)...); err != nil {
		return err
	}
	return dbTx.Commit()
}

func recordArgs(r *models.TransactionRecord) []any {
	return []any{
		r.ID, r.AccountID, string(r.Type), r.Amount, r.Description,
		nullableUUID(r.CounterpartyAccount), nullableUUID(r.LinkedTransactionID), nullableUUID(r.TransferID),
		r.CreatedAt, r.IdempotencyKey,
	}
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

const selectRecordColumns = `id, account_id, type, amount, description, counterparty_account_id, linked_transaction_id, transfer_id, created_at, COALESCE(idempotency_key, '')`

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*models.TransactionRecord, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM transactions WHERE id = $1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) FindByAccount(ctx context.Context, accountID uuid.UUID, offset, limit int) ([]models.TransactionRecord, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM transactions
	WHERE account_id = $1
	ORDER BY created_at DESC, id DESC
	OFFSET $2 LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, accountID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COUNT(*) FROM transactions WHERE account_id = $1`

	var n int64
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.TransactionRecord, error) {
	var (
		r            models.TransactionRecord
		counterparty uuid.NullUUID
		linked       uuid.NullUUID
		transferID   uuid.NullUUID
	)
	err := row.Scan(
		&r.ID, &r.AccountID, &r.Type, &r.Amount, &r.Description,
		&counterparty, &linked, &transferID,
		&r.CreatedAt, &r.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	if counterparty.Valid {
		r.CounterpartyAccount = &counterparty.UUID
	}
	if linked.Valid {
		r.LinkedTransactionID = &linked.UUID
	}
	if transferID.Valid {
		r.TransferID = &transferID.UUID
	}
	return &r, nil
}

// ---- IdempotencyTracker ----

func (s *Store) Begin(ctx context.Context, key, fingerprint string) (*models.OperationResult, error) {
	const claimQuery = `INSERT INTO idempotency_keys (key, fingerprint, status, created_at)
	VALUES ($1, $2, 'pending', NOW())
	ON CONFLICT (key) DO NOTHING`

	res, err := s.db.ExecContext(ctx, claimQuery, key, fingerprint)
	if err != nil {
		return nil, err
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if claimed == 1 {
		return nil, nil
	}

	const lookupQuery = `SELECT status, fingerprint, result FROM idempotency_keys WHERE key = $1`

	var (
		status      string
		storedPrint string
		resultJSON  []byte
	)
	err = s.db.QueryRowContext(ctx, lookupQuery, key).Scan(&status, &storedPrint, &resultJSON)
	if err == sql.ErrNoRows {
		// The claim was aborted between our insert and the lookup;
		// treat it as in flight and let the caller retry shortly.
		return nil, models.ErrIdempotencyInProgress
	}
	if err != nil {
		return nil, err
	}
	if status == "pending" {
		return nil, models.ErrIdempotencyInProgress
	}
	if storedPrint != fingerprint {
		return nil, models.ErrIdempotencyKeyReuse
	}

	var result models.OperationResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) Complete(ctx context.Context, key string, result *models.OperationResult) error {
	const query = `UPDATE idempotency_keys SET status = 'completed', result = $2 WHERE key = $1`

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, key, payload)
	return err
}

func (s *Store) Abort(ctx context.Context, key string) error {
	const query = `DELETE FROM idempotency_keys WHERE key = $1 AND status = 'pending'`

	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Compile-time checks: Store implements all three store contracts.
var (
	_ interfaces.AccountStore       = (*Store)(nil)
	_ interfaces.TransactionLog     = (*Store)(nil)
	_ interfaces.IdempotencyTracker = (*Store)(nil)
)
