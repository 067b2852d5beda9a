package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentedmail/wallet-ledger-service/internal/interfaces"
	"github.com/rentedmail/wallet-ledger-service/internal/models"
	"github.com/rentedmail/wallet-ledger-service/internal/models/events"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 10 * time.Millisecond
)

// Engine orchestrates Credit, Debit and Transfer over the account store
// and the transaction log. It is the sole writer of balances and
// records: concurrent operations on one account are serialized through
// the store's version check and the engine's bounded retry loop, and a
// transfer's two conditional updates run under per-account locks
// acquired in id order so opposing transfers cannot deadlock.
type Engine struct {
	accounts interfaces.AccountStore
	txlog    interfaces.TransactionLog
	idem     interfaces.IdempotencyTracker
	events   interfaces.EventPublisher // optional, nil disables publishing
	logger   *slog.Logger

	maxAttempts int
	backoffBase time.Duration

	muMap map[uuid.UUID]*sync.Mutex // per-account transfer locks
	mapMu sync.Mutex                // protects the muMap itself
}

// Option tunes engine construction.
type Option func(*Engine)

// WithRetryBudget overrides the conflict retry budget.
func WithRetryBudget(attempts int) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.maxAttempts = attempts
		}
	}
}

// WithBackoffBase overrides the base delay between conflict retries.
func WithBackoffBase(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.backoffBase = d
		}
	}
}

// WithEventPublisher enables completion events on the given publisher.
func WithEventPublisher(pub interfaces.EventPublisher) Option {
	return func(e *Engine) { e.events = pub }
}

// NewEngine wires an engine over its stores.
func NewEngine(accounts interfaces.AccountStore, txlog interfaces.TransactionLog, idem interfaces.IdempotencyTracker, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		accounts:    accounts,
		txlog:       txlog,
		idem:        idem,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		muMap:       make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateAccountRecord creates an account with a starting balance. A
// nonzero starting balance is recorded as an opening credit so that the
// balance always equals the net sum of the account's records.
func (e *Engine) CreateAccountRecord(ctx context.Context, initialBalance int64) (*models.Account, error) {
	if initialBalance < 0 {
		return nil, models.ErrInvalidAmount
	}
	account := models.NewAccount(initialBalance)
	if err := e.accounts.Create(ctx, account); err != nil {
		return nil, &models.StorageError{Op: "create account", Err: err}
	}
	if initialBalance > 0 {
		opening := models.NewCreditRecord(account.ID, initialBalance, "opening balance", "")
		if err := e.txlog.AppendSingle(ctx, opening); err != nil {
			return nil, &models.StorageError{Op: "append opening record", Err: err}
		}
	}
	e.logger.Info("account created", "account_id", account.ID, "balance", account.Balance)
	return account, nil
}

// GetBalance returns the current balance and last update time.
func (e *Engine) GetBalance(ctx context.Context, accountID uuid.UUID) (*models.BalanceInfo, error) {
	account, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &models.BalanceInfo{
		AccountID:   account.ID,
		Balance:     account.Balance,
		LastUpdated: account.UpdatedAt,
	}, nil
}

// Credit adds amount to the account and appends a CREDIT record.
func (e *Engine) Credit(ctx context.Context, accountID uuid.UUID, amount int64, description, idempotencyKey string) (*models.TransactionRecord, error) {
	return e.adjust(ctx, accountID, amount, description, idempotencyKey, models.TransactionTypeCredit)
}

// Debit subtracts amount from the account and appends a DEBIT record.
// Fails with InsufficientFundsError if the balance would go negative;
// the check is re-evaluated against every fresh read inside the retry
// loop, since the balance may drop between attempts.
func (e *Engine) Debit(ctx context.Context, accountID uuid.UUID, amount int64, description, idempotencyKey string) (*models.TransactionRecord, error) {
	return e.adjust(ctx, accountID, amount, description, idempotencyKey, models.TransactionTypeDebit)
}

// adjust is the shared credit/debit path: claim the idempotency key,
// run the conditional-update retry loop, append the record, store the
// result against the key.
func (e *Engine) adjust(ctx context.Context, accountID uuid.UUID, amount int64, description, idempotencyKey string, txType models.TransactionType) (*models.TransactionRecord, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	opName := "credit"
	if txType == models.TransactionTypeDebit {
		opName = "debit"
	}
	key := scopedKey(opName, idempotencyKey)
	fingerprint := models.OperationFingerprint(opName, accountID.String(), strconv.FormatInt(amount, 10), description)

	if key != "" {
		prior, err := e.idem.Begin(ctx, key, fingerprint)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			e.logger.Info("idempotency hit, returning prior result", "op", opName, "key", idempotencyKey)
			return prior.Record, nil
		}
	}

	record, err := e.applyAdjust(ctx, accountID, amount, description, idempotencyKey, txType)
	if key != "" {
		if err != nil {
			e.abortKey(ctx, key)
		} else if cerr := e.idem.Complete(ctx, key, &models.OperationResult{Fingerprint: fingerprint, Record: record}); cerr != nil {
			// The operation itself is durable; losing the cached result
			// only weakens replay, so log and keep going.
			e.logger.Error("failed to store idempotency result", "op", opName, "key", idempotencyKey, "error", cerr)
		}
	}
	return record, err
}

func (e *Engine) applyAdjust(ctx context.Context, accountID uuid.UUID, amount int64, description, idempotencyKey string, txType models.TransactionType) (*models.TransactionRecord, error) {
	account, err := e.updateWithRetry(ctx, accountID, func(a *models.Account) (int64, error) {
		if txType == models.TransactionTypeDebit {
			if a.Balance < amount {
				return 0, &models.InsufficientFundsError{AccountID: a.ID.String(), Current: a.Balance, Requested: amount}
			}
			return a.Balance - amount, nil
		}
		return a.Balance + amount, nil
	})
	if err != nil {
		return nil, err
	}

	var record *models.TransactionRecord
	if txType == models.TransactionTypeDebit {
		record = models.NewDebitRecord(accountID, amount, description, idempotencyKey)
	} else {
		record = models.NewCreditRecord(accountID, amount, description, idempotencyKey)
	}

	if err := e.txlog.AppendSingle(ctx, record); err != nil {
		// The balance moved but the record did not land: reverse the
		// balance change before surfacing, so the ledger stays
		// reconcilable.
		e.compensate(ctx, accountID, txType.Signed(amount))
		return nil, &models.StorageError{Op: "append transaction record", Err: err}
	}

	e.publishTransaction(ctx, record, account.Balance)
	return record, nil
}

// Transfer moves amount from sender to recipient, all or nothing.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount int64, description, idempotencyKey string) (*models.TransferResult, error) {
	// Validate
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if senderID == recipientID {
		return nil, models.ErrSelfTransfer
	}

	key := scopedKey("transfer", idempotencyKey)
	fingerprint := models.OperationFingerprint("transfer", senderID.String(), recipientID.String(), strconv.FormatInt(amount, 10), description)

	if key != "" {
		prior, err := e.idem.Begin(ctx, key, fingerprint)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			e.logger.Info("idempotency hit, returning prior transfer", "key", idempotencyKey)
			return prior.Transfer, nil
		}
	}

	result, err := e.applyTransfer(ctx, senderID, recipientID, amount, description, idempotencyKey)
	if key != "" {
		if err != nil {
			e.abortKey(ctx, key)
		} else if cerr := e.idem.Complete(ctx, key, &models.OperationResult{Fingerprint: fingerprint, Transfer: result}); cerr != nil {
			e.logger.Error("failed to store idempotency result", "op", "transfer", "key", idempotencyKey, "error", cerr)
		}
	}
	return result, err
}

func (e *Engine) applyTransfer(ctx context.Context, senderID, recipientID uuid.UUID, amount int64, description, idempotencyKey string) (*models.TransferResult, error) {
	// LookupBoth: both accounts must exist before anything is touched.
	if _, err := e.accounts.Get(ctx, senderID); err != nil {
		return nil, err
	}
	if _, err := e.accounts.Get(ctx, recipientID); err != nil {
		return nil, err
	}

	// LockOrdering: acquire the pair's locks in id order, never in
	// request order, so two opposing transfers cannot deadlock.
	first, second := orderPair(senderID, recipientID)
	firstMu, secondMu := e.accountLock(first), e.accountLock(second)
	firstMu.Lock()
	defer firstMu.Unlock()
	secondMu.Lock()
	defer secondMu.Unlock()

	// ReserveAndApply: debit the sender first, so the recipient credit
	// can always be unwound by re-crediting the sender.
	sender, err := e.updateWithRetry(ctx, senderID, func(a *models.Account) (int64, error) {
		if a.Balance < amount {
			return 0, &models.InsufficientFundsError{AccountID: a.ID.String(), Current: a.Balance, Requested: amount}
		}
		return a.Balance - amount, nil
	})
	if err != nil {
		return nil, err
	}

	recipient, err := e.updateWithRetry(ctx, recipientID, func(a *models.Account) (int64, error) {
		return a.Balance + amount, nil
	})
	if err != nil {
		// Credit leg failed after the debit landed: compensate the
		// sender before surfacing, even when err is a timeout.
		e.compensate(ctx, senderID, -amount)
		return nil, err
	}

	// Record: both legs land together or not at all.
	transferID := uuid.New()
	out, in := models.NewTransferPair(transferID, senderID, recipientID, amount, description, idempotencyKey)
	if err := e.txlog.AppendLinkedPair(ctx, out, in); err != nil {
		e.compensate(ctx, recipientID, amount)
		e.compensate(ctx, senderID, -amount)
		return nil, &models.StorageError{Op: "append transfer records", Err: err}
	}

	result := &models.TransferResult{
		TransferID:       transferID,
		OutTransactionID: out.ID,
		InTransactionID:  in.ID,
		SenderID:         senderID,
		RecipientID:      recipientID,
		Amount:           amount,
		SenderBalance:    sender.Balance,
		RecipientBalance: recipient.Balance,
		Status:           "completed",
		CompletedAt:      out.CreatedAt,
	}
	e.publishTransfer(ctx, result)
	return result, nil
}

// ListTransactions returns one page of an account's history, newest first.
func (e *Engine) ListTransactions(ctx context.Context, accountID uuid.UUID, page, limit int) (*models.TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if _, err := e.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	total, err := e.txlog.CountByAccount(ctx, accountID)
	if err != nil {
		return nil, &models.StorageError{Op: "count transactions", Err: err}
	}
	items, err := e.txlog.FindByAccount(ctx, accountID, (page-1)*limit, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "list transactions", Err: err}
	}
	return &models.TransactionPage{Page: page, Limit: limit, Total: total, Transactions: items}, nil
}

// GetTransaction returns one transaction record.
func (e *Engine) GetTransaction(ctx context.Context, id uuid.UUID) (*models.TransactionRecord, error) {
	return e.txlog.FindByID(ctx, id)
}

// Reconcile recomputes the account balance from its full history and
// reports it alongside the stored balance. The two must always agree.
func (e *Engine) Reconcile(ctx context.Context, accountID uuid.UUID) (stored, derived int64, err error) {
	account, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	total, err := e.txlog.CountByAccount(ctx, accountID)
	if err != nil {
		return 0, 0, &models.StorageError{Op: "count transactions", Err: err}
	}
	records, err := e.txlog.FindByAccount(ctx, accountID, 0, int(total))
	if err != nil {
		return 0, 0, &models.StorageError{Op: "list transactions", Err: err}
	}
	for _, r := range records {
		derived += r.Type.Signed(r.Amount)
	}
	return account.Balance, derived, nil
}

// updateWithRetry runs the read-compute-conditionally-write loop for one
// account. compute sees a fresh snapshot on every attempt and returns
// the new balance or a terminal error (insufficient funds aborts the
// loop, it is not a conflict). Version conflicts are retried with
// jittered backoff up to the budget.
func (e *Engine) updateWithRetry(ctx context.Context, accountID uuid.UUID, compute func(*models.Account) (int64, error)) (*models.Account, error) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, models.ErrTimeout
		}

		account, err := e.accounts.Get(ctx, accountID)
		if err != nil {
			return nil, err
		}
		newBalance, err := compute(account)
		if err != nil {
			return nil, err
		}

		updated, err := e.accounts.UpdateBalance(ctx, accountID, account.Version, newBalance, time.Now().UTC())
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, &models.StorageError{Op: "update balance", Err: err}
		}

		e.logger.Debug("version conflict, retrying", "account_id", accountID, "attempt", attempt)
		if attempt < e.maxAttempts {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: account %s after %d attempts", models.ErrRetryExhausted, accountID, e.maxAttempts)
}

// backoff sleeps a jittered, attempt-scaled delay, or returns early if
// the deadline expires first.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt) * e.backoffBase
	delay += time.Duration(rand.Int63n(int64(e.backoffBase)))
	select {
	case <-ctx.Done():
		return models.ErrTimeout
	case <-time.After(delay):
		return nil
	}
}

// compensate reverses a previously applied signed balance change. It
// runs on a detached context so an expired request deadline cannot
// abandon a half-applied transfer. Failure here is logged loudly: it
// means manual reconciliation is needed.
func (e *Engine) compensate(ctx context.Context, accountID uuid.UUID, signedAmount int64) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := e.updateWithRetry(bg, accountID, func(a *models.Account) (int64, error) {
		return a.Balance - signedAmount, nil
	})
	if err != nil {
		e.logger.Error("compensation failed, ledger needs manual reconciliation",
			"account_id", accountID, "signed_amount", signedAmount, "error", err)
		return
	}
	e.logger.Warn("compensated partial operation", "account_id", accountID, "signed_amount", signedAmount)
}

func (e *Engine) abortKey(ctx context.Context, key string) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.idem.Abort(bg, key); err != nil {
		e.logger.Error("failed to release idempotency key", "key", key, "error", err)
	}
}

func (e *Engine) publishTransaction(ctx context.Context, record *models.TransactionRecord, newBalance int64) {
	if e.events == nil {
		return
	}
	evt := events.TransactionCompleted{
		TransactionID: record.ID.String(),
		AccountID:     record.AccountID.String(),
		Type:          string(record.Type),
		Amount:        models.FormatAmount(record.Amount),
		NewBalance:    models.FormatAmount(newBalance),
		OccurredAt:    record.CreatedAt,
	}
	if err := e.events.Publish(ctx, events.TopicTransactionCompleted, evt); err != nil {
		e.logger.Error("failed to publish transaction event", "transaction_id", record.ID, "error", err)
	}
}

func (e *Engine) publishTransfer(ctx context.Context, result *models.TransferResult) {
	if e.events == nil {
		return
	}
	evt := events.TransferCompleted{
		TransferID:  result.TransferID.String(),
		FromAccount: result.SenderID.String(),
		ToAccount:   result.RecipientID.String(),
		Amount:      models.FormatAmount(result.Amount),
		OccurredAt:  result.CompletedAt,
	}
	if err := e.events.Publish(ctx, events.TopicTransferCompleted, evt); err != nil {
		e.logger.Error("failed to publish transfer event", "transfer_id", result.TransferID, "error", err)
	}
}

// accountLock returns the mutex for one account, creating it on first use.
func (e *Engine) accountLock(accountID uuid.UUID) *sync.Mutex {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()

	if _, exists := e.muMap[accountID]; !exists {
		e.muMap[accountID] = &sync.Mutex{}
	}
	return e.muMap[accountID]
}

// orderPair returns the two ids in deterministic order.
func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}

// scopedKey prefixes an idempotency key with the operation type, so the
// same key used for a credit and a transfer counts as two claims. An
// empty key disables deduplication for the call.
func scopedKey(op, key string) string {
	if key == "" {
		return ""
	}
	return op + ":" + key
}
