package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rentedmail/wallet-ledger-service/internal/models"
)

func TestAccountConditionalUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	account := models.NewAccount(100)
	if err := s.Create(ctx, account); err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpdateBalance(ctx, account.ID, 1, 150, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if updated.Balance != 150 || updated.Version != 2 {
		t.Fatalf("got balance=%d version=%d, want 150/2", updated.Balance, updated.Version)
	}

	// stale version loses the race
	if _, err := s.UpdateBalance(ctx, account.ID, 1, 999, time.Now()); !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	// the conflicting write must not have landed
	got, _ := s.Get(ctx, account.ID)
	if got.Balance != 150 {
		t.Fatalf("balance=%d want=150", got.Balance)
	}

	if _, err := s.UpdateBalance(ctx, uuid.New(), 1, 10, time.Now()); !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	account := models.NewAccount(100)
	s.Create(ctx, account)

	got, _ := s.Get(ctx, account.ID)
	got.Balance = 9999

	again, _ := s.Get(ctx, account.ID)
	if again.Balance != 100 {
		t.Fatal("Get must return a copy, not internal state")
	}
}

func TestAppendLinkedPair(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	sender, recipient := uuid.New(), uuid.New()
	out, in := models.NewTransferPair(uuid.New(), sender, recipient, 50, "pay", "")
	if err := s.AppendLinkedPair(ctx, out, in); err != nil {
		t.Fatal(err)
	}

	gotOut, err := s.FindByID(ctx, out.ID)
	if err != nil {
		t.Fatal(err)
	}
	gotIn, err := s.FindByID(ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *gotOut.LinkedTransactionID != gotIn.ID || *gotIn.LinkedTransactionID != gotOut.ID {
		t.Fatal("legs must reference each other")
	}
}

func TestFindByAccountNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	accountID := uuid.New()

	for i := 1; i <= 4; i++ {
		rec := models.NewCreditRecord(accountID, int64(i), "drip", "")
		if err := s.AppendSingle(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	// a record for another account must not leak into results
	s.AppendSingle(ctx, models.NewCreditRecord(uuid.New(), 99, "other", ""))

	page, err := s.FindByAccount(ctx, accountID, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Amount != 3 || page[1].Amount != 2 {
		t.Fatalf("got %+v, want amounts 3,2", page)
	}

	n, err := s.CountByAccount(ctx, accountID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("count=%d want=4", n)
	}
}

func TestIdempotencyLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	// fresh key is reserved
	prior, err := s.Begin(ctx, "credit:k1", "fp1")
	if err != nil || prior != nil {
		t.Fatalf("got (%v, %v), want reserved", prior, err)
	}

	// second claim while pending
	if _, err := s.Begin(ctx, "credit:k1", "fp1"); !errors.Is(err, models.ErrIdempotencyInProgress) {
		t.Fatalf("want ErrIdempotencyInProgress, got %v", err)
	}

	record := models.NewCreditRecord(uuid.New(), 10, "x", "k1")
	if err := s.Complete(ctx, "credit:k1", &models.OperationResult{Fingerprint: "fp1", Record: record}); err != nil {
		t.Fatal(err)
	}

	// replay with matching fingerprint returns the stored result
	prior, err = s.Begin(ctx, "credit:k1", "fp1")
	if err != nil {
		t.Fatal(err)
	}
	if prior == nil || prior.Record.ID != record.ID {
		t.Fatalf("got %+v, want stored result", prior)
	}

	// replay with different params is rejected
	if _, err := s.Begin(ctx, "credit:k1", "fp2"); !errors.Is(err, models.ErrIdempotencyKeyReuse) {
		t.Fatalf("want ErrIdempotencyKeyReuse, got %v", err)
	}
}

func TestIdempotencyAbortReleasesClaim(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Begin(ctx, "debit:k1", "fp"); err != nil {
		t.Fatal(err)
	}
	if err := s.Abort(ctx, "debit:k1"); err != nil {
		t.Fatal(err)
	}
	// the key is claimable again
	if prior, err := s.Begin(ctx, "debit:k1", "fp"); err != nil || prior != nil {
		t.Fatalf("got (%v, %v), want reserved", prior, err)
	}

	// abort never discards a completed result
	s.Complete(ctx, "debit:k1", &models.OperationResult{Fingerprint: "fp"})
	s.Abort(ctx, "debit:k1")
	if prior, _ := s.Begin(ctx, "debit:k1", "fp"); prior == nil {
		t.Fatal("completed result must survive a stray abort")
	}
}
