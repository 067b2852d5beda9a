package models

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "12.34", want: 1234},
		{raw: "0.01", want: 1},
		{raw: "100", want: 10000},
		{raw: "-5", want: -500},
		{raw: "1.005", wantErr: true}, // sub-cent precision
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("ParseAmount(%q): want ErrInvalidAmount, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) err=%v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q)=%d want=%d", tc.raw, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(1234).String(); got != "12.34" {
		t.Fatalf("FormatAmount(1234)=%q want 12.34", got)
	}
	if got := FormatAmount(0).String(); got != "0" {
		t.Fatalf("FormatAmount(0)=%q want 0", got)
	}
}

func TestParseAccountID(t *testing.T) {
	if _, err := ParseAccountID("not-a-uuid"); !errors.Is(err, ErrInvalidAccountID) {
		t.Fatalf("want ErrInvalidAccountID, got %v", err)
	}
	account := NewAccount(0)
	id, err := ParseAccountID(account.ID.String())
	if err != nil || id != account.ID {
		t.Fatalf("round trip failed: %v %v", id, err)
	}
}

func TestSignedAmounts(t *testing.T) {
	cases := map[TransactionType]int64{
		TransactionTypeCredit:      100,
		TransactionTypeTransferIn:  100,
		TransactionTypeDebit:       -100,
		TransactionTypeTransferOut: -100,
	}
	for txType, want := range cases {
		if got := txType.Signed(100); got != want {
			t.Errorf("%s.Signed(100)=%d want=%d", txType, got, want)
		}
	}
}

func TestOperationFingerprint(t *testing.T) {
	a := OperationFingerprint("credit", "acct", "100", "desc")
	b := OperationFingerprint("credit", "acct", "100", "desc")
	if a != b {
		t.Fatal("same inputs must produce the same fingerprint")
	}
	if c := OperationFingerprint("credit", "acct", "101", "desc"); c == a {
		t.Fatal("different amounts must produce different fingerprints")
	}
	// joined fields must not be ambiguous
	if d := OperationFingerprint("credit", "ac", "ct100", "desc"); d == a {
		t.Fatal("field boundaries must be preserved")
	}
}

func TestNewTransferPairLinkage(t *testing.T) {
	account, counterparty := NewAccount(0), NewAccount(0)
	transferID := account.ID // any uuid will do

	out, in := NewTransferPair(transferID, account.ID, counterparty.ID, 50, "pay", "k")
	if *out.LinkedTransactionID != in.ID || *in.LinkedTransactionID != out.ID {
		t.Fatal("legs must reference each other")
	}
	if *out.CounterpartyAccount != counterparty.ID || *in.CounterpartyAccount != account.ID {
		t.Fatal("counterparties must be opposite")
	}
	if out.Amount != in.Amount {
		t.Fatal("legs must carry the same amount")
	}
	if *out.TransferID != transferID || *in.TransferID != transferID {
		t.Fatal("legs must share the transfer id")
	}
}
