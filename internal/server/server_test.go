package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rentedmail/wallet-ledger-service/internal/ledger"
	"github.com/rentedmail/wallet-ledger-service/internal/storage/memory"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := ledger.NewEngine(store, store, store, logger)

	app := fiber.New()
	New(engine, logger).Register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		t.Fatalf("decoding %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, decoded
}

func createAccount(t *testing.T, app *fiber.App, balance string) string {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/v1/accounts", map[string]string{"initial_balance": balance}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create account: status=%d body=%v", status, body)
	}
	return body["id"].(string)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	status, body := doJSON(t, app, http.MethodGet, "/health", nil, nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status=%d body=%v", status, body)
	}
}

func TestCreditAndBalanceFlow(t *testing.T) {
	app := newTestApp(t)
	id := createAccount(t, app, "100.00")

	status, body := doJSON(t, app, http.MethodPost, "/v1/accounts/"+id+"/credit",
		map[string]string{"amount": "50.00", "description": "bonus"}, nil)
	if status != http.StatusCreated {
		t.Fatalf("credit: status=%d body=%v", status, body)
	}
	if body["type"] != "CREDIT" {
		t.Fatalf("type=%v want CREDIT", body["type"])
	}

	status, body = doJSON(t, app, http.MethodGet, "/v1/accounts/"+id+"/balance", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("balance: status=%d body=%v", status, body)
	}
	if body["balance"] != "150" {
		t.Fatalf("balance=%v want 150", body["balance"])
	}
}

func TestDebitInsufficientFundsResponse(t *testing.T) {
	app := newTestApp(t)
	id := createAccount(t, app, "1.50")

	status, body := doJSON(t, app, http.MethodPost, "/v1/accounts/"+id+"/debit",
		map[string]string{"amount": "2.00", "description": "rent"}, nil)
	if status != http.StatusConflict {
		t.Fatalf("status=%d body=%v", status, body)
	}
	if body["current_balance"] != "1.5" || body["required_amount"] != "2" {
		t.Fatalf("body=%v", body)
	}
}

func TestTransferEndpoint(t *testing.T) {
	app := newTestApp(t)
	sender := createAccount(t, app, "1.50")
	recipient := createAccount(t, app, "0")

	status, body := doJSON(t, app, http.MethodPost, "/v1/transfers", map[string]string{
		"sender_id":    sender,
		"recipient_id": recipient,
		"amount":       "0.50",
		"description":  "pay",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("status=%d body=%v", status, body)
	}
	if body["status"] != "completed" {
		t.Fatalf("body=%v", body)
	}
	if body["sender_transaction_id"] == body["recipient_transaction_id"] {
		t.Fatal("legs must have distinct ids")
	}

	_, balance := doJSON(t, app, http.MethodGet, "/v1/accounts/"+recipient+"/balance", nil, nil)
	if balance["balance"] != "0.5" {
		t.Fatalf("recipient balance=%v want 0.5", balance["balance"])
	}
}

func TestTransferIdempotencyHeader(t *testing.T) {
	app := newTestApp(t)
	sender := createAccount(t, app, "10.00")
	recipient := createAccount(t, app, "0")

	payload := map[string]string{
		"sender_id":    sender,
		"recipient_id": recipient,
		"amount":       "1.00",
		"description":  "pay",
	}
	headers := map[string]string{"Idempotency-Key": "req-42"}

	_, first := doJSON(t, app, http.MethodPost, "/v1/transfers", payload, headers)
	_, second := doJSON(t, app, http.MethodPost, "/v1/transfers", payload, headers)
	if first["transfer_id"] != second["transfer_id"] {
		t.Fatalf("replay must return the original result: %v vs %v", first["transfer_id"], second["transfer_id"])
	}

	_, balance := doJSON(t, app, http.MethodGet, "/v1/accounts/"+sender+"/balance", nil, nil)
	if balance["balance"] != "9" {
		t.Fatalf("sender balance=%v want 9 (applied once)", balance["balance"])
	}
}

func TestNotFoundAndBadRequestMapping(t *testing.T) {
	app := newTestApp(t)

	status, _ := doJSON(t, app, http.MethodGet, "/v1/accounts/8f9c2f4e-64a1-4a6e-9f34-1df1c0f9d001/balance", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("missing account: status=%d want 404", status)
	}

	status, _ = doJSON(t, app, http.MethodGet, "/v1/accounts/not-a-uuid/balance", nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad id: status=%d want 400", status)
	}

	id := createAccount(t, app, "0")
	status, _ = doJSON(t, app, http.MethodPost, "/v1/accounts/"+id+"/credit",
		map[string]string{"amount": "0", "description": "x"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("zero amount: status=%d want 400", status)
	}

	status, _ = doJSON(t, app, http.MethodGet, "/v1/transactions/8f9c2f4e-64a1-4a6e-9f34-1df1c0f9d001", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("missing transaction: status=%d want 404", status)
	}
}

func TestListTransactionsEndpoint(t *testing.T) {
	app := newTestApp(t)
	id := createAccount(t, app, "0")

	for i := 0; i < 3; i++ {
		doJSON(t, app, http.MethodPost, "/v1/accounts/"+id+"/credit",
			map[string]string{"amount": "1.00", "description": "drip"}, nil)
	}

	status, body := doJSON(t, app, http.MethodGet, "/v1/accounts/"+id+"/transactions?page=1&limit=2", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("status=%d body=%v", status, body)
	}
	if body["total"].(float64) != 3 {
		t.Fatalf("total=%v want 3", body["total"])
	}
	if items := body["transactions"].([]any); len(items) != 2 {
		t.Fatalf("len=%d want 2", len(items))
	}
}
