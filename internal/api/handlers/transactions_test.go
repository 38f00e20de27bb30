package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/auth"
	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/ledger"
	storagemem "github.com/dvloznov/wealth-tracker/internal/storage/memory"
)

func newTestHandler(t *testing.T) (*TransactionsHandler, *storagemem.Store, uuid.UUID, uuid.UUID) {
	t.Helper()

	store := storagemem.NewStore()
	userID := uuid.New()
	account := &domain.Account{
		ID:      uuid.New(),
		UserID:  userID,
		Name:    "Main",
		Type:    domain.AccountCurrent,
		Balance: decimal.NewFromInt(100),
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	ldg := ledger.New(store, nil, zerolog.Nop())
	return NewTransactionsHandler(ldg, zerolog.Nop()), store, userID, account.ID
}

func authedRequest(userID uuid.UUID, method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(auth.ContextWithUserID(req.Context(), userID))
}

func TestCreateTransaction(t *testing.T) {
	handler, store, userID, accountID := newTestHandler(t)

	body := fmt.Sprintf(`{
		"account_id": %q,
		"type": "EXPENSE",
		"amount": "25.50",
		"description": "Groceries",
		"date": %q
	}`, accountID, time.Now().Format(time.RFC3339))

	rec := httptest.NewRecorder()
	handler.CreateTransaction(rec, authedRequest(userID, http.MethodPost, "/api/transactions", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp struct {
		Success bool               `json:"success"`
		Data    domain.Transaction `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if got := resp.Data.Amount.StringFixed(2); got != "25.50" {
		t.Errorf("amount = %s, want 25.50", got)
	}

	account, err := store.GetAccount(context.Background(), userID, accountID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got := account.Balance.StringFixed(2); got != "74.50" {
		t.Errorf("balance = %s, want 74.50", got)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	handler, _, userID, accountID := newTestHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "malformed JSON",
			body: "{not json",
			want: http.StatusBadRequest,
		},
		{
			name: "unknown type",
			body: fmt.Sprintf(`{"account_id": %q, "type": "TRANSFER", "amount": "5", "date": "2024-03-01T00:00:00Z"}`, accountID),
			want: http.StatusBadRequest,
		},
		{
			name: "unknown account",
			body: fmt.Sprintf(`{"account_id": %q, "type": "EXPENSE", "amount": "5", "date": "2024-03-01T00:00:00Z"}`, uuid.New()),
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.CreateTransaction(rec, authedRequest(userID, http.MethodPost, "/api/transactions", tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCreateTransactionUnauthenticated(t *testing.T) {
	handler, _, _, accountID := newTestHandler(t)

	body := fmt.Sprintf(`{"account_id": %q, "type": "EXPENSE", "amount": "5", "date": "2024-03-01T00:00:00Z"}`, accountID)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.CreateTransaction(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestUpdateTransactionFlipsBalance(t *testing.T) {
	handler, store, userID, accountID := newTestHandler(t)

	date := time.Now().Format(time.RFC3339)
	createBody := fmt.Sprintf(`{"account_id": %q, "type": "EXPENSE", "amount": "50", "date": %q}`, accountID, date)
	rec := httptest.NewRecorder()
	handler.CreateTransaction(rec, authedRequest(userID, http.MethodPost, "/api/transactions", createBody))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Data domain.Transaction `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	updateBody := fmt.Sprintf(`{"account_id": %q, "type": "INCOME", "amount": "50", "date": %q}`, accountID, date)
	rec = httptest.NewRecorder()
	handler.UpdateTransaction(rec, authedRequest(userID, http.MethodPut, "/api/transactions/"+created.Data.ID.String(), updateBody), created.Data.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d; body: %s", rec.Code, rec.Body.String())
	}

	account, err := store.GetAccount(context.Background(), userID, accountID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	// 100 - 50, then the flip nets +100.
	if got := account.Balance.StringFixed(2); got != "150.00" {
		t.Errorf("balance = %s, want 150.00", got)
	}
}

func TestListTransactionsRequiresAccountID(t *testing.T) {
	handler, _, userID, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ListTransactions(rec, authedRequest(userID, http.MethodGet, "/api/transactions", ""))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListTransactions(t *testing.T) {
	handler, _, userID, accountID := newTestHandler(t)

	date := time.Now().Format(time.RFC3339)
	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"account_id": %q, "type": "EXPENSE", "amount": "1", "date": %q}`, accountID, date)
		rec := httptest.NewRecorder()
		handler.CreateTransaction(rec, authedRequest(userID, http.MethodPost, "/api/transactions", body))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ListTransactions(rec, authedRequest(userID, http.MethodGet, "/api/transactions?account_id="+accountID.String(), ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Transactions []domain.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 || len(resp.Transactions) != 3 {
		t.Errorf("count = %d, len = %d, want 3", resp.Count, len(resp.Transactions))
	}
}
