package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/wealth-tracker/internal/api/middleware"
	"github.com/dvloznov/wealth-tracker/internal/auth"
	"github.com/dvloznov/wealth-tracker/internal/ledger"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(ldg *ledger.Ledger, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{ledger: ldg, log: log}
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	var input ledger.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.ledger.Create(r.Context(), userID, input)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create transaction")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    tx,
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	txID, err := uuid.Parse(id)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	tx, err := h.ledger.Get(r.Context(), userID, txID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    tx,
	})
}

// UpdateTransaction handles PUT /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	txID, err := uuid.Parse(id)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	var input ledger.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.ledger.Update(r.Context(), userID, txID, input)
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to update transaction")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    tx,
	})
}

// ListTransactions handles GET /api/transactions?account_id={id}
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	accountIDStr := r.URL.Query().Get("account_id")
	if accountIDStr == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid account_id")
		return
	}

	transactions, err := h.ledger.ListByAccount(r.Context(), userID, accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountIDStr).Msg("Failed to list transactions")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}
