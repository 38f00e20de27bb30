package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/wealth-tracker/internal/api/middleware"
	"github.com/dvloznov/wealth-tracker/internal/auth"
	"github.com/dvloznov/wealth-tracker/internal/ledger"
)

// AccountsHandler handles account-related endpoints.
type AccountsHandler struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(ldg *ledger.Ledger, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{ledger: ldg, log: log}
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	var input ledger.AccountInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.ledger.CreateAccount(r.Context(), userID, input)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create account")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    account,
	})
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}
