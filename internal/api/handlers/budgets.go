package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/api/middleware"
	"github.com/dvloznov/wealth-tracker/internal/auth"
	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/storage"
)

// BudgetsHandler handles budget endpoints.
type BudgetsHandler struct {
	store storage.Store
	log   zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(store storage.Store, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{store: store, log: log}
}

// UpsertBudget handles PUT /api/budget
func (h *BudgetsHandler) UpsertBudget(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Amount.IsNegative() {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be non-negative")
		return
	}

	now := time.Now()
	budget := &domain.Budget{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    req.Amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.UpsertBudget(r.Context(), budget); err != nil {
		h.log.Error().Err(err).Msg("Failed to upsert budget")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    budget,
	})
}

// GetBudget handles GET /api/budget
// Includes the current month's spending on the user's default account.
func (h *BudgetsHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	budget, err := h.store.GetBudget(r.Context(), userID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	resp := map[string]interface{}{
		"budget": budget,
	}

	accounts, err := h.store.ListAccounts(r.Context(), userID)
	if err == nil {
		for _, account := range accounts {
			if !account.IsDefault {
				continue
			}
			spent, err := h.store.MonthlyExpenses(r.Context(), userID, account.ID, time.Now())
			if err != nil {
				h.log.Error().Err(err).Msg("Failed to compute monthly expenses")
				break
			}
			resp["current_expenses"] = spent
			break
		}
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}
