package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"llm_router/internal/auth"
	"llm_router/internal/logging"
	"llm_router/internal/middleware"
	"llm_router/internal/storage"
	"llm_router/internal/utils"
)

const (
	defaultUsageLimit = 50
	maxUsageLimit     = 500
)

// AdminHandler serves admin login and account operations
type AdminHandler struct {
	store     storage.Store
	jwtSecret []byte
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store, jwtSecret []byte) *AdminHandler {
	return &AdminHandler{store: store, jwtSecret: jwtSecret}
}

// LoginRequest is the body of POST /admin/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries a signed admin token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// TopUpRequest is the body of POST /admin/accounts/{accountId}/credits
type TopUpRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// TopUpResponse reports the balance after a top-up
type TopUpResponse struct {
	AccountID int64 `json:"account_id"`
	Credits   int64 `json:"credits"`
}

// Login handles POST /admin/auth/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, exp, err := auth.GenerateAdminJWTWithPassword(r.Context(), req.Email, req.Password, h.store, h.jwtSecret)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, auth.ErrUserDisabled):
			utils.RespondWithError(w, http.StatusForbidden, "Account is disabled")
		default:
			logging.Errorf("admin login failed: %v", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to log in")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Unix(exp, 0).UTC().Format(time.RFC3339),
	})
}

// GetAccount handles GET /admin/accounts/{accountId}
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	account, err := h.store.GetAccount(r.Context(), accountID)
	if err != nil {
		respondStorageError(w, err, "Failed to get account")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, account)
}

// TopUp handles POST /admin/accounts/{accountId}/credits
func (h *AdminHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	var req TopUpRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	credits, err := h.store.CreditAccount(r.Context(), accountID, req.Amount)
	if err != nil {
		respondStorageError(w, err, "Failed to credit account")
		return
	}

	adminID, _ := middleware.GetAdminID(r.Context())
	logging.Infof("account %d credited %d by admin %d, balance %d", accountID, req.Amount, adminID, credits)

	utils.RespondWithJSON(w, http.StatusOK, TopUpResponse{AccountID: accountID, Credits: credits})
}

// Usage handles GET /admin/accounts/{accountId}/usage
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetAccount(r.Context(), accountID); err != nil {
		respondStorageError(w, err, "Failed to get account")
		return
	}

	records, err := h.store.UsageByAccount(r.Context(), accountID, limit)
	if err != nil {
		respondStorageError(w, err, "Failed to list usage")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"usage":      records,
	})
}

// TopUps handles GET /admin/accounts/{accountId}/topups
func (h *AdminHandler) TopUps(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetAccount(r.Context(), accountID); err != nil {
		respondStorageError(w, err, "Failed to get account")
		return
	}

	txs, err := h.store.ListTopUps(r.Context(), accountID, limit)
	if err != nil {
		respondStorageError(w, err, "Failed to list top-ups")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"topups":     txs,
	})
}

// limitParam reads ?limit=, capped at maxUsageLimit
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultUsageLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxUsageLimit), true
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return 0, false
	}
	return id, true
}

func respondStorageError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, storage.ErrAccountNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, storage.ErrAPIKeyNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "API key not found")
	case errors.Is(err, storage.ErrInvalidAmount):
		utils.RespondWithError(w, http.StatusBadRequest, "Amount must be positive")
	default:
		logging.Errorf("%s: %v", message, err)
		utils.RespondWithError(w, http.StatusInternalServerError, message)
	}
}
