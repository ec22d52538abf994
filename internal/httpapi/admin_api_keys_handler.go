package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"llm_router/internal/auth"
	"llm_router/internal/logging"
	"llm_router/internal/models"
	"llm_router/internal/storage"
	"llm_router/internal/utils"
)

// AdminAPIKeysHandler handles API key management endpoints
type AdminAPIKeysHandler struct {
	store storage.Store
}

// NewAdminAPIKeysHandler creates a new admin API keys handler
func NewAdminAPIKeysHandler(store storage.Store) *AdminAPIKeysHandler {
	return &AdminAPIKeysHandler{store: store}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// UpdateAPIKeyRequest toggles whether a key may authorize requests
type UpdateAPIKeyRequest struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

// APIKeyCreatedResponse represents the response when creating a new API key.
// This is the only time the plaintext key is returned.
type APIKeyCreatedResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// Create handles POST /admin/accounts/{accountId}/keys
func (h *AdminAPIKeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	plaintextKey := auth.GenerateAPIKey()
	key := &models.APIKey{
		AccountID: accountID,
		Name:      req.Name,
		KeyHash:   auth.HashAPIKey(plaintextKey),
	}
	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		respondStorageError(w, err, "Failed to create API key")
		return
	}

	logging.Infof("api key %d (%s) created for account %d", key.ID, key.Name, accountID)

	utils.RespondWithJSON(w, http.StatusCreated, APIKeyCreatedResponse{APIKey: key, Key: plaintextKey})
}

// List handles GET /admin/accounts/{accountId}/keys
func (h *AdminAPIKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetAccount(r.Context(), accountID); err != nil {
		respondStorageError(w, err, "Failed to get account")
		return
	}

	keys, err := h.store.ListAPIKeys(r.Context(), accountID)
	if err != nil {
		respondStorageError(w, err, "Failed to list API keys")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"keys":       keys,
	})
}

// Update handles PATCH /admin/accounts/{accountId}/keys/{keyId}
func (h *AdminAPIKeysHandler) Update(w http.ResponseWriter, r *http.Request) {
	key, ok := h.ownedKey(w, r)
	if !ok {
		return
	}

	var req UpdateAPIKeyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.store.SetAPIKeyDisabled(r.Context(), key.ID, *req.Disabled)
	if err != nil {
		respondStorageError(w, err, "Failed to update API key")
		return
	}

	logging.Infof("api key %d of account %d set disabled=%t", updated.ID, updated.AccountID, updated.Disabled)

	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /admin/accounts/{accountId}/keys/{keyId}. The key is
// soft-deleted and rejected from then on.
func (h *AdminAPIKeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := h.ownedKey(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteAPIKey(r.Context(), key.ID); err != nil {
		respondStorageError(w, err, "Failed to delete API key")
		return
	}

	logging.Infof("api key %d of account %d deleted", key.ID, key.AccountID)

	w.WriteHeader(http.StatusNoContent)
}

// ownedKey loads the {keyId} key and checks it belongs to {accountId}
func (h *AdminAPIKeysHandler) ownedKey(w http.ResponseWriter, r *http.Request) (*models.APIKey, bool) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return nil, false
	}
	keyID, err := strconv.ParseInt(chi.URLParam(r, "keyId"), 10, 64)
	if err != nil || keyID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid API key ID")
		return nil, false
	}

	key, err := h.store.GetAPIKey(r.Context(), keyID)
	if err != nil {
		respondStorageError(w, err, "Failed to get API key")
		return nil, false
	}
	if key.AccountID != accountID {
		utils.RespondWithError(w, http.StatusNotFound, "API key not found")
		return nil, false
	}
	return key, true
}
