package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"llm_router/internal/models"
	"llm_router/internal/storage"
	"llm_router/internal/utils"
)

// CatalogHandler serves the public, read-only catalog endpoints
type CatalogHandler struct {
	store storage.Store
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(store storage.Store) *CatalogHandler {
	return &CatalogHandler{store: store}
}

// ModelDetailResponse is a model with the providers serving it
type ModelDetailResponse struct {
	*models.Model
	Providers []*models.ModelProviderMapping `json:"providers"`
}

// ListModels handles GET /api/v1/models
func (h *CatalogHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListModels(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"models": list})
}

// GetModel handles GET /api/v1/models/{modelId}
func (h *CatalogHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "modelId"), 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid model ID")
		return
	}

	model, err := h.store.ModelByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		writeAPIError(w, err)
		return
	}

	mappings, err := h.store.MappingsForModel(r.Context(), model.ID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ModelDetailResponse{Model: model, Providers: mappings})
}

// ListProviders handles GET /api/v1/providers
func (h *CatalogHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListProviders(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"providers": list})
}

// ListMappings handles GET /api/v1/mappings
func (h *CatalogHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListMappings(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"mappings": list})
}
