package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/llmhub/internal/domain/catalog"
	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

// ProviderLister is satisfied by *llm.Registry.
type ProviderLister interface {
	Providers() []llm.ProviderInfo
}

type ProviderHandler struct {
	providers ProviderLister
}

func NewProviderHandler(providers ProviderLister) *ProviderHandler {
	return &ProviderHandler{providers: providers}
}

// ListProviders handles GET /api/v1/providers.
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": h.providers.Providers()})
}

// ModelCatalog is satisfied by *catalog.Service.
type ModelCatalog interface {
	ListEnabled(ctx context.Context) ([]catalog.Model, error)
	ListAll(ctx context.Context) ([]catalog.Model, error)
	ListByCategory(ctx context.Context, category string) ([]catalog.Model, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*catalog.Model, error)
}

type ModelHandler struct {
	catalog ModelCatalog
}

func NewModelHandler(c ModelCatalog) *ModelHandler {
	return &ModelHandler{catalog: c}
}

// ListModels handles GET /api/v1/models. By default only enabled models are
// listed; ?all=true lists everything and ?category= filters by category.
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		models []catalog.Model
		err    error
	)
	switch {
	case q.Get("category") != "":
		models, err = h.catalog.ListByCategory(r.Context(), q.Get("category"))
	case q.Get("all") == "true":
		models, err = h.catalog.ListAll(r.Context())
	default:
		models, err = h.catalog.ListEnabled(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	if models == nil {
		models = []catalog.Model{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}

type UpdateModelRequest struct {
	IsEnabled *bool `json:"isEnabled"`
}

// UpdateModel handles PUT /api/v1/models/{id}. Only the enabled flag can change.
func (h *ModelHandler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	var req UpdateModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IsEnabled == nil {
		writeError(w, http.StatusBadRequest, "isEnabled is required")
		return
	}

	model, err := h.catalog.SetEnabled(r.Context(), chi.URLParam(r, "id"), *req.IsEnabled)
	if errors.Is(err, catalog.ErrModelNotFound) {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update model")
		return
	}
	writeJSON(w, http.StatusOK, model)
}
