package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/llmhub/internal/domain/settings"
)

// SettingsStore is satisfied by *settings.Service.
type SettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (settings.APIKeys, bool, error)
	SaveUserSettings(ctx context.Context, userID string, keys settings.APIKeys) error
	GetModelSettings(ctx context.Context, userID, provider, model string) (settings.ModelSettings, bool, error)
	SaveModelSettings(ctx context.Context, userID, provider, model string, ms settings.ModelSettings) error
}

type SettingsHandler struct {
	settings SettingsStore
}

func NewSettingsHandler(s SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: s}
}

// ModelSettingsResponse reports whether the values are stored or defaults.
type ModelSettingsResponse struct {
	settings.ModelSettings
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	IsDefault bool   `json:"isDefault"`
}

// GetAPIKeys handles GET /api/v1/settings/api-keys. Keys are always masked.
func (h *SettingsHandler) GetAPIKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	keys, _, err := h.settings.GetUserSettings(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, keys.Masked())
}

// PutAPIKeys handles PUT /api/v1/settings/api-keys. The body replaces the
// whole record; a field echoing the masked form of the stored key keeps it.
func (h *SettingsHandler) PutAPIKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req settings.APIKeys
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current, _, err := h.settings.GetUserSettings(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	merged := settings.APIKeys{
		OpenAI:    keepIfMasked(req.OpenAI, current.OpenAI),
		Anthropic: keepIfMasked(req.Anthropic, current.Anthropic),
		Google:    keepIfMasked(req.Google, current.Google),
		DeepSeek:  keepIfMasked(req.DeepSeek, current.DeepSeek),
		Mistral:   keepIfMasked(req.Mistral, current.Mistral),
		Cohere:    keepIfMasked(req.Cohere, current.Cohere),
	}

	if err := h.settings.SaveUserSettings(r.Context(), userID, merged); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, merged.Masked())
}

// modelSettingsKey reads {provider} and the rest of the path as the model
// name, so names such as "library/llama3" stay addressable.
func modelSettingsKey(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	provider, model := chi.URLParam(r, "provider"), chi.URLParam(r, "*")
	if provider == "" || model == "" {
		writeError(w, http.StatusBadRequest, "provider and model are required")
		return "", "", false
	}
	return provider, model, true
}

// GetModelSettings handles GET /api/v1/settings/models/{provider}/{model...}.
// Missing rows are answered with the defaults.
func (h *SettingsHandler) GetModelSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	provider, model, ok := modelSettingsKey(w, r)
	if !ok {
		return
	}
	ms, found, err := h.settings.GetModelSettings(r.Context(), userID, provider, model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load model settings")
		return
	}
	if !found {
		ms = settings.Defaults()
	}
	writeJSON(w, http.StatusOK, ModelSettingsResponse{ModelSettings: ms, Provider: provider, Model: model, IsDefault: !found})
}

// PutModelSettings handles PUT /api/v1/settings/models/{provider}/{model...}.
func (h *SettingsHandler) PutModelSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	provider, model, ok := modelSettingsKey(w, r)
	if !ok {
		return
	}
	ms := settings.Defaults()
	if err := decodeJSON(w, r, &ms); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.settings.SaveModelSettings(r.Context(), userID, provider, model, ms)
	var invalid *settings.InvalidSettingsError
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, invalid.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save model settings")
		return
	}
	writeJSON(w, http.StatusOK, ModelSettingsResponse{ModelSettings: ms, Provider: provider, Model: model})
}

func keepIfMasked(incoming, stored string) string {
	if stored != "" && incoming == settings.MaskKey(stored) {
		return stored
	}
	return incoming
}
