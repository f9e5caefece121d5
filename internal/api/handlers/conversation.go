package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/llmhub/internal/domain/chat"
	"github.com/matiasleandrokruk/llmhub/internal/domain/export"
	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

// ConversationStore is satisfied by *chat.Store.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID string, in chat.CreateConversationInput) (*chat.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*chat.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	RenameConversation(ctx context.Context, userID, conversationID, title string) (*chat.Conversation, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	ListMessages(ctx context.Context, userID, conversationID string) ([]chat.Message, error)
}

// MessageSender is satisfied by *chat.Orchestrator.
type MessageSender interface {
	SendMessage(ctx context.Context, in chat.SendMessageInput) (string, error)
}

type ConversationHandler struct {
	store  ConversationStore
	sender MessageSender
	logger *slog.Logger
}

func NewConversationHandler(store ConversationStore, sender MessageSender, logger *slog.Logger) *ConversationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationHandler{store: store, sender: sender, logger: logger}
}

type CreateConversationRequest struct {
	Title         string `json:"title"`
	ModelProvider string `json:"modelProvider"`
	ModelName     string `json:"modelName"`
}

type RenameConversationRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Message       string `json:"message"`
	ModelProvider string `json:"modelProvider,omitempty"`
	ModelName     string `json:"modelName,omitempty"`
}

type SendMessageResponse struct {
	Content       string `json:"content"`
	ModelProvider string `json:"modelProvider"`
	ModelName     string `json:"modelName"`
}

// CreateConversation handles POST /api/v1/conversations.
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModelProvider == "" || req.ModelName == "" {
		writeError(w, http.StatusBadRequest, "modelProvider and modelName are required")
		return
	}

	conv, err := h.store.CreateConversation(r.Context(), userID, chat.CreateConversationInput{
		Title:         req.Title,
		ModelProvider: req.ModelProvider,
		ModelName:     req.ModelName,
	})
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// ListConversations handles GET /api/v1/conversations.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	convs, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": convs})
}

// GetConversation handles GET /api/v1/conversations/{id}.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conv, err := h.store.GetConversation(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RenameConversation handles PUT /api/v1/conversations/{id}.
func (h *ConversationHandler) RenameConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req RenameConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	conv, err := h.store.RenameConversation(r.Context(), userID, chi.URLParam(r, "id"), req.Title)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// DeleteConversation handles DELETE /api/v1/conversations/{id}.
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteConversation(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /api/v1/conversations/{id}/messages.
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": msgs})
}

// SendMessage handles POST /api/v1/conversations/{id}/messages. Provider and
// model default to the ones the conversation was started with.
//
// Response codes:
//   - 200 OK: reply generated and stored
//   - 400 Bad Request: invalid body, empty message or unsupported provider
//   - 404 Not Found: conversation missing or owned by someone else
//   - 422 Unprocessable Entity: no API key configured for the provider
//   - 502 Bad Gateway: the provider answered with an error
//   - 500 Internal Server Error: anything else
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conversationID := chi.URLParam(r, "id")
	provider, model := req.ModelProvider, req.ModelName
	if provider == "" || model == "" {
		conv, err := h.store.GetConversation(r.Context(), userID, conversationID)
		if err != nil {
			h.writeChatError(w, err)
			return
		}
		if provider == "" {
			provider = conv.ModelProvider
		}
		if model == "" {
			model = conv.ModelName
		}
	}

	reply, err := h.sender.SendMessage(r.Context(), chat.SendMessageInput{
		UserID:         userID,
		ConversationID: conversationID,
		Text:           req.Message,
		Provider:       provider,
		Model:          model,
	})
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SendMessageResponse{Content: reply, ModelProvider: provider, ModelName: model})
}

// ExportConversation handles GET /api/v1/conversations/{id}/export
// ?format=json|markdown|text&metadata=true|false. Metadata defaults to true.
func (h *ConversationHandler) ExportConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	includeMetadata := true
	if v := r.URL.Query().Get("metadata"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "metadata must be true or false")
			return
		}
		includeMetadata = b
	}

	conversationID := chi.URLParam(r, "id")
	conv, err := h.store.GetConversation(r.Context(), userID, conversationID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), userID, conversationID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	doc, err := export.Render(*conv, msgs, export.Options{Format: format, IncludeMetadata: includeMetadata})
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Body) //nolint:errcheck
}

// writeChatError maps chat and provider errors to status codes.
func (h *ConversationHandler) writeChatError(w http.ResponseWriter, err error) {
	status, message := chatErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("chat request failed", "error", err)
	}
	writeError(w, status, message)
}

func chatErrorStatus(err error) (int, string) {
	var (
		unsupported *llm.UnsupportedProviderError
		missing     *chat.MissingCredentialError
		provider    *llm.ProviderError
	)
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, chat.ErrEmptyTitle), errors.Is(err, chat.ErrEmptyContent):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &unsupported):
		return http.StatusBadRequest, unsupported.Error()
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, missing.Error()
	case errors.As(err, &provider):
		return http.StatusBadGateway, provider.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
