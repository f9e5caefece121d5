package llm

import (
	"context"
	"net/http"
	"strings"
)

const CohereDefaultBaseURL = "https://api.cohere.ai"

type cohereHistoryEntry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Cohere has no frequency/presence penalty here and names top-p "p".
type cohereRequest struct {
	Model       string               `json:"model"`
	Message     string               `json:"message"`
	ChatHistory []cohereHistoryEntry `json:"chat_history"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
	P           float64              `json:"p"`
}

type cohereResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// CohereAdapter calls the v1 chat endpoint.
type CohereAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// NewCohereAdapter uses CohereDefaultBaseURL when baseURL is empty.
func NewCohereAdapter(baseURL string, client *http.Client) *CohereAdapter {
	if baseURL == "" {
		baseURL = CohereDefaultBaseURL
	}
	return &CohereAdapter{baseURL: strings.TrimRight(baseURL, "/"), httpClient: defaultHTTPClient(client)}
}

func (a *CohereAdapter) Info() ProviderInfo {
	return ProviderInfo{ID: "cohere", Name: "Cohere", EnvKey: "COHERE_API_KEY", Shape: ShapeCohere, RequiresKey: true}
}

func (a *CohereAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	history := make([]cohereHistoryEntry, len(req.Input.Messages))
	for i, m := range req.Input.Messages {
		history[i] = cohereHistoryEntry{Role: m.Role, Message: m.Content}
	}

	body := cohereRequest{
		Model:       req.Model,
		Message:     req.Input.Prompt,
		ChatHistory: history,
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
		P:           req.Params.TopP,
	}
	headers := http.Header{}
	headers.Set(headerAuth, "Bearer "+req.APIKey)

	var resp cohereResponse
	if err := postJSON(ctx, a.httpClient, a.Info(), a.baseURL+"/v1/chat", headers, body, &resp); err != nil {
		return "", err
	}
	return textOrPlaceholder(resp.Text), nil
}
