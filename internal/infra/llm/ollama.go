package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const OllamaDefaultBaseURL = "http://localhost:11434"

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaChatMessage `json:"message"`
	DoneReason string            `json:"done_reason"`
	Done       bool              `json:"done"`
}

// OllamaAdapter talks to a local Ollama daemon via POST /api/chat. It needs
// no credential.
type OllamaAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaAdapter uses OllamaDefaultBaseURL when baseURL is empty.
func NewOllamaAdapter(baseURL string, client *http.Client) *OllamaAdapter {
	if baseURL == "" {
		baseURL = OllamaDefaultBaseURL
	}
	return &OllamaAdapter{baseURL: strings.TrimRight(baseURL, "/"), httpClient: defaultHTTPClient(client)}
}

func (a *OllamaAdapter) Info() ProviderInfo {
	return ProviderInfo{ID: "ollama", Name: "Ollama", Shape: ShapeChatCompletions, RequiresKey: false}
}

func (a *OllamaAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	msgs := make([]ollamaChatMessage, len(req.Input.Messages))
	for i, m := range req.Input.Messages {
		msgs[i] = ollamaChatMessage(m)
	}

	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   false,
		Options:  buildOllamaOptions(req.Params),
	}

	var resp ollamaChatResponse
	if err := postJSON(ctx, a.httpClient, a.Info(), a.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return "", err
	}
	return textOrPlaceholder(resp.Message.Content), nil
}

// HealthCheck calls GET /api/tags and returns nil when the daemon answers 200.
func (a *OllamaAdapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: build request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama healthcheck: status %d", resp.StatusCode)
	}
	return nil
}

func buildOllamaOptions(p Params) map[string]any {
	opts := map[string]any{
		"temperature": p.Temperature,
		"top_p":       p.TopP,
	}
	if p.MaxTokens > 0 {
		opts["num_predict"] = p.MaxTokens
	}
	if p.FrequencyPenalty != 0 {
		opts["frequency_penalty"] = p.FrequencyPenalty
	}
	if p.PresencePenalty != 0 {
		opts["presence_penalty"] = p.PresencePenalty
	}
	return opts
}
