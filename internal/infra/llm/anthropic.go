package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	AnthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"top_p"`
	System      string             `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// AnthropicAdapter calls the Messages API.
type AnthropicAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicAdapter uses AnthropicDefaultBaseURL when baseURL is empty.
func NewAnthropicAdapter(baseURL string, client *http.Client) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = AnthropicDefaultBaseURL
	}
	return &AnthropicAdapter{baseURL: strings.TrimRight(baseURL, "/"), httpClient: defaultHTTPClient(client)}
}

func (a *AnthropicAdapter) Info() ProviderInfo {
	return ProviderInfo{ID: "anthropic", Name: "Anthropic", EnvKey: "ANTHROPIC_API_KEY", Shape: ShapeAnthropic, RequiresKey: true}
}

func (a *AnthropicAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	msgs := make([]anthropicMessage, len(req.Input.Messages))
	for i, m := range req.Input.Messages {
		msgs[i] = anthropicMessage(m)
	}

	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.Params.MaxTokens,
		Messages:    msgs,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		System:      req.Input.System,
	}
	headers := http.Header{}
	headers.Set("x-api-key", req.APIKey)
	headers.Set("anthropic-version", anthropicAPIVersion)

	var resp anthropicResponse
	if err := postJSON(ctx, a.httpClient, a.Info(), a.baseURL+"/v1/messages", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return NoResponsePlaceholder, nil
	}
	return textOrPlaceholder(resp.Content[0].Text), nil
}
