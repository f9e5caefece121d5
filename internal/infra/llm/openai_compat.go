package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIDefaultBaseURL   = "https://api.openai.com/v1"
	DeepSeekDefaultBaseURL = "https://api.deepseek.com/v1"
	MistralDefaultBaseURL  = "https://api.mistral.ai/v1"
)

// ChatCompletionsAdapter serves every provider that speaks the OpenAI
// chat-completions protocol. Providers differ only by base URL and identity.
type ChatCompletionsAdapter struct {
	info       ProviderInfo
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIAdapter returns the adapter for api.openai.com.
func NewOpenAIAdapter(baseURL string, client *http.Client) *ChatCompletionsAdapter {
	return newChatCompletionsAdapter(
		ProviderInfo{ID: "openai", Name: "OpenAI", EnvKey: "OPENAI_API_KEY", Shape: ShapeChatCompletions, RequiresKey: true},
		baseURL, OpenAIDefaultBaseURL, client)
}

// NewDeepSeekAdapter returns the adapter for api.deepseek.com.
func NewDeepSeekAdapter(baseURL string, client *http.Client) *ChatCompletionsAdapter {
	return newChatCompletionsAdapter(
		ProviderInfo{ID: "deepseek", Name: "DeepSeek", EnvKey: "DEEPSEEK_API_KEY", Shape: ShapeChatCompletions, RequiresKey: true},
		baseURL, DeepSeekDefaultBaseURL, client)
}

// NewMistralAdapter returns the adapter for api.mistral.ai.
func NewMistralAdapter(baseURL string, client *http.Client) *ChatCompletionsAdapter {
	return newChatCompletionsAdapter(
		ProviderInfo{ID: "mistral", Name: "Mistral", EnvKey: "MISTRAL_API_KEY", Shape: ShapeChatCompletions, RequiresKey: true},
		baseURL, MistralDefaultBaseURL, client)
}

func newChatCompletionsAdapter(info ProviderInfo, baseURL, fallback string, client *http.Client) *ChatCompletionsAdapter {
	if baseURL == "" {
		baseURL = fallback
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ChatCompletionsAdapter{info: info, baseURL: baseURL, httpClient: defaultHTTPClient(client)}
}

func (a *ChatCompletionsAdapter) Info() ProviderInfo { return a.info }

func (a *ChatCompletionsAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Input.Messages))
	for _, m := range req.Input.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(req.Model),
		Messages:         msgs,
		Temperature:      openai.Float(req.Params.Temperature),
		TopP:             openai.Float(req.Params.TopP),
		FrequencyPenalty: openai.Float(req.Params.FrequencyPenalty),
		PresencePenalty:  openai.Float(req.Params.PresencePenalty),
	}
	if req.Params.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Params.MaxTokens))
	}

	// A client per call: the key is per-user.
	client := openai.NewClient(
		option.WithAPIKey(req.APIKey),
		option.WithBaseURL(a.baseURL),
		option.WithHTTPClient(a.httpClient),
		option.WithMaxRetries(0),
		option.WithMiddleware(a.captureErrorBody),
	)

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", a.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return NoResponsePlaceholder, nil
	}
	return textOrPlaceholder(resp.Choices[0].Message.Content), nil
}

// captureErrorBody turns a non-2xx response into *ProviderError before the
// SDK parses it, so the body reaches the caller byte for byte.
func (a *ChatCompletionsAdapter) captureErrorBody(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	resp, err := next(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close() //nolint:errcheck
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return nil, fmt.Errorf("%s: read error response: %w", a.info.ID, readErr)
	}
	return nil, &ProviderError{
		Provider:   a.info.ID,
		Name:       a.info.Name,
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}
}

func (a *ChatCompletionsAdapter) translateError(err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   a.info.ID,
			Name:       a.info.Name,
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.RawJSON(),
		}
	}
	return fmt.Errorf("%s request failed: %w", a.info.Name, err)
}
