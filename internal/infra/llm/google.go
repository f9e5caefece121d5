package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const GoogleDefaultBaseURL = "https://generativelanguage.googleapis.com"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// GoogleAdapter calls the Gemini generateContent endpoint. The key travels
// in the query string.
type GoogleAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// NewGoogleAdapter uses GoogleDefaultBaseURL when baseURL is empty.
func NewGoogleAdapter(baseURL string, client *http.Client) *GoogleAdapter {
	if baseURL == "" {
		baseURL = GoogleDefaultBaseURL
	}
	return &GoogleAdapter{baseURL: strings.TrimRight(baseURL, "/"), httpClient: defaultHTTPClient(client)}
}

func (a *GoogleAdapter) Info() ProviderInfo {
	return ProviderInfo{ID: "google", Name: "Google", EnvKey: "GOOGLE_API_KEY", Shape: ShapeGemini, RequiresKey: true}
}

func (a *GoogleAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	contents := make([]geminiContent, len(req.Input.Messages))
	for i, m := range req.Input.Messages {
		contents[i] = geminiContent{Role: m.Role, Parts: []geminiPart{{Text: m.Content}}}
	}

	body := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.Params.MaxTokens,
			Temperature:     req.Params.Temperature,
			TopP:            req.Params.TopP,
		},
	}
	endpoint := a.baseURL + "/v1beta/models/" + url.PathEscape(req.Model) +
		":generateContent?key=" + url.QueryEscape(req.APIKey)

	var resp geminiResponse
	if err := postJSON(ctx, a.httpClient, a.Info(), endpoint, nil, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return NoResponsePlaceholder, nil
	}
	return textOrPlaceholder(resp.Candidates[0].Content.Parts[0].Text), nil
}
