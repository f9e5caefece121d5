package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

var testParams = Params{Temperature: 0.5, MaxTokens: 256, TopP: 0.9, FrequencyPenalty: 0.1, PresencePenalty: 0.2}

// captured records the last request seen by a fake provider.
type captured struct {
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func fakeProvider(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestChatCompletionsAdapter_Success(t *testing.T) {
	t.Parallel()

	srv, c := fakeProvider(t, http.StatusOK,
		`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
		  "choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hi there"}}]}`)

	a := NewOpenAIAdapter(srv.URL+"/v1", nil)
	got, err := a.Generate(context.Background(), GenerateRequest{
		Model:  "gpt-4o-mini",
		APIKey: "sk-test",
		Input:  Normalize([]Message{{Role: RoleUser, Content: "Hello"}}, "Be brief", ShapeChatCompletions),
		Params: testParams,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Hi there" {
		t.Errorf("reply = %q", got)
	}
	if c.path != "/v1/chat/completions" {
		t.Errorf("path = %q", c.path)
	}
	if auth := c.header.Get("Authorization"); auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if c.body["model"] != "gpt-4o-mini" || c.body["max_tokens"] != float64(256) ||
		c.body["temperature"] != 0.5 || c.body["top_p"] != 0.9 ||
		c.body["frequency_penalty"] != 0.1 || c.body["presence_penalty"] != 0.2 {
		t.Errorf("body = %+v", c.body)
	}
	msgs, _ := c.body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v; want system + user", msgs)
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "Be brief" {
		t.Errorf("first message = %+v", first)
	}
}

func TestChatCompletionsAdapter_ErrorBodyVerbatim(t *testing.T) {
	t.Parallel()

	body := `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`
	srv, _ := fakeProvider(t, http.StatusUnauthorized, body)

	a := NewDeepSeekAdapter(srv.URL, nil)
	_, err := a.Generate(context.Background(), GenerateRequest{Model: "deepseek-chat", APIKey: "k",
		Input: Normalized{Messages: []Message{{Role: RoleUser, Content: "x"}}}, Params: testParams})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v; want *ProviderError", err)
	}
	if perr.Provider != "deepseek" || perr.StatusCode != http.StatusUnauthorized || perr.Body != body {
		t.Errorf("ProviderError = %+v", perr)
	}
	if err.Error() != "DeepSeek API error: "+body {
		t.Errorf("message = %q", err.Error())
	}
}

func TestChatCompletionsAdapter_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv, _ := fakeProvider(t, http.StatusOK, `{"id":"c1","object":"chat.completion","choices":[]}`)
	a := NewMistralAdapter(srv.URL, nil)
	got, err := a.Generate(context.Background(), GenerateRequest{Model: "mistral-small-latest", APIKey: "k",
		Input: Normalized{Messages: []Message{{Role: RoleUser, Content: "x"}}}, Params: testParams})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != NoResponsePlaceholder {
		t.Errorf("reply = %q; want placeholder", got)
	}
}

func TestAnthropicAdapter(t *testing.T) {
	t.Parallel()

	srv, c := fakeProvider(t, http.StatusOK, `{"content":[{"type":"text","text":"Bonjour"}],"stop_reason":"end_turn"}`)
	a := NewAnthropicAdapter(srv.URL, nil)

	in := Normalize([]Message{{Role: RoleSystem, Content: "S"}, {Role: RoleUser, Content: "A"}}, "", ShapeAnthropic)
	got, err := a.Generate(context.Background(), GenerateRequest{Model: "claude-3-5-haiku-20241022", APIKey: "ak", Input: in, Params: testParams})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Bonjour" {
		t.Errorf("reply = %q", got)
	}
	if c.path != "/v1/messages" {
		t.Errorf("path = %q", c.path)
	}
	if c.header.Get("x-api-key") != "ak" || c.header.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("headers = %v", c.header)
	}
	if c.body["system"] != "S" || c.body["max_tokens"] != float64(256) {
		t.Errorf("body = %+v", c.body)
	}
	if _, ok := c.body["frequency_penalty"]; ok {
		t.Error("anthropic request must not carry frequency_penalty")
	}
	msgs, _ := c.body["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("messages = %+v; want only the user turn", msgs)
	}
}

func TestAnthropicAdapter_NoContent(t *testing.T) {
	t.Parallel()

	srv, _ := fakeProvider(t, http.StatusOK, `{"content":[]}`)
	got, err := NewAnthropicAdapter(srv.URL, nil).Generate(context.Background(), GenerateRequest{Params: testParams})
	if err != nil || got != NoResponsePlaceholder {
		t.Fatalf("got %q, %v; want placeholder", got, err)
	}
}

func TestGoogleAdapter(t *testing.T) {
	t.Parallel()

	srv, c := fakeProvider(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Hola"}]}}]}`)
	a := NewGoogleAdapter(srv.URL, nil)

	in := Normalize([]Message{{Role: RoleUser, Content: "A"}, {Role: RoleAssistant, Content: "B"}}, "", ShapeGemini)
	got, err := a.Generate(context.Background(), GenerateRequest{Model: "gemini-1.5-flash", APIKey: "g-key", Input: in, Params: testParams})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Hola" {
		t.Errorf("reply = %q", got)
	}
	if c.path != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Errorf("path = %q", c.path)
	}
	if c.query != "key=g-key" {
		t.Errorf("query = %q", c.query)
	}
	cfg, _ := c.body["generationConfig"].(map[string]any)
	if cfg["maxOutputTokens"] != float64(256) || cfg["topP"] != 0.9 || cfg["temperature"] != 0.5 {
		t.Errorf("generationConfig = %+v", cfg)
	}
	contents, _ := c.body["contents"].([]any)
	second, _ := contents[1].(map[string]any)
	if second["role"] != "model" {
		t.Errorf("assistant turn role = %v; want model", second["role"])
	}
}

func TestGoogleAdapter_ErrorAndMissingText(t *testing.T) {
	t.Parallel()

	srv, _ := fakeProvider(t, http.StatusBadRequest, `API key not valid`)
	_, err := NewGoogleAdapter(srv.URL, nil).Generate(context.Background(), GenerateRequest{Model: "m", Params: testParams})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Body != "API key not valid" {
		t.Fatalf("err = %v; want ProviderError with raw body", err)
	}

	srv2, _ := fakeProvider(t, http.StatusOK, `{"candidates":[]}`)
	got, err := NewGoogleAdapter(srv2.URL, nil).Generate(context.Background(), GenerateRequest{Model: "m", Params: testParams})
	if err != nil || got != NoResponsePlaceholder {
		t.Fatalf("got %q, %v; want placeholder", got, err)
	}
}

func TestGoogleAdapter_TransportErrorHidesKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	const key = "AIzaSECRETKEY123"
	_, err := NewGoogleAdapter(baseURL, nil).Generate(context.Background(), GenerateRequest{
		Model: "gemini-pro", APIKey: key, Params: testParams,
		Input: Normalize([]Message{{Role: RoleUser, Content: "hi"}}, "", ShapeGemini),
	})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), key) {
		t.Fatalf("api key in error text: %v", err)
	}
	if !strings.Contains(err.Error(), "Google request failed") {
		t.Errorf("err = %v; want provider name prefix", err)
	}
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		t.Fatalf("err = %v; want wrapped *url.Error", err)
	}
}

func TestRedactURLError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	tests := []struct {
		name string
		in   error
		want string
	}{
		{"query stripped", &url.Error{Op: "Post", URL: "http://h/p?key=secret", Err: cause}, `Post "http://h/p": connection refused`},
		{"no query untouched", &url.Error{Op: "Post", URL: "http://h/p", Err: cause}, `Post "http://h/p": connection refused`},
		{"unparseable url", &url.Error{Op: "Post", URL: "http://h/%zz?key=secret", Err: cause}, `Post "[redacted]": connection refused`},
		{"not a url error", cause, "connection refused"},
	}
	for _, tt := range tests {
		if got := redactURLError(tt.in).Error(); got != tt.want {
			t.Errorf("%s: got %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestCohereAdapter(t *testing.T) {
	t.Parallel()

	srv, c := fakeProvider(t, http.StatusOK, `{"text":"Sure"}`)
	in := Normalize([]Message{
		{Role: RoleUser, Content: "A"},
		{Role: RoleAssistant, Content: "B"},
		{Role: RoleUser, Content: "C"},
	}, "", ShapeCohere)

	got, err := NewCohereAdapter(srv.URL, nil).Generate(context.Background(),
		GenerateRequest{Model: "command-r", APIKey: "co", Input: in, Params: testParams})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Sure" {
		t.Errorf("reply = %q", got)
	}
	if c.path != "/v1/chat" || c.header.Get("Authorization") != "Bearer co" {
		t.Errorf("path=%q auth=%q", c.path, c.header.Get("Authorization"))
	}
	if c.body["message"] != "C" || c.body["p"] != 0.9 {
		t.Errorf("body = %+v", c.body)
	}
	if _, ok := c.body["presence_penalty"]; ok {
		t.Error("cohere request must not carry presence_penalty")
	}
	hist, _ := c.body["chat_history"].([]any)
	if len(hist) != 2 {
		t.Fatalf("chat_history = %+v", hist)
	}
	h1, _ := hist[1].(map[string]any)
	if h1["role"] != "CHATBOT" || h1["message"] != "B" {
		t.Errorf("chat_history[1] = %+v", h1)
	}
}

func TestOllamaAdapter(t *testing.T) {
	t.Parallel()

	srv, c := fakeProvider(t, http.StatusOK, `{"message":{"role":"assistant","content":"local"},"done":true}`)
	a := NewOllamaAdapter(srv.URL, nil)
	got, err := a.Generate(context.Background(), GenerateRequest{Model: "llama3.2:3b",
		Input: Normalized{Messages: []Message{{Role: RoleUser, Content: "x"}}}, Params: testParams})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "local" {
		t.Errorf("reply = %q", got)
	}
	if c.path != "/api/chat" || c.body["stream"] != false {
		t.Errorf("path=%q body=%+v", c.path, c.body)
	}
	opts, _ := c.body["options"].(map[string]any)
	if opts["num_predict"] != float64(256) {
		t.Errorf("options = %+v", opts)
	}
}

func TestOllamaAdapter_HealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"models":[]}`)
	}))
	defer srv.Close()

	if err := NewOllamaAdapter(srv.URL, nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestPostJSON_DecodeError(t *testing.T) {
	t.Parallel()

	srv, _ := fakeProvider(t, http.StatusOK, `not json`)
	_, err := NewCohereAdapter(srv.URL, nil).Generate(context.Background(), GenerateRequest{Params: testParams})
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("err = %v; want decode error", err)
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		t.Fatal("decode failure must not be a ProviderError")
	}
}
