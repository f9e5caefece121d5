package llm

import "net/http"

// Endpoints overrides provider base URLs. Empty fields use the public APIs.
// Ollama is registered only when its URL is set.
type Endpoints struct {
	OpenAI    string `yaml:"openai"`
	Anthropic string `yaml:"anthropic"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
	Mistral   string `yaml:"mistral"`
	Cohere    string `yaml:"cohere"`
	Ollama    string `yaml:"ollama"`
}

// NewDefaultRegistry registers the six hosted providers, plus Ollama when configured.
func NewDefaultRegistry(ep Endpoints, client *http.Client) *Registry {
	client = defaultHTTPClient(client)
	r := NewRegistry(
		NewOpenAIAdapter(ep.OpenAI, client),
		NewAnthropicAdapter(ep.Anthropic, client),
		NewGoogleAdapter(ep.Google, client),
		NewDeepSeekAdapter(ep.DeepSeek, client),
		NewMistralAdapter(ep.Mistral, client),
		NewCohereAdapter(ep.Cohere, client),
	)
	if ep.Ollama != "" {
		r.Register(NewOllamaAdapter(ep.Ollama, client))
	}
	return r
}
