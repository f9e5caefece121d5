// Package llm holds the provider-agnostic chat types, the message normalizer,
// the provider registry and one adapter per hosted LLM API.
package llm

// Conversation roles as stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// NoResponsePlaceholder is returned when a provider answers 2xx without text.
const NoResponsePlaceholder = "No response generated"

// Message is one role-tagged turn. After normalization Role may hold a
// provider-specific value such as "model" or "CHATBOT".
type Message struct {
	Role    string
	Content string
}

// Shape identifies how a provider expects the conversation to be laid out.
type Shape int

const (
	// ShapeChatCompletions accepts inline system/user/assistant roles.
	ShapeChatCompletions Shape = iota
	// ShapeAnthropic carries the system prompt in a separate top-level field.
	ShapeAnthropic
	// ShapeGemini uses user/model roles and has no system concept.
	ShapeGemini
	// ShapeCohere splits history from the outgoing prompt.
	ShapeCohere
)

func (s Shape) String() string {
	switch s {
	case ShapeChatCompletions:
		return "chat_completions"
	case ShapeAnthropic:
		return "anthropic"
	case ShapeGemini:
		return "gemini"
	case ShapeCohere:
		return "cohere"
	default:
		return "unknown"
	}
}

// Normalized is the read-time projection of a conversation for one shape.
type Normalized struct {
	Messages []Message
	// System is set only for ShapeAnthropic.
	System string
	// Prompt is set only for ShapeCohere.
	Prompt string
}

// Params are the sampling parameters sent with every request.
type Params struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// GenerateRequest is the input to Adapter.Generate.
type GenerateRequest struct {
	Model  string
	APIKey string
	Input  Normalized
	Params Params
}

// ProviderInfo describes a registered adapter.
type ProviderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// EnvKey names the process-wide fallback credential variable.
	EnvKey      string `json:"envKey,omitempty"`
	Shape       Shape  `json:"-"`
	RequiresKey bool   `json:"requiresKey"`
}
