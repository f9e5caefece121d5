package llm

import "context"

// Adapter translates a normalized conversation into one provider's wire
// request, performs a single synchronous call and returns the reply text.
//
// Implementations return *ProviderError for non-2xx responses and
// NoResponsePlaceholder when a 2xx response carries no text.
type Adapter interface {
	Info() ProviderInfo
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
