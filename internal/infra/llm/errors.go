package llm

import "fmt"

// ProviderError reports a non-2xx provider response. Body is kept verbatim.
type ProviderError struct {
	Provider   string
	Name       string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %s", e.Name, e.Body)
}

// UnsupportedProviderError is returned by the registry for unknown provider ids.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return "Unsupported provider: " + e.Provider
}
