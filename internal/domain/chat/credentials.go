package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matiasleandrokruk/llmhub/internal/domain/settings"
	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

// MissingCredentialError means no key was found for a provider that needs one.
type MissingCredentialError struct {
	Provider string
	Name     string
	EnvKey   string
}

func (e *MissingCredentialError) Error() string {
	if e.Provider == "openai" {
		return "OpenAI API key not configured. Please add your API key in settings."
	}
	return fmt.Sprintf("%s API key not configured. Please add %s to your environment variables or configure it in settings.",
		e.Name, e.EnvKey)
}

// UserKeyStore returns a user's stored key for a provider, "" when unset.
type UserKeyStore interface {
	GetUserAPIKey(ctx context.Context, userID, provider string) (string, error)
}

// LookupEnvFunc has the signature of os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// CredentialResolver picks the API key for one call: the platform key
// (OpenAI only), then the user's stored key, then the process environment.
type CredentialResolver struct {
	platformOpenAIKey string
	userKeys          UserKeyStore
	lookupEnv         LookupEnvFunc
}

func NewCredentialResolver(platformOpenAIKey string, userKeys UserKeyStore, lookupEnv LookupEnvFunc) *CredentialResolver {
	if lookupEnv == nil {
		lookupEnv = func(string) (string, bool) { return "", false }
	}
	return &CredentialResolver{
		platformOpenAIKey: strings.TrimSpace(platformOpenAIKey),
		userKeys:          userKeys,
		lookupEnv:         lookupEnv,
	}
}

// Resolve returns "" without error for providers that need no key.
func (r *CredentialResolver) Resolve(ctx context.Context, userID string, info llm.ProviderInfo) (string, error) {
	if !info.RequiresKey {
		return "", nil
	}
	if info.ID == "openai" && r.platformOpenAIKey != "" {
		return r.platformOpenAIKey, nil
	}

	if r.userKeys != nil {
		key, err := r.userKeys.GetUserAPIKey(ctx, userID, info.ID)
		switch {
		case errors.Is(err, settings.ErrUnknownKeyProvider):
		case err != nil:
			return "", fmt.Errorf("chat: load user api key: %w", err)
		case key != "":
			return key, nil
		}
	}

	if info.EnvKey != "" {
		if v, ok := r.lookupEnv(info.EnvKey); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", &MissingCredentialError{Provider: info.ID, Name: info.Name, EnvKey: info.EnvKey}
}
