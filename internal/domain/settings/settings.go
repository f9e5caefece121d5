// Package settings stores per-user provider API keys and per-(user, provider,
// model) generation settings, and resolves the effective generation parameters.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/go-playground/validator/v10"

	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

// Providers that accept a user-stored API key.
var KeyProviders = []string{"openai", "anthropic", "google", "deepseek", "mistral", "cohere"}

var ErrUnknownKeyProvider = errors.New("settings: provider does not take a stored api key")

// InvalidSettingsError reports the first failed validation rule.
type InvalidSettingsError struct {
	Field string
	Rule  string
	Param string
}

func (e *InvalidSettingsError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("invalid %s: must satisfy %s=%s", e.Field, e.Rule, e.Param)
	}
	return fmt.Sprintf("invalid %s: must satisfy %s", e.Field, e.Rule)
}

// APIKeys is the whole UserSettings record. Empty strings mean "not set".
type APIKeys struct {
	OpenAI    string `json:"openaiApiKey"`
	Anthropic string `json:"anthropicApiKey"`
	Google    string `json:"googleApiKey"`
	DeepSeek  string `json:"deepseekApiKey"`
	Mistral   string `json:"mistralApiKey"`
	Cohere    string `json:"cohereApiKey"`
}

// Get returns the key stored for provider.
func (k APIKeys) Get(provider string) string {
	switch provider {
	case "openai":
		return k.OpenAI
	case "anthropic":
		return k.Anthropic
	case "google":
		return k.Google
	case "deepseek":
		return k.DeepSeek
	case "mistral":
		return k.Mistral
	case "cohere":
		return k.Cohere
	}
	return ""
}

// Masked keeps only a short prefix and the last four characters of each key.
func (k APIKeys) Masked() APIKeys {
	return APIKeys{
		OpenAI:    MaskKey(k.OpenAI),
		Anthropic: MaskKey(k.Anthropic),
		Google:    MaskKey(k.Google),
		DeepSeek:  MaskKey(k.DeepSeek),
		Mistral:   MaskKey(k.Mistral),
		Cohere:    MaskKey(k.Cohere),
	}
}

// MaskKey renders "sk-...wxyz"; keys of 8 characters or fewer become "****".
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

// ModelSettings is one (user, provider, model) record, always written whole.
type ModelSettings struct {
	Temperature      float64 `db:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int     `db:"max_tokens" json:"maxTokens" validate:"gte=1,lte=1000000"`
	TopP             float64 `db:"top_p" json:"topP" validate:"gte=0,lte=1"`
	FrequencyPenalty float64 `db:"frequency_penalty" json:"frequencyPenalty" validate:"gte=-2,lte=2"`
	PresencePenalty  float64 `db:"presence_penalty" json:"presencePenalty" validate:"gte=-2,lte=2"`
	SystemPrompt     string  `db:"system_prompt" json:"systemPrompt" validate:"max=32000"`
}

// Defaults apply when no ModelSettings row exists.
func Defaults() ModelSettings {
	return ModelSettings{
		Temperature:      0.7,
		MaxTokens:        2048,
		TopP:             1.0,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		SystemPrompt:     "",
	}
}

// Params converts to the adapter-facing parameter set.
func (m ModelSettings) Params() llm.Params {
	return llm.Params{
		Temperature:      m.Temperature,
		MaxTokens:        m.MaxTokens,
		TopP:             m.TopP,
		FrequencyPenalty: m.FrequencyPenalty,
		PresencePenalty:  m.PresencePenalty,
	}
}

// Service reads and writes settings. All calls take an explicit user id.
type Service struct {
	db       *sql.DB
	validate *validator.Validate
	now      func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, validate: validator.New(), now: time.Now}
}

type userSettingsRow struct {
	OpenAI    sql.NullString `db:"openai_api_key"`
	Anthropic sql.NullString `db:"anthropic_api_key"`
	Google    sql.NullString `db:"google_api_key"`
	DeepSeek  sql.NullString `db:"deepseek_api_key"`
	Mistral   sql.NullString `db:"mistral_api_key"`
	Cohere    sql.NullString `db:"cohere_api_key"`
}

// GetUserSettings returns the stored keys; found is false when the user has none.
func (s *Service) GetUserSettings(ctx context.Context, userID string) (keys APIKeys, found bool, err error) {
	var row userSettingsRow
	err = sqlscan.Get(ctx, s.db, &row, `
		SELECT openai_api_key, anthropic_api_key, google_api_key,
		       deepseek_api_key, mistral_api_key, cohere_api_key
		FROM user_settings WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return APIKeys{}, false, nil
	}
	if err != nil {
		return APIKeys{}, false, fmt.Errorf("settings: load user settings: %w", err)
	}
	return APIKeys{
		OpenAI:    row.OpenAI.String,
		Anthropic: row.Anthropic.String,
		Google:    row.Google.String,
		DeepSeek:  row.DeepSeek.String,
		Mistral:   row.Mistral.String,
		Cohere:    row.Cohere.String,
	}, true, nil
}

// SaveUserSettings replaces the whole record; omitted keys are cleared.
func (s *Service) SaveUserSettings(ctx context.Context, userID string, keys APIKeys) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, openai_api_key, anthropic_api_key, google_api_key,
		                           deepseek_api_key, mistral_api_key, cohere_api_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			openai_api_key    = excluded.openai_api_key,
			anthropic_api_key = excluded.anthropic_api_key,
			google_api_key    = excluded.google_api_key,
			deepseek_api_key  = excluded.deepseek_api_key,
			mistral_api_key   = excluded.mistral_api_key,
			cohere_api_key    = excluded.cohere_api_key,
			updated_at        = excluded.updated_at
	`, userID, nullable(keys.OpenAI), nullable(keys.Anthropic), nullable(keys.Google),
		nullable(keys.DeepSeek), nullable(keys.Mistral), nullable(keys.Cohere),
		s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("settings: save user settings: %w", err)
	}
	return nil
}

// GetUserAPIKey returns the user's key for provider, or "" when absent.
func (s *Service) GetUserAPIKey(ctx context.Context, userID, provider string) (string, error) {
	if !isKeyProvider(provider) {
		return "", ErrUnknownKeyProvider
	}
	keys, _, err := s.GetUserSettings(ctx, userID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(keys.Get(provider)), nil
}

// GetModelSettings returns the stored row; found is false when absent.
func (s *Service) GetModelSettings(ctx context.Context, userID, provider, model string) (ms ModelSettings, found bool, err error) {
	err = sqlscan.Get(ctx, s.db, &ms, `
		SELECT temperature, max_tokens, top_p, frequency_penalty, presence_penalty, system_prompt
		FROM model_settings WHERE user_id = ? AND provider = ? AND model = ?`, userID, provider, model)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelSettings{}, false, nil
	}
	if err != nil {
		return ModelSettings{}, false, fmt.Errorf("settings: load model settings: %w", err)
	}
	return ms, true, nil
}

// SaveModelSettings validates and upserts the whole record for the triple.
func (s *Service) SaveModelSettings(ctx context.Context, userID, provider, model string, ms ModelSettings) error {
	if err := s.validate.Struct(ms); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &InvalidSettingsError{Field: verrs[0].Field(), Rule: verrs[0].Tag(), Param: verrs[0].Param()}
		}
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_settings (user_id, provider, model, temperature, max_tokens, top_p,
		                            frequency_penalty, presence_penalty, system_prompt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, model) DO UPDATE SET
			temperature       = excluded.temperature,
			max_tokens        = excluded.max_tokens,
			top_p             = excluded.top_p,
			frequency_penalty = excluded.frequency_penalty,
			presence_penalty  = excluded.presence_penalty,
			system_prompt     = excluded.system_prompt,
			updated_at        = excluded.updated_at
	`, userID, provider, model, ms.Temperature, ms.MaxTokens, ms.TopP,
		ms.FrequencyPenalty, ms.PresencePenalty, ms.SystemPrompt,
		s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("settings: save model settings: %w", err)
	}
	return nil
}

// ResolveParams returns the stored settings for the triple, or Defaults when
// no row exists.
func (s *Service) ResolveParams(ctx context.Context, userID, provider, model string) (ModelSettings, error) {
	ms, found, err := s.GetModelSettings(ctx, userID, provider, model)
	if err != nil {
		return ModelSettings{}, err
	}
	if !found {
		return Defaults(), nil
	}
	return ms, nil
}

func isKeyProvider(provider string) bool {
	for _, p := range KeyProviders {
		if p == provider {
			return true
		}
	}
	return false
}

func nullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
