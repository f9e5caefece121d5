// Package catalog holds the list of models users can pick from. It is seeded
// once from an embedded YAML file; afterwards only the enabled flag changes.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
	"gopkg.in/yaml.v3"

	"github.com/matiasleandrokruk/llmhub/pkg/uuid"
)

//go:embed models.yaml
var defaultModelsYAML []byte

var ErrModelNotFound = errors.New("model not found")

type Pricing struct {
	InputTokens  float64 `yaml:"input" json:"inputTokens"`
	OutputTokens float64 `yaml:"output" json:"outputTokens"`
	Currency     string  `yaml:"currency" json:"currency"`
}

type Model struct {
	ID                string   `yaml:"-" json:"id"`
	Provider          string   `yaml:"provider" json:"provider"`
	Name              string   `yaml:"name" json:"name"`
	DisplayName       string   `yaml:"display_name" json:"displayName"`
	Description       string   `yaml:"description" json:"description"`
	MaxTokens         int      `yaml:"max_tokens" json:"maxTokens"`
	SupportsStreaming bool     `yaml:"supports_streaming" json:"supportsStreaming"`
	IsEnabled         bool     `yaml:"enabled" json:"isEnabled"`
	APIKeyRequired    bool     `yaml:"api_key_required" json:"apiKeyRequired"`
	Category          string   `yaml:"category" json:"category"`
	Pricing           *Pricing `yaml:"pricing" json:"pricing,omitempty"`
}

type seedFile struct {
	Models []Model `yaml:"models"`
}

// DefaultModels parses the embedded catalog.
func DefaultModels() ([]Model, error) {
	return parseModels(defaultModelsYAML)
}

func parseModels(raw []byte) ([]Model, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse models: %w", err)
	}
	for i, m := range f.Models {
		if m.Provider == "" || m.Name == "" || m.Category == "" {
			return nil, fmt.Errorf("catalog: model %d: provider, name and category are required", i)
		}
	}
	return f.Models, nil
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type modelRow struct {
	ID                string          `db:"id"`
	Provider          string          `db:"provider"`
	Name              string          `db:"name"`
	DisplayName       string          `db:"display_name"`
	Description       string          `db:"description"`
	MaxTokens         int             `db:"max_tokens"`
	SupportsStreaming bool            `db:"supports_streaming"`
	IsEnabled         bool            `db:"is_enabled"`
	APIKeyRequired    bool            `db:"api_key_required"`
	Category          string          `db:"category"`
	PriceInput        sql.NullFloat64 `db:"price_input"`
	PriceOutput       sql.NullFloat64 `db:"price_output"`
	PriceCurrency     sql.NullString  `db:"price_currency"`
}

const selectModel = `
	SELECT id, provider, name, display_name, description, max_tokens, supports_streaming,
	       is_enabled, api_key_required, category, price_input, price_output, price_currency
	FROM model_config`

// Seed inserts models when the table is empty and reports how many were
// written. A non-empty table is left untouched.
func (s *Service) Seed(ctx context.Context, models []Model) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_config`).Scan(&existing); err != nil {
		return 0, fmt.Errorf("catalog: count models: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	for _, m := range models {
		var in, out, cur any
		if m.Pricing != nil {
			in, out, cur = m.Pricing.InputTokens, m.Pricing.OutputTokens, m.Pricing.Currency
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO model_config (id, provider, name, display_name, description, max_tokens,
			                          supports_streaming, is_enabled, api_key_required, category,
			                          price_input, price_output, price_currency)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewV7(), m.Provider, m.Name, m.DisplayName, m.Description, m.MaxTokens,
			m.SupportsStreaming, m.IsEnabled, m.APIKeyRequired, m.Category, in, out, cur)
		if err != nil {
			return 0, fmt.Errorf("catalog: insert %s/%s: %w", m.Provider, m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit seed: %w", err)
	}
	return len(models), nil
}

// SeedDefaults seeds the embedded catalog.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	models, err := DefaultModels()
	if err != nil {
		return 0, err
	}
	return s.Seed(ctx, models)
}

func (s *Service) ListEnabled(ctx context.Context) ([]Model, error) {
	return s.list(ctx, ` WHERE is_enabled = 1`)
}

func (s *Service) ListAll(ctx context.Context) ([]Model, error) {
	return s.list(ctx, ``)
}

func (s *Service) ListByCategory(ctx context.Context, category string) ([]Model, error) {
	return s.list(ctx, ` WHERE category = ?`, category)
}

func (s *Service) Get(ctx context.Context, id string) (*Model, error) {
	var row modelRow
	err := sqlscan.Get(ctx, s.db, &row, selectModel+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get model: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

// SetEnabled is the only mutation allowed after seeding.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (*Model, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE model_config SET is_enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: update model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrModelNotFound
	}
	return s.Get(ctx, id)
}

func (s *Service) list(ctx context.Context, where string, args ...any) ([]Model, error) {
	var rows []modelRow
	if err := sqlscan.Select(ctx, s.db, &rows, selectModel+where+` ORDER BY rowid`, args...); err != nil {
		return nil, fmt.Errorf("catalog: list models: %w", err)
	}
	out := make([]Model, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (r modelRow) toModel() Model {
	m := Model{
		ID:                r.ID,
		Provider:          r.Provider,
		Name:              r.Name,
		DisplayName:       r.DisplayName,
		Description:       r.Description,
		MaxTokens:         r.MaxTokens,
		SupportsStreaming: r.SupportsStreaming,
		IsEnabled:         r.IsEnabled,
		APIKeyRequired:    r.APIKeyRequired,
		Category:          r.Category,
	}
	if r.PriceInput.Valid || r.PriceOutput.Valid {
		m.Pricing = &Pricing{
			InputTokens:  r.PriceInput.Float64,
			OutputTokens: r.PriceOutput.Float64,
			Currency:     r.PriceCurrency.String,
		}
	}
	return m
}
