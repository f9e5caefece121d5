// Package config loads runtime configuration: defaults, then an optional YAML
// file named by LLMHUB_CONFIG, then environment variables. The result is
// validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

// Config holds runtime configuration for LLMHub.
type Config struct {
	HTTP     HTTPConfig `yaml:"http"`
	Database struct {
		Path string `yaml:"path" validate:"required"`
	} `yaml:"database"`
	Log  LogConfig  `yaml:"log"`
	Auth AuthConfig `yaml:"auth"`
	LLM  LLMConfig  `yaml:"llm"`
}

type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	File   string `yaml:"file"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"token_ttl" validate:"gte=1m"`
}

type LLMConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=1s"`
	// PlatformOpenAIKey is the managed key tried before any user key for OpenAI.
	PlatformOpenAIKey string        `yaml:"platform_openai_api_key"`
	Endpoints         llm.Endpoints `yaml:"endpoints"`
}

const (
	envConfigFile     = "LLMHUB_CONFIG"
	envHTTPHost       = "HTTP_HOST"
	envHTTPPort       = "HTTP_PORT"
	envDatabasePath   = "DATABASE_PATH"
	envLogLevel       = "LOG_LEVEL"
	envLogFormat      = "LOG_FORMAT"
	envLogFile        = "LOG_FILE"
	envJWTSecret      = "JWT_SECRET"
	envJWTExpiryHours = "JWT_EXPIRY"
	envLLMTimeout     = "LLM_TIMEOUT"
	envPlatformOpenAI = "PLATFORM_OPENAI_API_KEY"
)

// Default returns the configuration used when nothing is overridden.
// JWTSecret has no default; Load fails until one is supplied.
func Default() Config {
	var c Config
	c.HTTP = HTTPConfig{Host: "0.0.0.0", Port: 8080}
	c.Database.Path = "./data/llmhub.db"
	c.Log = LogConfig{Level: "info", Format: "json"}
	c.Auth = AuthConfig{TokenTTL: 24 * time.Hour}
	c.LLM = LLMConfig{Timeout: llm.DefaultTimeout}
	return c
}

// Load applies defaults, the optional YAML file and env overrides, then validates.
func Load() (Config, error) {
	return LoadFile(os.Getenv(envConfigFile))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func Validate(cfg Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("config: invalid %s (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTP.Host = envOr(envHTTPHost, cfg.HTTP.Host)
	cfg.Database.Path = envOr(envDatabasePath, cfg.Database.Path)
	cfg.Log.Level = envOr(envLogLevel, cfg.Log.Level)
	cfg.Log.Format = envOr(envLogFormat, cfg.Log.Format)
	cfg.Log.File = envOr(envLogFile, cfg.Log.File)
	cfg.Auth.JWTSecret = envOr(envJWTSecret, cfg.Auth.JWTSecret)
	cfg.LLM.PlatformOpenAIKey = envOr(envPlatformOpenAI, cfg.LLM.PlatformOpenAIKey)

	ep := &cfg.LLM.Endpoints
	ep.OpenAI = envOr("OPENAI_BASE_URL", ep.OpenAI)
	ep.Anthropic = envOr("ANTHROPIC_BASE_URL", ep.Anthropic)
	ep.Google = envOr("GOOGLE_BASE_URL", ep.Google)
	ep.DeepSeek = envOr("DEEPSEEK_BASE_URL", ep.DeepSeek)
	ep.Mistral = envOr("MISTRAL_BASE_URL", ep.Mistral)
	ep.Cohere = envOr("COHERE_BASE_URL", ep.Cohere)
	ep.Ollama = envOr("OLLAMA_BASE_URL", ep.Ollama)

	if v := os.Getenv(envHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", envHTTPPort, v, err)
		}
		cfg.HTTP.Port = port
	}
	if v := os.Getenv(envJWTExpiryHours); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", envJWTExpiryHours, v, err)
		}
		cfg.Auth.TokenTTL = time.Duration(hours) * time.Hour
	}
	if v := os.Getenv(envLLMTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", envLLMTimeout, v, err)
		}
		cfg.LLM.Timeout = d
	}
	return nil
}

// Addr is host:port for http.Server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// envOr returns the value of the environment variable key, or fallback if unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
