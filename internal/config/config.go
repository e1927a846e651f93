package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds configuration for the rpchat CLI.
//
// Values are layered: defaults, then the TOML file, then the .env file,
// then the process environment.
type Config struct {
	DBPath                string  `toml:"db_path"`
	Provider              string  `toml:"provider"`
	Model                 string  `toml:"model"`
	TokenBudget           int     `toml:"token_budget"`
	MinHistoryTokens      int     `toml:"min_history_tokens"`
	HistoryBatchSize      int     `toml:"history_batch_size"`
	MaxOutputTokens       int     `toml:"max_output_tokens"`
	Temperature           float64 `toml:"temperature"`
	Jailbreak             string  `toml:"jailbreak"`
	Tokenizer             string  `toml:"tokenizer"`
	TokenizerCache        int     `toml:"tokenizer_cache"`
	MaxRetries            int     `toml:"max_retries"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	OpenAIBaseURL         string  `toml:"openai_base_url"`
	AnthropicBaseURL      string  `toml:"anthropic_base_url"`
	GeminiBaseURL         string  `toml:"gemini_base_url"`
	DummyScript           string  `toml:"dummy_script"`
	LogLevel              string  `toml:"log_level"`
	LogFile               string  `toml:"log_file"`

	// Credentials are only read from the environment.
	OpenAIAPIKey    string `toml:"-"`
	AnthropicAPIKey string `toml:"-"`
	GeminiAPIKey    string `toml:"-"`

	// ConfigFile is the TOML file that was loaded, if any.
	ConfigFile string `toml:"-"`
}

// Providers lists the supported RPCHAT_MODEL_PROVIDER values.
var Providers = []string{"openai", "anthropic", "gemini", "dummy"}

// Tokenizers lists the supported RPCHAT_TOKENIZER values.
var Tokenizers = []string{"words", "chars"}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:                defaultDBPath(),
		Provider:              "openai",
		Model:                 "gpt-4o-mini",
		TokenBudget:           4096,
		MinHistoryTokens:      300,
		HistoryBatchSize:      100,
		MaxOutputTokens:       512,
		Temperature:           0.8,
		Tokenizer:             "words",
		TokenizerCache:        1024,
		MaxRetries:            2,
		RequestTimeoutSeconds: 120,
		DummyScript:           "ok",
	}
}

// Load reads configuration from all layers and validates it.
func Load() (Config, error) {
	cfg := Default()

	dotenv, err := readDotenv()
	if err != nil {
		return Config{}, err
	}
	env := &envSource{dotenv: dotenv}

	path, explicit := env.lookup("RPCHAT_CONFIG_FILE")
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
			}
			cfg.ConfigFile = path
		} else if explicit {
			return Config{}, fmt.Errorf("RPCHAT_CONFIG_FILE %s: %w", path, statErr)
		}
	}

	env.stringVar("RPCHAT_DB_PATH", &cfg.DBPath)
	env.stringVar("RPCHAT_MODEL_PROVIDER", &cfg.Provider)
	env.stringVar("RPCHAT_MODEL", &cfg.Model)
	env.intVar("RPCHAT_TOKEN_BUDGET", &cfg.TokenBudget)
	env.intVar("RPCHAT_MIN_HISTORY_TOKENS", &cfg.MinHistoryTokens)
	env.intVar("RPCHAT_HISTORY_BATCH_SIZE", &cfg.HistoryBatchSize)
	env.intVar("RPCHAT_MAX_OUTPUT_TOKENS", &cfg.MaxOutputTokens)
	env.floatVar("RPCHAT_TEMPERATURE", &cfg.Temperature)
	env.stringVar("RPCHAT_JAILBREAK", &cfg.Jailbreak)
	env.stringVar("RPCHAT_TOKENIZER", &cfg.Tokenizer)
	env.intVar("RPCHAT_TOKENIZER_CACHE", &cfg.TokenizerCache)
	env.intVar("RPCHAT_MAX_RETRIES", &cfg.MaxRetries)
	env.intVar("RPCHAT_REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeoutSeconds)
	env.stringVar("RPCHAT_OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	env.stringVar("RPCHAT_ANTHROPIC_BASE_URL", &cfg.AnthropicBaseURL)
	env.stringVar("RPCHAT_GEMINI_BASE_URL", &cfg.GeminiBaseURL)
	env.stringVar("RPCHAT_DUMMY_SCRIPT", &cfg.DummyScript)
	env.stringVar("RPCHAT_LOG_LEVEL", &cfg.LogLevel)
	env.stringVar("RPCHAT_LOG_FILE", &cfg.LogFile)
	env.stringVar("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	env.stringVar("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	env.stringVar("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Tokenizer = strings.ToLower(strings.TrimSpace(cfg.Tokenizer))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Errors name the environment variable
// that sets the offending value.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, fmt.Errorf("RPCHAT_DB_PATH must not be empty"))
	}
	if !contains(Providers, c.Provider) {
		errs = append(errs, fmt.Errorf("RPCHAT_MODEL_PROVIDER must be one of %s, got %q", strings.Join(Providers, "/"), c.Provider))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, fmt.Errorf("RPCHAT_MODEL must not be empty"))
	}
	if c.MinHistoryTokens <= 0 {
		errs = append(errs, fmt.Errorf("RPCHAT_MIN_HISTORY_TOKENS must be > 0, got %d", c.MinHistoryTokens))
	}
	if c.TokenBudget < c.MinHistoryTokens {
		errs = append(errs, fmt.Errorf("RPCHAT_TOKEN_BUDGET must be >= RPCHAT_MIN_HISTORY_TOKENS (%d), got %d", c.MinHistoryTokens, c.TokenBudget))
	}
	if c.HistoryBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("RPCHAT_HISTORY_BATCH_SIZE must be > 0, got %d", c.HistoryBatchSize))
	}
	if c.MaxOutputTokens < 0 {
		errs = append(errs, fmt.Errorf("RPCHAT_MAX_OUTPUT_TOKENS must be >= 0, got %d", c.MaxOutputTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("RPCHAT_TEMPERATURE must be within [0, 2], got %g", c.Temperature))
	}
	if !contains(Tokenizers, c.Tokenizer) {
		errs = append(errs, fmt.Errorf("RPCHAT_TOKENIZER must be one of %s, got %q", strings.Join(Tokenizers, "/"), c.Tokenizer))
	}
	if c.TokenizerCache < 0 {
		errs = append(errs, fmt.Errorf("RPCHAT_TOKENIZER_CACHE must be >= 0, got %d", c.TokenizerCache))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("RPCHAT_MAX_RETRIES must be >= 0, got %d", c.MaxRetries))
	}
	if c.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("RPCHAT_REQUEST_TIMEOUT_SECONDS must be > 0, got %d", c.RequestTimeoutSeconds))
	}
	return errors.Join(errs...)
}

// RequireProviderCredentials fails when the selected provider needs an
// API key that is not set.
func (c Config) RequireProviderCredentials() error {
	switch c.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in environment when RPCHAT_MODEL_PROVIDER=openai")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required in environment when RPCHAT_MODEL_PROVIDER=anthropic")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required in environment when RPCHAT_MODEL_PROVIDER=gemini")
		}
	}
	return nil
}

// RequestTimeout is the per-request provider timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// readDotenv loads RPCHAT_ENV_FILE, or ./.env when present. The file's
// values sit below the process environment and are not exported to it.
func readDotenv() (map[string]string, error) {
	path, explicit := os.LookupEnv("RPCHAT_ENV_FILE")
	if !explicit || path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("RPCHAT_ENV_FILE %s: %w", path, err)
	}
	return values, nil
}

type envSource struct {
	dotenv map[string]string
	errs   []error
}

func (s *envSource) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if v := s.dotenv[key]; v != "" {
		return v, true
	}
	return "", false
}

func (s *envSource) stringVar(key string, dst *string) {
	if v, ok := s.lookup(key); ok {
		*dst = v
	}
}

func (s *envSource) intVar(key string, dst *int) {
	v, ok := s.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return
	}
	*dst = n
}

func (s *envSource) floatVar(key string, dst *float64) {
	v, ok := s.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return
	}
	*dst = f
}

func defaultDBPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "rpchat", "rpchat.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "rpchat", "rpchat.db")
	}
	return "rpchat.db"
}

func defaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "rpchat", "config.toml")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rpchat", "config.toml")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
