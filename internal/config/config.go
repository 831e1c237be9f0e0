package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reviewtrends/internal/schedule"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ProviderGroq      = "groq"
	ProviderMistral   = "mistral"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

const (
	defaultGroqBaseURL    = "https://api.groq.com/openai/v1/"
	defaultMistralBaseURL = "https://api.mistral.ai/v1/"
	defaultOpenAIBaseURL  = "https://api.openai.com/v1/"

	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultMistralModel   = "mistral-small-latest"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

type Config struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`
	DBPath    string `yaml:"db_path"`

	BatchSize               int     `yaml:"batch_size"`
	MaxFallbackCalls        int     `yaml:"max_fallback_calls"`
	FallbackCooldownSeconds int     `yaml:"fallback_cooldown_seconds"`
	DayDelaySeconds         int     `yaml:"day_delay_seconds"`
	ClassifyTemperature     float64 `yaml:"classify_temperature"`
	ValidateTemperature     float64 `yaml:"validate_temperature"`

	PrimaryProvider       string `yaml:"primary_provider"`
	FallbackProvider      string `yaml:"fallback_provider"`
	CanonicalizerProvider string `yaml:"canonicalizer_provider"`
	ValidatorProvider     string `yaml:"validator_provider"`

	GroqAPIKey  string `yaml:"groq_api_key"`
	GroqModel   string `yaml:"groq_model"`
	GroqBaseURL string `yaml:"groq_base_url"`

	MistralAPIKey  string `yaml:"mistral_api_key"`
	MistralModel   string `yaml:"mistral_model"`
	MistralBaseURL string `yaml:"mistral_base_url"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicModel   string `yaml:"anthropic_model"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	Schedule       string `yaml:"schedule"`
	Timezone       string `yaml:"timezone"`
	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// ProviderSettings is the connection info for one named provider.
type ProviderSettings struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

func defaultConfig() Config {
	return Config{
		InputDir:                   "data/processed",
		OutputDir:                  "output",
		DBPath:                     "./reviewtrends.db",
		BatchSize:                  10,
		MaxFallbackCalls:           100,
		FallbackCooldownSeconds:    10,
		DayDelaySeconds:            60,
		ClassifyTemperature:        0.2,
		ValidateTemperature:        0,
		PrimaryProvider:            ProviderGroq,
		FallbackProvider:           ProviderMistral,
		CanonicalizerProvider:      ProviderMistral,
		ValidatorProvider:          ProviderAnthropic,
		ExternalHTTPTimeoutSeconds: defaultExternalHTTPTimeoutSeconds,
		Timezone:                   "Local",
	}
}

// LoadConfig is Load for process startup: any problem is fatal.
func LoadConfig() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Load reads config.yaml (or CONFIG_PATH), applies env overrides and
// validates the result. Keys absent from the file keep their defaults.
func Load() (Config, error) {
	cfg := defaultConfig()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.InputDir, "INPUT_DIR")
	envOverride(&cfg.OutputDir, "OUTPUT_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.PrimaryProvider, "PRIMARY_PROVIDER")
	envOverride(&cfg.FallbackProvider, "FALLBACK_PROVIDER")
	envOverride(&cfg.CanonicalizerProvider, "CANONICALIZER_PROVIDER")
	envOverride(&cfg.ValidatorProvider, "VALIDATOR_PROVIDER")
	envOverride(&cfg.GroqAPIKey, "GROQ_API_KEY")
	envOverride(&cfg.GroqModel, "GROQ_MODEL")
	envOverride(&cfg.GroqBaseURL, "GROQ_BASE_URL")
	envOverride(&cfg.MistralAPIKey, "MISTRAL_API_KEY")
	envOverride(&cfg.MistralModel, "MISTRAL_MODEL")
	envOverride(&cfg.MistralBaseURL, "MISTRAL_BASE_URL")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIModel, "OPENAI_MODEL")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.AnthropicModel, "ANTHROPIC_MODEL")
	envOverride(&cfg.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	envOverrideAllowEmpty(&cfg.Schedule, "SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")

	err := errors.Join(
		envOverrideInt(&cfg.BatchSize, "BATCH_SIZE"),
		envOverrideInt(&cfg.MaxFallbackCalls, "MAX_FALLBACK_CALLS"),
		envOverrideInt(&cfg.FallbackCooldownSeconds, "FALLBACK_COOLDOWN_SECONDS"),
		envOverrideInt(&cfg.DayDelaySeconds, "DAY_DELAY_SECONDS"),
		envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"),
		envOverrideFloat(&cfg.ClassifyTemperature, "CLASSIFY_TEMPERATURE"),
		envOverrideFloat(&cfg.ValidateTemperature, "VALIDATE_TEMPERATURE"),
	)
	if err != nil {
		return cfg, err
	}

	cfg.PrimaryProvider = normalizeProvider(cfg.PrimaryProvider)
	cfg.FallbackProvider = normalizeProvider(cfg.FallbackProvider)
	cfg.CanonicalizerProvider = normalizeProvider(cfg.CanonicalizerProvider)
	cfg.ValidatorProvider = normalizeProvider(cfg.ValidatorProvider)
	if cfg.FallbackProvider == "" {
		cfg.FallbackProvider = ProviderNone
	}

	if strings.EqualFold(cfg.Timezone, "Local") || cfg.Timezone == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch_size '%d': must be >= 1", c.BatchSize)
	}
	if c.MaxFallbackCalls < 0 {
		return fmt.Errorf("invalid max_fallback_calls '%d': must be >= 0", c.MaxFallbackCalls)
	}
	if c.FallbackCooldownSeconds < 0 {
		return fmt.Errorf("invalid fallback_cooldown_seconds '%d': must be >= 0", c.FallbackCooldownSeconds)
	}
	if c.DayDelaySeconds < 0 {
		return fmt.Errorf("invalid day_delay_seconds '%d': must be >= 0", c.DayDelaySeconds)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.ClassifyTemperature < 0 || c.ClassifyTemperature > 2 {
		return fmt.Errorf("invalid classify_temperature '%f': must be between 0 and 2", c.ClassifyTemperature)
	}
	if c.ValidateTemperature < 0 || c.ValidateTemperature > 2 {
		return fmt.Errorf("invalid validate_temperature '%f': must be between 0 and 2", c.ValidateTemperature)
	}

	for _, role := range c.roles() {
		if _, err := c.Provider(role.name); err != nil {
			return fmt.Errorf("invalid %s: %w", role.key, err)
		}
	}
	if c.FallbackProvider != ProviderNone && c.FallbackProvider == c.PrimaryProvider {
		log.Printf("WARNING: fallback_provider equals primary_provider (%s); failover will retry the same service", c.PrimaryProvider)
	}

	if strings.TrimSpace(c.Schedule) != "" {
		if _, err := schedule.Parse(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule '%s': %w", c.Schedule, err)
		}
	}
	if c.SlackBotToken != "" && c.SlackChannelID == "" {
		return fmt.Errorf("slack_bot_token is set but slack_channel_id is not")
	}
	return nil
}

type providerRole struct {
	key, name string
}

func (c Config) roles() []providerRole {
	roles := []providerRole{
		{"primary_provider", c.PrimaryProvider},
		{"canonicalizer_provider", c.CanonicalizerProvider},
		{"validator_provider", c.ValidatorProvider},
	}
	if c.FallbackProvider != ProviderNone {
		roles = append(roles, providerRole{"fallback_provider", c.FallbackProvider})
	}
	return roles
}

// ValidateProviders checks that every provider selected for a role has an
// API key. Only commands that call providers need it; Load does not.
func (c Config) ValidateProviders() error {
	for _, role := range c.roles() {
		settings, err := c.Provider(role.name)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", role.key, err)
		}
		if settings.APIKey == "" {
			return fmt.Errorf("%s_api_key is required when %s=%s", role.name, role.key, role.name)
		}
	}
	return nil
}

// Provider resolves connection settings for a provider name, filling in the
// default model and endpoint.
func (c Config) Provider(name string) (ProviderSettings, error) {
	switch normalizeProvider(name) {
	case ProviderGroq:
		return ProviderSettings{
			Name:    ProviderGroq,
			APIKey:  c.GroqAPIKey,
			Model:   orDefault(c.GroqModel, defaultGroqModel),
			BaseURL: orDefault(c.GroqBaseURL, defaultGroqBaseURL),
		}, nil
	case ProviderMistral:
		return ProviderSettings{
			Name:    ProviderMistral,
			APIKey:  c.MistralAPIKey,
			Model:   orDefault(c.MistralModel, defaultMistralModel),
			BaseURL: orDefault(c.MistralBaseURL, defaultMistralBaseURL),
		}, nil
	case ProviderOpenAI:
		return ProviderSettings{
			Name:    ProviderOpenAI,
			APIKey:  c.OpenAIAPIKey,
			Model:   orDefault(c.OpenAIModel, defaultOpenAIModel),
			BaseURL: orDefault(c.OpenAIBaseURL, defaultOpenAIBaseURL),
		}, nil
	case ProviderAnthropic:
		return ProviderSettings{
			Name:    ProviderAnthropic,
			APIKey:  c.AnthropicAPIKey,
			Model:   orDefault(c.AnthropicModel, defaultAnthropicModel),
			BaseURL: c.AnthropicBaseURL,
		}, nil
	default:
		return ProviderSettings{}, fmt.Errorf("unknown provider '%s' (want groq, mistral, openai or anthropic)", name)
	}
}

func (c Config) FallbackEnabled() bool {
	return c.FallbackProvider != ProviderNone
}

func (c Config) FallbackCooldown() time.Duration {
	return time.Duration(c.FallbackCooldownSeconds) * time.Second
}

func (c Config) DayDelay() time.Duration {
	return time.Duration(c.DayDelaySeconds) * time.Second
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func orDefault(val, def string) string {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
