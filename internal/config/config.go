package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     int    `envconfig:"CURATOR_PORT" default:"8760"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Provider        string        `envconfig:"CURATOR_PROVIDER" default:"openai"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string        `envconfig:"CURATOR_ANTHROPIC_MODEL" default:"claude-sonnet-4-20250514"`
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `envconfig:"CURATOR_OPENAI_BASE_URL" default:"https://api.groq.com/openai/v1"`
	OpenAIModel     string        `envconfig:"CURATOR_OPENAI_MODEL" default:"llama-3.1-8b-instant"`
	EnrichTimeout   time.Duration `envconfig:"CURATOR_ENRICH_TIMEOUT" default:"30s"`
	InstructionFile string        `envconfig:"CURATOR_INSTRUCTION_FILE"`

	SubmitTimeout  time.Duration `envconfig:"CURATOR_SUBMIT_TIMEOUT" default:"15s"`
	SubmitDelay    time.Duration `envconfig:"CURATOR_SUBMIT_DELAY" default:"1s"`
	SubmitAttempts int           `envconfig:"CURATOR_SUBMIT_ATTEMPTS" default:"3"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	NatsURL       string `envconfig:"NATS_URL"`
	NatsToken     string `envconfig:"NATS_TOKEN"`
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_SUBMISSIONS_CHANNEL"`

	APIToken    string   `envconfig:"CURATOR_API_TOKEN"`
	CORSOrigins []string `envconfig:"CURATOR_CORS_ORIGINS" default:"*"`
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.EnrichTimeout <= 0 || c.SubmitTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.SubmitAttempts < 1 {
		return fmt.Errorf("config: submit attempts must be at least 1")
	}
	return nil
}

// HasSinks reports whether any real submission backend is configured.
func (c Config) HasSinks() bool {
	return c.DatabaseURL != "" || c.NatsURL != "" || (c.SlackBotToken != "" && c.SlackChannel != "")
}
