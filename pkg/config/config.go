package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Discord   DiscordConfig   `envPrefix:"DISCORD_"`
	Console   ConsoleConfig   `envPrefix:"CONSOLE_"`
	LLM       LLMConfig       `envPrefix:"LLM_"`
	Bot       BotConfig       `envPrefix:"BOT_"`
	Health    HealthConfig    `envPrefix:"HEALTH_"`
	Heartbeat HeartbeatConfig `envPrefix:"HEARTBEAT_"`
	Log       LogConfig       `envPrefix:"LOG_"`
}

type DiscordConfig struct {
	Enabled   bool     `env:"ENABLED" envDefault:"true"`
	Token     string   `env:"TOKEN"`
	AllowFrom []string `env:"ALLOW_FROM" envSeparator:","`
}

type ConsoleConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	UserID  string `env:"USER_ID" envDefault:"console-user"`
	Prompt  string `env:"PROMPT" envDefault:"you> "`
}

type LLMConfig struct {
	Provider        string        `env:"PROVIDER" envDefault:"openai"`
	APIKey          string        `env:"API_KEY"`
	Model           string        `env:"MODEL" envDefault:"gpt-4o"`
	BaseURL         string        `env:"BASE_URL"`
	AzureEndpoint   string        `env:"AZURE_ENDPOINT"`
	AzureAPIVersion string        `env:"AZURE_API_VERSION" envDefault:"2024-06-01"`
	MaxTokens       int64         `env:"MAX_TOKENS" envDefault:"1024"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

type BotConfig struct {
	HistoryLimit  int      `env:"HISTORY_LIMIT" envDefault:"100"`
	RecordSelf    bool     `env:"RECORD_SELF" envDefault:"true"`
	DoctorChannel string   `env:"DOCTOR_CHANNEL"`
	AdminIDs      []string `env:"ADMIN_IDS" envSeparator:","`
}

type HealthConfig struct {
	Addr string `env:"ADDR"`
}

type HeartbeatConfig struct {
	Cron string `env:"CRON" envDefault:"*/15 * * * *"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

// Load reads the process environment and validates the result.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the given environment map, or the process environment when environ is nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the startup contract: never run without a completion
// backend or without at least one gateway.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LLM.Provider) {
	case ProviderOpenAI, ProviderAnthropic:
	case ProviderAzure:
		if c.LLM.AzureEndpoint == "" {
			errs = append(errs, errors.New("LLM_AZURE_ENDPOINT is required for the azure provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}

	if c.Discord.Enabled && c.Discord.Token == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required when discord is enabled"))
	}
	if !c.Discord.Enabled && !c.Console.Enabled {
		errs = append(errs, errors.New("no gateway enabled: set DISCORD_ENABLED or CONSOLE_ENABLED"))
	}

	if c.Bot.HistoryLimit <= 0 {
		errs = append(errs, errors.New("BOT_HISTORY_LIMIT must be positive"))
	}

	if c.Heartbeat.Cron != "" && !gronx.New().IsValid(c.Heartbeat.Cron) {
		errs = append(errs, fmt.Errorf("invalid HEARTBEAT_CRON %q", c.Heartbeat.Cron))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
