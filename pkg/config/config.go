package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Assistant AssistantConfig `json:"assistant"`
	Retry     RetryConfig     `json:"retry"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Trello    TrelloConfig    `json:"trello"`
	Health    HealthConfig    `json:"health"`
	Logging   LoggingConfig   `json:"logging"`
}

type AssistantConfig struct {
	Name            string   `json:"name" env:"PENNYWORTH_ASSISTANT_NAME"`
	Timezone        string   `json:"timezone" env:"PENNYWORTH_ASSISTANT_TIMEZONE"`
	MaxContextTurns int      `json:"max_context_turns" env:"PENNYWORTH_ASSISTANT_MAX_CONTEXT_TURNS"`
	GreetingTokens  []string `json:"greeting_tokens" env:"PENNYWORTH_ASSISTANT_GREETING_TOKENS"`
	AIPrefix        string   `json:"ai_prefix" env:"PENNYWORTH_ASSISTANT_AI_PREFIX"`
	SummarizePrefix string   `json:"summarize_prefix" env:"PENNYWORTH_ASSISTANT_SUMMARIZE_PREFIX"`
	TrelloPrefix    string   `json:"trello_prefix" env:"PENNYWORTH_ASSISTANT_TRELLO_PREFIX"`
	Provider        string   `json:"provider" env:"PENNYWORTH_ASSISTANT_PROVIDER"`
	Model           string   `json:"model" env:"PENNYWORTH_ASSISTANT_MODEL"`
	MaxTokens       int      `json:"max_tokens" env:"PENNYWORTH_ASSISTANT_MAX_TOKENS"`
	Temperature     float64  `json:"temperature" env:"PENNYWORTH_ASSISTANT_TEMPERATURE"`
}

type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts" env:"PENNYWORTH_RETRY_MAX_ATTEMPTS"`
	BaseDelayMS int     `json:"base_delay_ms" env:"PENNYWORTH_RETRY_BASE_DELAY_MS"`
	Multiplier  float64 `json:"multiplier" env:"PENNYWORTH_RETRY_MULTIPLIER"`
}

type ChannelsConfig struct {
	Slack    SlackConfig    `json:"slack"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Console  ConsoleConfig  `json:"console"`
}

type SlackConfig struct {
	Enabled       bool                `json:"enabled" env:"PENNYWORTH_CHANNELS_SLACK_ENABLED"`
	BotToken      string              `json:"bot_token" env:"PENNYWORTH_CHANNELS_SLACK_BOT_TOKEN"`
	AppToken      string              `json:"app_token" env:"PENNYWORTH_CHANNELS_SLACK_APP_TOKEN"`
	SocialChannel string              `json:"social_channel" env:"PENNYWORTH_CHANNELS_SLACK_SOCIAL_CHANNEL"`
	AllowFrom     FlexibleStringSlice `json:"allow_from" env:"PENNYWORTH_CHANNELS_SLACK_ALLOW_FROM"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"PENNYWORTH_CHANNELS_TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"PENNYWORTH_CHANNELS_TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy" env:"PENNYWORTH_CHANNELS_TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"PENNYWORTH_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"PENNYWORTH_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"PENNYWORTH_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"PENNYWORTH_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled" env:"PENNYWORTH_CHANNELS_CONSOLE_ENABLED"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
}

type TrelloConfig struct {
	Enabled           bool   `json:"enabled" env:"PENNYWORTH_TRELLO_ENABLED"`
	APIKey            string `json:"api_key" env:"PENNYWORTH_TRELLO_API_KEY"`
	Token             string `json:"token" env:"PENNYWORTH_TRELLO_TOKEN"`
	APIBase           string `json:"api_base" env:"PENNYWORTH_TRELLO_API_BASE"`
	DefaultBoard      string `json:"default_board" env:"PENNYWORTH_TRELLO_DEFAULT_BOARD"`
	DefaultList       string `json:"default_list" env:"PENNYWORTH_TRELLO_DEFAULT_LIST"`
	ReminderCron      string `json:"reminder_cron" env:"PENNYWORTH_TRELLO_REMINDER_CRON"`
	ReminderDaysAhead int    `json:"reminder_days_ahead" env:"PENNYWORTH_TRELLO_REMINDER_DAYS_AHEAD"`
	ReminderGateway   string `json:"reminder_gateway" env:"PENNYWORTH_TRELLO_REMINDER_GATEWAY"`
	ReminderChannel   string `json:"reminder_channel" env:"PENNYWORTH_TRELLO_REMINDER_CHANNEL"`
}

type HealthConfig struct {
	Host string `json:"host" env:"PENNYWORTH_HEALTH_HOST"`
	Port int    `json:"port" env:"PENNYWORTH_HEALTH_PORT"`
}

type LoggingConfig struct {
	Level       string `json:"level" env:"PENNYWORTH_LOGGING_LEVEL"`
	FileEnabled bool   `json:"file_enabled" env:"PENNYWORTH_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"PENNYWORTH_LOGGING_FILE_PATH"`
	MaxSizeMB   int    `json:"max_size_mb" env:"PENNYWORTH_LOGGING_MAX_SIZE_MB"`
}

func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Name:            "Pennyworth",
			Timezone:        "America/New_York",
			MaxContextTurns: 20,
			GreetingTokens:  []string{"hello", "hi", "good morning", "good afternoon", "good evening"},
			AIPrefix:        "!ai",
			SummarizePrefix: "!summarize",
			TrelloPrefix:    "!trello",
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			MaxTokens:       1024,
			Temperature:     0.7,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMS: 500,
			Multiplier:  2.0,
		},
		Channels: ChannelsConfig{
			Slack: SlackConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Console: ConsoleConfig{
				Enabled: false,
			},
		},
		Providers: ProvidersConfig{
			OpenAI:    ProviderConfig{},
			Anthropic: ProviderConfig{},
		},
		Trello: TrelloConfig{
			Enabled:           false,
			APIBase:           "https://api.trello.com/1",
			DefaultBoard:      "Main Board",
			DefaultList:       "To Do",
			ReminderCron:      "0 9 * * *",
			ReminderDaysAhead: 2,
		},
		Health: HealthConfig{
			Host: "0.0.0.0",
			Port: 18080,
		},
		Logging: LoggingConfig{
			Level:       "INFO",
			FileEnabled: false,
			FilePath:    "~/.pennyworth/pennyworth.log",
			MaxSizeMB:   50,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	applyProviderEnvOverrides(cfg)
	resolveSecretEnvRefs(cfg)

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Location resolves the configured timezone, falling back to UTC so a bad
// value never breaks time-stamped replies.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Assistant.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyProviderEnvOverrides(cfg *Config) {
	bindings := []struct {
		target *ProviderConfig
		apiKey string
	}{
		{target: &cfg.Providers.OpenAI, apiKey: "PENNYWORTH_PROVIDERS_OPENAI_API_KEY"},
		{target: &cfg.Providers.Anthropic, apiKey: "PENNYWORTH_PROVIDERS_ANTHROPIC_API_KEY"},
	}

	for _, b := range bindings {
		if v := strings.TrimSpace(os.Getenv(b.apiKey)); v != "" {
			b.target.APIKey = v
		}
	}
}

func resolveSecretEnvRefs(cfg *Config) {
	for _, p := range []*ProviderConfig{&cfg.Providers.OpenAI, &cfg.Providers.Anthropic} {
		p.APIKey = resolveEnvRef(p.APIKey)
		p.APIBase = resolveEnvRef(p.APIBase)
	}
	cfg.Channels.Slack.BotToken = resolveEnvRef(cfg.Channels.Slack.BotToken)
	cfg.Channels.Slack.AppToken = resolveEnvRef(cfg.Channels.Slack.AppToken)
	cfg.Channels.Telegram.Token = resolveEnvRef(cfg.Channels.Telegram.Token)
	cfg.Channels.Discord.Token = resolveEnvRef(cfg.Channels.Discord.Token)
	cfg.Trello.APIKey = resolveEnvRef(cfg.Trello.APIKey)
	cfg.Trello.Token = resolveEnvRef(cfg.Trello.Token)
}

// resolveEnvRef expands "$VAR" and "${VAR}" values so secrets can live in
// the environment instead of the config file.
func resolveEnvRef(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return v
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		key := strings.TrimSpace(s[2 : len(s)-1])
		if key == "" {
			return v
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return v
	}
	if strings.HasPrefix(s, "$") && len(s) > 1 {
		key := strings.TrimSpace(s[1:])
		if key == "" {
			return v
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
	}
	return v
}
