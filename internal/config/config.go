// Package config loads the twin daemon configuration: defaults, then the
// yaml file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all twind configuration.
type Config struct {
	// Persona is the storage namespace for the impersonated person.
	Persona string `yaml:"persona"`

	// DatabasePath is the SQLite file for persona state.
	DatabasePath string `yaml:"database_path"`

	// DocstoreRoot is the directory for training documents.
	DocstoreRoot string `yaml:"docstore_root"`

	Owner    OwnerConfig    `yaml:"owner"`
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
	Behavior BehaviorConfig `yaml:"behavior"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// OwnerConfig is where notifications about handled conversations go.
type OwnerConfig struct {
	// Email address for notifications; empty disables the email channel.
	Email string `yaml:"email"`

	// TelegramChatID for notifications; empty disables the chat channel.
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// TelegramConfig configures the chat adapter.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`

	// ListenMode is one of all, mentions, dm.
	ListenMode string `yaml:"listen_mode"`
}

// EmailConfig configures the SMTP adapter.
type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`

	// AutoRespond enables autonomous replies to incoming email.
	AutoRespond bool `yaml:"auto_respond"`
}

// BehaviorConfig tunes twin behavior.
type BehaviorConfig struct {
	// ConfidenceThreshold (0-100): below it the twin adds a disclaimer.
	ConfidenceThreshold int `yaml:"confidence_threshold"`

	// AutoCalendarActions allows autonomous calendar event creation.
	AutoCalendarActions bool `yaml:"auto_calendar_actions"`
}

// LLMConfig configures the model endpoint the subchats run against.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Persona:      "default",
		DatabasePath: ".twind/twin.db",
		DocstoreRoot: ".twind/docs",
		Telegram: TelegramConfig{
			ListenMode: "mentions",
		},
		Email: EmailConfig{
			SMTPPort: 587,
		},
		Behavior: BehaviorConfig{
			ConfidenceThreshold: 75,
			AutoCalendarActions: true,
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: "120s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file and applies environment overrides.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets deployment environments win over the yaml file.
func (c *Config) applyEnvOverrides() {
	setIfPresent := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setIfPresent(&c.Persona, "TWIND_PERSONA")
	setIfPresent(&c.DatabasePath, "TWIND_DATABASE_PATH")
	setIfPresent(&c.DocstoreRoot, "TWIND_DOCSTORE_ROOT")
	setIfPresent(&c.Owner.Email, "ART_EMAIL")
	setIfPresent(&c.Owner.TelegramChatID, "ART_TELEGRAM_CHAT_ID")
	setIfPresent(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setIfPresent(&c.Email.SMTPHost, "SMTP_HOST")
	setIfPresent(&c.Email.Username, "SMTP_USERNAME")
	setIfPresent(&c.Email.Password, "SMTP_PASSWORD")
	setIfPresent(&c.Email.From, "SMTP_FROM")
	setIfPresent(&c.LLM.APIKey, "OPENAI_API_KEY")
	setIfPresent(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setIfPresent(&c.Logging.Level, "TWIND_LOG_LEVEL")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Email.SMTPPort = port
		}
	}
}

// Validate checks for configuration that cannot work at all.
func (c *Config) Validate() error {
	if c.Persona == "" {
		return fmt.Errorf("persona must not be empty")
	}
	switch c.Telegram.ListenMode {
	case "", "all", "mentions", "dm":
	default:
		return fmt.Errorf("invalid telegram listen_mode %q", c.Telegram.ListenMode)
	}
	if c.Behavior.ConfidenceThreshold < 0 || c.Behavior.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence_threshold must be 0-100, got %d", c.Behavior.ConfidenceThreshold)
	}
	return nil
}
