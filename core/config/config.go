package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/goalbot/core/database"
)

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// LongPollTimeoutSeconds defines the getUpdates long polling timeout; 0 -> default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// BotConfig holds conversational behavior settings.
type BotConfig struct {
	// AppBaseURL is the public URL of the web application used in goal links.
	AppBaseURL string `yaml:"app_base_url" envconfig:"APP_BASE_URL"`
	// GoalDueInDays is added to the current date when a goal is created.
	GoalDueInDays int `yaml:"goal_due_in_days" envconfig:"GOAL_DUE_IN_DAYS"`
	// CodeLength is the length of one-time verification codes.
	CodeLength int `yaml:"code_length" envconfig:"VERIFICATION_CODE_LENGTH"`
	// CodeAlphabet is the set of characters verification codes are drawn from.
	CodeAlphabet string `yaml:"code_alphabet" envconfig:"VERIFICATION_CODE_ALPHABET"`
	// MaxIdleCycles is the number of empty polling cycles allowed inside a
	// create dialog before the session expires back to the main menu.
	MaxIdleCycles int `yaml:"max_idle_cycles" envconfig:"SESSION_MAX_IDLE_CYCLES"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	KeysOrder string `yaml:"keys_order"`
	Dir       string `yaml:"dir"`
	BotFile   string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	defaultGoalDueInDays = 7
	defaultCodeLength    = 6
	defaultMaxIdleCycles = 3
	defaultAppBaseURL    = "http://localhost"

	// defaultCodeAlphabet matches the character set the web application uses
	// for its own random strings.
	defaultCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Config aggregates the bot configuration.
type Config struct {
	Telegram TelegramConfig  `yaml:"telegram"`
	Bot      BotConfig       `yaml:"bot"`
	Database database.Config `yaml:"database"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}

	if cfg.Bot.GoalDueInDays == 0 {
		cfg.Bot.GoalDueInDays = defaultGoalDueInDays
	}
	if cfg.Bot.GoalDueInDays < 0 {
		return fmt.Errorf("bot.goal_due_in_days must be > 0")
	}

	if cfg.Bot.CodeLength == 0 {
		cfg.Bot.CodeLength = defaultCodeLength
	}
	if cfg.Bot.CodeLength < 0 {
		return fmt.Errorf("bot.code_length must be > 0")
	}

	alphabet := strings.TrimSpace(cfg.Bot.CodeAlphabet)
	if alphabet == "" {
		alphabet = defaultCodeAlphabet
	}
	if len(alphabet) < 2 {
		return fmt.Errorf("bot.code_alphabet needs at least two characters")
	}
	cfg.Bot.CodeAlphabet = alphabet

	if cfg.Bot.MaxIdleCycles == 0 {
		cfg.Bot.MaxIdleCycles = defaultMaxIdleCycles
	}
	if cfg.Bot.MaxIdleCycles < 0 {
		return fmt.Errorf("bot.max_idle_cycles must be > 0")
	}

	base := strings.TrimSpace(cfg.Bot.AppBaseURL)
	if base == "" {
		base = defaultAppBaseURL
	}
	cfg.Bot.AppBaseURL = strings.TrimRight(base, "/")

	return nil
}
