package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "OFFERWATCH_CONFIG"
	databasePathEnv   = "OFFERWATCH_DB"
	llmAPIKeysEnv     = "LLM_API_KEYS"
	llmEndpointEnv    = "LLM_API_ENDPOINT"
	llmModelEnv       = "LLM_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	LLM           LLMConfig          `yaml:"llm"`
	Notifications NotificationConfig `yaml:"notifications"`
	Monitor       MonitorConfig      `yaml:"monitor"`
	Logging       LoggingConfig      `yaml:"logging"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// DatabaseConfig describes where the SQLite state file lives.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines how often monitoring passes run.
type SchedulerConfig struct {
	CheckInterval time.Duration `yaml:"checkInterval"`
}

// LLMConfig defines how to contact the OpenAI-compatible API used for
// extraction, similarity judgment, and evaluation.
type LLMConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	APIKeys        []string      `yaml:"apiKeys"`
	ExtractTimeout time.Duration `yaml:"extractTimeout"`
	JudgeTimeout   time.Duration `yaml:"judgeTimeout"`
	EvalTimeout    time.Duration `yaml:"evalTimeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram    TelegramConfig `yaml:"telegram"`
	MinInterval time.Duration  `yaml:"minInterval"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string        `yaml:"botToken"`
	ChatID   string        `yaml:"chatId"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MonitorConfig groups reconciliation tunables. All thresholds are explicit
// here rather than process-wide constants.
type MonitorConfig struct {
	FetchTimeout        time.Duration `yaml:"fetchTimeout"`
	MaxHistoryAgeDays   int           `yaml:"maxHistoryAgeDays"`
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SourceConfig describes one monitored page. Instruction is passed verbatim
// to the extractor to narrow what counts as a relevant offer. EveryN > 1
// checks the source only every Nth scheduler tick.
type SourceConfig struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Instruction string `yaml:"instruction"`
	EveryN      int    `yaml:"everyN"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// LoadFile is Load with an explicit path, used by the CLI --config flag.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return cfg, err
	}
	cfg = mergeConfig(cfg, fileCfg)
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(llmEndpointEnv); v != "" {
		c.LLM.Endpoint = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(llmAPIKeysEnv); v != "" {
		keys := strings.Split(v, ",")
		c.LLM.APIKeys = c.LLM.APIKeys[:0]
		for _, key := range keys {
			if key = strings.TrimSpace(key); key != "" {
				c.LLM.APIKeys = append(c.LLM.APIKeys, key)
			}
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CheckInterval > 0 {
		base.Scheduler.CheckInterval = override.Scheduler.CheckInterval
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if len(override.LLM.APIKeys) > 0 {
		base.LLM.APIKeys = override.LLM.APIKeys
	}
	if override.LLM.ExtractTimeout > 0 {
		base.LLM.ExtractTimeout = override.LLM.ExtractTimeout
	}
	if override.LLM.JudgeTimeout > 0 {
		base.LLM.JudgeTimeout = override.LLM.JudgeTimeout
	}
	if override.LLM.EvalTimeout > 0 {
		base.LLM.EvalTimeout = override.LLM.EvalTimeout
	}
	if override.LLM.MaxRetries > 0 {
		base.LLM.MaxRetries = override.LLM.MaxRetries
	}
	if override.LLM.RetryDelay > 0 {
		base.LLM.RetryDelay = override.LLM.RetryDelay
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.Timeout > 0 {
		base.Notifications.Telegram.Timeout = override.Notifications.Telegram.Timeout
	}
	if override.Notifications.MinInterval > 0 {
		base.Notifications.MinInterval = override.Notifications.MinInterval
	}

	if override.Monitor.FetchTimeout > 0 {
		base.Monitor.FetchTimeout = override.Monitor.FetchTimeout
	}
	if override.Monitor.MaxHistoryAgeDays > 0 {
		base.Monitor.MaxHistoryAgeDays = override.Monitor.MaxHistoryAgeDays
	}
	if override.Monitor.SimilarityThreshold > 0 {
		base.Monitor.SimilarityThreshold = override.Monitor.SimilarityThreshold
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database:  DatabaseConfig{Path: "offerwatch.db"},
		Scheduler: SchedulerConfig{CheckInterval: 10 * time.Minute},
		LLM: LLMConfig{
			Endpoint:       "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			ExtractTimeout: 60 * time.Second,
			JudgeTimeout:   30 * time.Second,
			EvalTimeout:    60 * time.Second,
			MaxRetries:     2,
			RetryDelay:     10 * time.Second,
		},
		Notifications: NotificationConfig{
			Telegram:    TelegramConfig{Timeout: 25 * time.Second},
			MinInterval: 5 * time.Minute,
		},
		Monitor: MonitorConfig{
			FetchTimeout:        20 * time.Second,
			MaxHistoryAgeDays:   30,
			SimilarityThreshold: 0.9,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
