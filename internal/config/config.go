package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel            = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens        = 4096
	DefaultTemperature      = 0.2
	DefaultMaxTurns         = 12
	DefaultInvalidThreshold = 3
	DefaultKeepRecentTurns  = 8
	DefaultDecisionRetries  = 3
	DefaultExecTimeoutSec   = 20
	DefaultExecMaxOutputKB  = 64
	DefaultMaxFollow        = 10
	DefaultReevalSchedule   = "0 0 6 * * *"
)

type Config struct {
	Provider   ProviderConfig   `json:"provider"`
	Solver     SolverConfig     `json:"solver"`
	Executor   ExecutorConfig   `json:"executor"`
	Transcribe TranscribeConfig `json:"transcribe"`
	Quiz       QuizConfig       `json:"quiz"`
	Store      StoreConfig      `json:"store"`
	Reeval     ReevalConfig     `json:"reeval"`
	Notify     NotifyConfig     `json:"notify"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type SolverConfig struct {
	Model            string  `json:"model"`
	MaxTokens        int     `json:"maxTokens"`
	Temperature      float64 `json:"temperature"`
	MaxTurns         int     `json:"maxTurns"`
	InvalidThreshold int     `json:"invalidThreshold"`
	KeepRecentTurns  int     `json:"keepRecentTurns"`
	DecisionRetries  int     `json:"decisionRetries"`
	RetryIncorrect   bool    `json:"retryIncorrect"`
	MaxFollow        int     `json:"maxFollow"`
}

type ExecutorConfig struct {
	Python      string `json:"python,omitempty"`
	TimeoutSec  int    `json:"timeoutSec"`
	MaxOutputKB int    `json:"maxOutputKb"`
}

type TranscribeConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

type QuizConfig struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type ReevalConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chatId"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{},
		Solver: SolverConfig{
			Model:            DefaultModel,
			MaxTokens:        DefaultMaxTokens,
			Temperature:      DefaultTemperature,
			MaxTurns:         DefaultMaxTurns,
			InvalidThreshold: DefaultInvalidThreshold,
			KeepRecentTurns:  DefaultKeepRecentTurns,
			DecisionRetries:  DefaultDecisionRetries,
			MaxFollow:        DefaultMaxFollow,
		},
		Executor: ExecutorConfig{
			TimeoutSec:  DefaultExecTimeoutSec,
			MaxOutputKB: DefaultExecMaxOutputKB,
		},
		Reeval: ReevalConfig{
			Schedule: DefaultReevalSchedule,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".quizpilot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("QUIZPILOT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("QUIZPILOT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if email := os.Getenv("QUIZPILOT_EMAIL"); email != "" {
		cfg.Quiz.Email = email
	}
	if secret := os.Getenv("QUIZPILOT_SECRET"); secret != "" {
		cfg.Quiz.Secret = secret
	}
	if key := os.Getenv("QUIZPILOT_TRANSCRIBE_API_KEY"); key != "" {
		cfg.Transcribe.APIKey = key
	}
	if url := os.Getenv("QUIZPILOT_TRANSCRIBE_BASE_URL"); url != "" {
		cfg.Transcribe.BaseURL = url
	}
	if dbPath := os.Getenv("QUIZPILOT_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if token := os.Getenv("QUIZPILOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
	}
	if chatID := os.Getenv("QUIZPILOT_TELEGRAM_CHAT_ID"); chatID != "" {
		cfg.Notify.Telegram.ChatID = chatID
	}
	if turns := os.Getenv("QUIZPILOT_MAX_TURNS"); turns != "" {
		if parsed, err := strconv.Atoi(turns); err == nil && parsed > 0 {
			cfg.Solver.MaxTurns = parsed
		}
	}

	if cfg.Solver.Model == "" {
		cfg.Solver.Model = DefaultModel
	}
	if cfg.Solver.MaxTurns <= 0 {
		cfg.Solver.MaxTurns = DefaultMaxTurns
	}
	if cfg.Solver.InvalidThreshold <= 0 {
		cfg.Solver.InvalidThreshold = DefaultInvalidThreshold
	}
	if cfg.Solver.KeepRecentTurns <= 0 {
		cfg.Solver.KeepRecentTurns = DefaultKeepRecentTurns
	}
	if cfg.Solver.DecisionRetries <= 0 {
		cfg.Solver.DecisionRetries = DefaultDecisionRetries
	}
	if cfg.Solver.MaxFollow <= 0 {
		cfg.Solver.MaxFollow = DefaultMaxFollow
	}
	if cfg.Executor.TimeoutSec <= 0 {
		cfg.Executor.TimeoutSec = DefaultExecTimeoutSec
	}
	if cfg.Executor.MaxOutputKB <= 0 {
		cfg.Executor.MaxOutputKB = DefaultExecMaxOutputKB
	}
	if cfg.Reeval.Schedule == "" {
		cfg.Reeval.Schedule = DefaultReevalSchedule
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(ConfigDir(), "data", "sessions.db")
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
