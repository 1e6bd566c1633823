package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, v := range []string{
		"QUIZPILOT_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"QUIZPILOT_BASE_URL", "ANTHROPIC_BASE_URL",
		"QUIZPILOT_EMAIL", "QUIZPILOT_SECRET",
		"QUIZPILOT_TRANSCRIBE_API_KEY", "QUIZPILOT_TRANSCRIBE_BASE_URL",
		"QUIZPILOT_DB_PATH", "QUIZPILOT_TELEGRAM_TOKEN", "QUIZPILOT_TELEGRAM_CHAT_ID",
		"QUIZPILOT_MAX_TURNS",
	} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	return home
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateHome(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Solver.Model != DefaultModel {
		t.Errorf("model = %q", cfg.Solver.Model)
	}
	if cfg.Solver.MaxTurns != DefaultMaxTurns {
		t.Errorf("max turns = %d", cfg.Solver.MaxTurns)
	}
	if cfg.Solver.InvalidThreshold != DefaultInvalidThreshold {
		t.Errorf("invalid threshold = %d", cfg.Solver.InvalidThreshold)
	}
	if cfg.Executor.TimeoutSec != DefaultExecTimeoutSec {
		t.Errorf("timeout = %d", cfg.Executor.TimeoutSec)
	}
	if cfg.Reeval.Schedule != DefaultReevalSchedule {
		t.Errorf("schedule = %q", cfg.Reeval.Schedule)
	}
	if cfg.Store.DBPath == "" {
		t.Error("db path not defaulted")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("QUIZPILOT_API_KEY", "sk-test")
	t.Setenv("QUIZPILOT_EMAIL", "bob@example.com")
	t.Setenv("QUIZPILOT_SECRET", "hunter2")
	t.Setenv("QUIZPILOT_MAX_TURNS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Quiz.Email != "bob@example.com" || cfg.Quiz.Secret != "hunter2" {
		t.Errorf("quiz creds = %+v", cfg.Quiz)
	}
	if cfg.Solver.MaxTurns != 5 {
		t.Errorf("max turns = %d", cfg.Solver.MaxTurns)
	}
}

func TestOpenAIKeySwitchesProviderType(t *testing.T) {
	isolateHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-oai")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.Type != "openai" {
		t.Errorf("provider type = %q, want openai", cfg.Provider.Type)
	}
	if cfg.Provider.APIKey != "sk-oai" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	isolateHome(t)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-saved"
	cfg.Quiz.Email = "bob@example.com"
	cfg.Solver.MaxTurns = 7
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Provider.APIKey != "sk-saved" {
		t.Errorf("api key = %q", loaded.Provider.APIKey)
	}
	if loaded.Quiz.Email != "bob@example.com" {
		t.Errorf("email = %q", loaded.Quiz.Email)
	}
	if loaded.Solver.MaxTurns != 7 {
		t.Errorf("max turns = %d", loaded.Solver.MaxTurns)
	}
}

func TestConfigFileOverriddenByEnv(t *testing.T) {
	isolateHome(t)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-from-file"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	t.Setenv("QUIZPILOT_API_KEY", "sk-from-env")

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Provider.APIKey != "sk-from-env" {
		t.Errorf("api key = %q, env should win", loaded.Provider.APIKey)
	}
}

func TestConfigDirUnderHome(t *testing.T) {
	home := isolateHome(t)
	want := filepath.Join(home, ".quizpilot")
	if got := ConfigDir(); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}
