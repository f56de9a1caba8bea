package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goalbot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "12345:token"
database:
  host: "localhost"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.GoalDueInDays != 7 {
		t.Errorf("goal_due_in_days = %d, want 7", cfg.Bot.GoalDueInDays)
	}
	if cfg.Bot.CodeLength != 6 {
		t.Errorf("code_length = %d, want 6", cfg.Bot.CodeLength)
	}
	if cfg.Bot.MaxIdleCycles != 3 {
		t.Errorf("max_idle_cycles = %d, want 3", cfg.Bot.MaxIdleCycles)
	}
	if cfg.Bot.AppBaseURL != "http://localhost" {
		t.Errorf("app_base_url = %q", cfg.Bot.AppBaseURL)
	}
	if len(cfg.Bot.CodeAlphabet) < 2 {
		t.Errorf("code_alphabet = %q", cfg.Bot.CodeAlphabet)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: ""
`)
	if _, err := Load(path); err == nil {
		t.Fatal("missing token accepted")
	}
}

func TestNormalizeTrimsBaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "12345:token"
	cfg.Bot.AppBaseURL = "https://example.com/"

	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Bot.AppBaseURL != "https://example.com" {
		t.Errorf("app_base_url = %q, want trailing slash trimmed", cfg.Bot.AppBaseURL)
	}
}

func TestNormalizeRejectsNegatives(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "12345:token"
	cfg.Bot.GoalDueInDays = -1

	if err := Normalize(cfg); err == nil {
		t.Fatal("negative goal_due_in_days accepted")
	}
}
