package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SHERPA_TEST_KEY", "sekrit")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
listen:
  port: 9090
search:
  primary: brave
  brave:
    api_key: ${SHERPA_TEST_KEY}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.Search.Primary != "brave" {
		t.Errorf("primary = %q, want brave", cfg.Search.Primary)
	}
	if cfg.Search.Brave.APIKey != "sekrit" {
		t.Errorf("api_key = %q, want env expansion", cfg.Search.Brave.APIKey)
	}
	// Unset fields keep defaults.
	if cfg.Agent.MaxSteps != 8 {
		t.Errorf("max_steps = %d, want default 8", cfg.Agent.MaxSteps)
	}
	if cfg.Memory.MaxTurns != 12 {
		t.Errorf("max_turns = %d, want default 12", cfg.Memory.MaxTurns)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
