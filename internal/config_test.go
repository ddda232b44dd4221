package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.QuarantineRoot() != "quarantine" {
		t.Errorf("quarantine root = %q", cfg.QuarantineRoot())
	}
}

func TestWatchConfig_ModeValidation(t *testing.T) {
	cfg := WatchConfig{Mode: "inotify"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown watch mode should fail")
	}

	cfg = WatchConfig{Mode: "", IntervalSeconds: 15}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default: %v", err)
	}
	if cfg.Mode != WatchModePoll {
		t.Errorf("mode = %q, want poll", cfg.Mode)
	}
	if cfg.Interval() != 15*time.Second {
		t.Errorf("interval = %v", cfg.Interval())
	}
}

func TestRootConfig_WorkflowValidation(t *testing.T) {
	root := RootConfig{Path: "imports", Workflow: "ingest", FolderType: "import"}
	if err := root.Validate(); err == nil {
		t.Error("unknown workflow should fail")
	}
}

func TestConfig_RequiresQuarantineRoot(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Roots = cfg.Roots[:2] // drop the quarantine root
	err := cfg.Validate()
	if err == nil {
		t.Fatal("config without quarantine root should fail")
	}
	if !strings.Contains(err.Error(), "quarantine") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLocksConfig_Durations(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Locks.Timeout() != 7200*time.Second {
		t.Errorf("timeout = %v", cfg.Locks.Timeout())
	}
	if cfg.Locks.SweepInterval() != time.Hour {
		t.Errorf("sweep = %v", cfg.Locks.SweepInterval())
	}
}
