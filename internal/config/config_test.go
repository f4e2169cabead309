package config

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestEnvPathResolvesRelativeToBaseDir(t *testing.T) {
	t.Setenv("COPILOT_TEST_PATH_1", "")
	base := filepath.FromSlash("/opt/sqlcopilot/bin")
	got := envPath("COPILOT_TEST_PATH_1", "./copilot.db", base)
	want := filepath.Join(base, "./copilot.db")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestEnvPathKeepsAbsolutePath(t *testing.T) {
	t.Setenv("COPILOT_TEST_PATH_2", "")
	base := filepath.FromSlash("/opt/sqlcopilot/bin")
	abs := filepath.Join(t.TempDir(), "copilot.db")
	got := envPath("COPILOT_TEST_PATH_2", abs, base)
	if got != abs {
		t.Fatalf("expected absolute path preserved, got %q", got)
	}
}

func TestExecutableDirNotEmpty(t *testing.T) {
	if d := executableDir(); d == "" {
		t.Fatalf("executableDir should not be empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COPILOT_HTTP_ADDR", "")
	t.Setenv("COPILOT_AGENT_ADDR", "")
	t.Setenv("COPILOT_ALLOWED_TARGETS", "")
	t.Setenv("COPILOT_COMMAND_TIMEOUT_SECONDS", "")

	cfg := Load()
	if cfg.HTTPAddr != ":8870" {
		t.Fatalf("expected default HTTPAddr=:8870, got %q", cfg.HTTPAddr)
	}
	if cfg.AgentAddr != "127.0.0.1:50061" {
		t.Fatalf("expected default AgentAddr, got %q", cfg.AgentAddr)
	}
	if len(cfg.AllowedTargets) != 0 {
		t.Fatalf("expected no target restriction by default, got %#v", cfg.AllowedTargets)
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Fatalf("expected default CommandTimeout=30s, got %v", cfg.CommandTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COPILOT_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("COPILOT_AGENT_ADDR", "agent.internal:50061")
	t.Setenv("COPILOT_ALLOWED_TARGETS", "db1, db2,")
	t.Setenv("COPILOT_COMMAND_TIMEOUT_SECONDS", "5")
	t.Setenv("COPILOT_MAX_MESSAGE_BYTES", "1024")

	cfg := Load()
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("expected HTTPAddr override, got %q", cfg.HTTPAddr)
	}
	if cfg.AgentAddr != "agent.internal:50061" {
		t.Fatalf("expected AgentAddr override, got %q", cfg.AgentAddr)
	}
	if !reflect.DeepEqual(cfg.AllowedTargets, []string{"db1", "db2"}) {
		t.Fatalf("unexpected AllowedTargets: %#v", cfg.AllowedTargets)
	}
	if cfg.CommandTimeout != 5*time.Second {
		t.Fatalf("expected CommandTimeout=5s, got %v", cfg.CommandTimeout)
	}
	if cfg.MaxMessageLen != 1024 {
		t.Fatalf("expected MaxMessageLen=1024, got %d", cfg.MaxMessageLen)
	}
}

func TestEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("COPILOT_TEST_INT", "not-a-number")
	if got := envInt("COPILOT_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}
