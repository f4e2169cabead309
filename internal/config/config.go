package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	AuthToken      string
	SQLitePath     string
	AgentAddr      string
	AllowedTargets []string
	MaxMessageLen  int
	CommandTimeout time.Duration
	WSWriteTimeout time.Duration
	SnapshotBuffer int
}

func Load() Config {
	commandTimeoutSec := envInt("COPILOT_COMMAND_TIMEOUT_SECONDS", 30)
	wsWriteTimeoutSec := envInt("COPILOT_WS_WRITE_TIMEOUT_SECONDS", 10)
	baseDir := executableDir()
	return Config{
		HTTPAddr:       env("COPILOT_HTTP_ADDR", ":8870"),
		AuthToken:      env("COPILOT_AUTH_TOKEN", "sqlcopilot-dev-token"),
		SQLitePath:     envPath("COPILOT_SQLITE_PATH", filepath.Join(baseDir, "copilot.db"), baseDir),
		AgentAddr:      env("COPILOT_AGENT_ADDR", "127.0.0.1:50061"),
		AllowedTargets: splitCSV(env("COPILOT_ALLOWED_TARGETS", "")),
		MaxMessageLen:  envInt("COPILOT_MAX_MESSAGE_BYTES", 8192),
		CommandTimeout: time.Duration(commandTimeoutSec) * time.Second,
		WSWriteTimeout: time.Duration(wsWriteTimeoutSec) * time.Second,
		SnapshotBuffer: envInt("COPILOT_SNAPSHOT_BUFFER", 32),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func envPath(k, def, baseDir string) string {
	v := env(k, def)
	if v == "" {
		return v
	}
	if filepath.IsAbs(v) {
		return v
	}
	if baseDir == "" {
		return v
	}
	return filepath.Join(baseDir, v)
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil || exe == "" {
		return "."
	}
	if real, err := filepath.EvalSymlinks(exe); err == nil && real != "" {
		exe = real
	}
	dir := filepath.Dir(exe)
	if dir == "" {
		return "."
	}
	return dir
}
