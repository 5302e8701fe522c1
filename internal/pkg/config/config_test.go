package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("Load() port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Sink.Type != "log" {
			t.Errorf("Load() sink type = %q, want log", cfg.Sink.Type)
		}
		if len(cfg.Pipeline.Stages) != len(DefaultStages()) {
			t.Errorf("Load() stages = %d, want defaults", len(cfg.Pipeline.Stages))
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		t.Setenv("NORM_SERVER__PORT", "9000")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 9000 {
			t.Errorf("Load() port = %v, want 9000", cfg.Server.Port)
		}
	})

	t.Run("pipeline from file", func(t *testing.T) {
		t.Setenv("HOOK_TOKEN", "secret")
		path := writeConfig(t, `
server:
  port: 7070
sink:
  type: sqlite
  sqlite:
    path: /tmp/records.db
pipeline:
  stages:
    - type: combine_system_messages
    - type: strip_field
      field: tool_call_id
      roles: [user]
    - type: webhook
      name: redact
      url: http://hooks.internal/redact
      timeout: 2s
      headers:
        Authorization: Bearer ${HOOK_TOKEN}
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 7070 {
			t.Errorf("port = %d, want 7070", cfg.Server.Port)
		}
		if cfg.Sink.SQLite.Path != "/tmp/records.db" {
			t.Errorf("sqlite path = %q", cfg.Sink.SQLite.Path)
		}
		if len(cfg.Pipeline.Stages) != 3 {
			t.Fatalf("stages = %d, want 3", len(cfg.Pipeline.Stages))
		}
		strip := cfg.Pipeline.Stages[1]
		if strip.Field != "tool_call_id" || len(strip.Roles) != 1 || strip.Roles[0] != "user" {
			t.Errorf("unexpected strip stage: %+v", strip)
		}
		hook := cfg.Pipeline.Stages[2]
		if got := hook.Headers["Authorization"]; got != "Bearer secret" {
			t.Errorf("webhook header = %q, want substituted token", got)
		}
	})
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad_PostgresSink(t *testing.T) {
	t.Setenv("PG_PASSWORD", "hunter2")
	path := writeConfig(t, `
sink:
  type: postgres
  postgres:
    dsn: postgres://norm:${PG_PASSWORD}@db:5432/norm
pipeline:
  allow_private_webhooks: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sink.Postgres.DSN != "postgres://norm:hunter2@db:5432/norm" {
		t.Errorf("dsn = %q", cfg.Sink.Postgres.DSN)
	}
	if !cfg.Pipeline.AllowPrivateWebhooks {
		t.Error("allow_private_webhooks not loaded")
	}
}
