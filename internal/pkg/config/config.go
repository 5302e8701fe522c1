package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides, e.g. NORM_SERVER__PORT=9000.
const EnvPrefix = "NORM_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Sink      SinkConfig      `koanf:"sink"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port    int    `koanf:"port"`
	Timeout string `koanf:"timeout"` // Duration string like "30s"
}

// UpstreamConfig points at the provider the host forwards normalized
// requests to. An empty BaseURL makes the host return the normalized payload.
type UpstreamConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Timeout string `koanf:"timeout"`
}

// PipelineConfig lists stages in execution order.
type PipelineConfig struct {
	Stages []PipelineStageConfig `koanf:"stages"`
	// AllowPrivateWebhooks lets webhook stages reach loopback and private addresses.
	AllowPrivateWebhooks bool `koanf:"allow_private_webhooks"`
}

type PipelineStageConfig struct {
	Name    string            `koanf:"name"`    // Optional: defaults to the type identifier
	Type    string            `koanf:"type"`    // combine_system_messages, strip_field, remove_name, observe, webhook
	Field   string            `koanf:"field"`   // strip_field only
	Roles   []string          `koanf:"roles"`   // strip_field only: restrict to these roles
	URL     string            `koanf:"url"`     // webhook only
	Timeout string            `koanf:"timeout"` // webhook only
	Headers map[string]string `koanf:"headers"` // webhook only
}

// SinkConfig selects where dispatch records go.
type SinkConfig struct {
	Type     string         `koanf:"type"`   // log, sqlite, postgres, none
	Buffer   int            `koanf:"buffer"` // async queue length
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type PostgresConfig struct {
	DSN string `koanf:"dsn"` // Supports ${VAR} substitution
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// DefaultStages reproduces the stock normalization chain.
func DefaultStages() []PipelineStageConfig {
	return []PipelineStageConfig{
		{Type: "combine_system_messages"},
		{Type: "remove_name"},
		{Type: "observe"},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (a missing file is fine) and applies environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.port":            8080,
		"server.timeout":         "30s",
		"upstream.timeout":       "60s",
		"sink.type":              "log",
		"sink.buffer":            256,
		"sink.sqlite.path":       "./data/dispatch.db",
		"telemetry.service_name": "polyglot-normalizer",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Pipeline.Stages) == 0 {
		cfg.Pipeline.Stages = DefaultStages()
	}

	cfg.Upstream.APIKey = substituteEnvVars(cfg.Upstream.APIKey)
	cfg.Sink.Postgres.DSN = substituteEnvVars(cfg.Sink.Postgres.DSN)
	for i := range cfg.Pipeline.Stages {
		for h, v := range cfg.Pipeline.Stages[i].Headers {
			cfg.Pipeline.Stages[i].Headers[h] = substituteEnvVars(v)
		}
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
