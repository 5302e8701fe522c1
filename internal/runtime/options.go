package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
	"github.com/tjfontaine/polyglot-normalizer/internal/pipeline"
	"github.com/tjfontaine/polyglot-normalizer/internal/pkg/config"
)

// Option is a functional option for configuring a Normalizer.
type Option func(*Normalizer) error

// WithFileConfig loads configuration from a YAML file plus NORM_ environment
// overrides. A missing file leaves only the environment and defaults.
func WithFileConfig(path string) Option {
	return func(n *Normalizer) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		n.cfg = cfg
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(n *Normalizer) error {
		if cfg == nil {
			return errors.New("nil config")
		}
		n.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger used by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) error {
		if logger != nil {
			n.logger = logger
		}
		return nil
	}
}

// WithSink replaces the configured record sink. The normalizer takes
// ownership and closes it on shutdown.
func WithSink(sink ports.RecordSink) Option {
	return func(n *Normalizer) error {
		n.sink = sink
		return nil
	}
}

// WithTracerProvider sets the provider for pipeline spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(n *Normalizer) error {
		n.tracerProvider = tp
		return nil
	}
}

// WithStageRegistry supplies a registry with additional stage types.
func WithStageRegistry(reg *pipeline.Registry) Option {
	return func(n *Normalizer) error {
		n.registry = reg
		return nil
	}
}

// WithWebhookClient overrides the client webhook stages use.
func WithWebhookClient(c *http.Client) Option {
	return func(n *Normalizer) error {
		n.webhookClient = c
		return nil
	}
}

// WithUpstreamClient overrides the client used to reach the provider.
func WithUpstreamClient(c *http.Client) Option {
	return func(n *Normalizer) error {
		n.upstreamClient = c
		return nil
	}
}
