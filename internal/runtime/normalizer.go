// Package runtime assembles the normalizer host from configuration and
// manages its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-normalizer/internal/adapters/sink/async"
	"github.com/tjfontaine/polyglot-normalizer/internal/adapters/sink/logsink"
	"github.com/tjfontaine/polyglot-normalizer/internal/adapters/sink/postgres"
	"github.com/tjfontaine/polyglot-normalizer/internal/adapters/sink/sqlite"
	"github.com/tjfontaine/polyglot-normalizer/internal/controlplane"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
	"github.com/tjfontaine/polyglot-normalizer/internal/frontdoor"
	"github.com/tjfontaine/polyglot-normalizer/internal/pipeline"
	"github.com/tjfontaine/polyglot-normalizer/internal/pkg/config"
	"github.com/tjfontaine/polyglot-normalizer/internal/pkg/safehttp"
	"github.com/tjfontaine/polyglot-normalizer/internal/server"
	"github.com/tjfontaine/polyglot-normalizer/internal/tokens"
)

// Sink types accepted in configuration.
const (
	SinkLog      = "log"
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkNone     = "none"
)

// Normalizer is the host process: an HTTP front door that runs every request
// through the normalization pipeline before forwarding it.
type Normalizer struct {
	// Dependencies (injected via options)
	cfg            *config.Config
	logger         *slog.Logger
	sink           ports.RecordSink
	tracerProvider trace.TracerProvider
	registry       *pipeline.Registry
	webhookClient  *http.Client
	upstreamClient *http.Client

	// Built by New
	queue   *async.Sink
	runner  *pipeline.Runner
	server  *server.Server
	closers []func() error

	mu      sync.Mutex
	started bool
	done    chan error
}

// New builds the pipeline, sinks and HTTP routes. Nothing listens until Start.
func New(opts ...Option) (*Normalizer, error) {
	n := &Normalizer{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if n.cfg == nil {
		return nil, errors.New("config required (use WithConfig or WithFileConfig)")
	}
	if n.tracerProvider == nil {
		n.tracerProvider = otel.GetTracerProvider()
	}
	if n.registry == nil {
		n.registry = pipeline.NewRegistry()
	}
	if n.webhookClient == nil {
		n.webhookClient = safehttp.NewClient(n.cfg.Pipeline.AllowPrivateWebhooks)
	}

	lister, err := n.initSink(context.Background())
	if err != nil {
		return nil, fmt.Errorf("init sink: %w", err)
	}

	if err := n.initRunner(); err != nil {
		n.closeAll()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	if err := n.initServer(lister); err != nil {
		n.closeAll()
		return nil, fmt.Errorf("init server: %w", err)
	}

	return n, nil
}

// initSink builds the configured sink unless one was injected. Sinks are
// wrapped so the observe stage never waits on I/O.
func (n *Normalizer) initSink(ctx context.Context) (ports.RecordLister, error) {
	inner := n.sink
	if inner == nil {
		switch n.cfg.Sink.Type {
		case SinkLog, "":
			inner = logsink.New(n.logger)
		case SinkSQLite:
			path := n.cfg.Sink.SQLite.Path
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create sqlite directory: %w", err)
				}
			}
			store, err := sqlite.New(path)
			if err != nil {
				return nil, err
			}
			inner = store
		case SinkPostgres:
			if n.cfg.Sink.Postgres.DSN == "" {
				return nil, errors.New("sink.postgres.dsn required")
			}
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			store, err := postgres.New(ctx, n.cfg.Sink.Postgres.DSN)
			if err != nil {
				return nil, err
			}
			inner = store
		case SinkNone:
			return nil, nil
		default:
			return nil, fmt.Errorf("unknown sink type %q", n.cfg.Sink.Type)
		}
	}

	lister, _ := inner.(ports.RecordLister)

	queued := async.New(inner, n.cfg.Sink.Buffer, n.logger)
	n.queue = queued
	n.sink = queued
	// Closing the queue flushes and closes inner.
	n.closers = append(n.closers, queued.Close)

	return lister, nil
}

func (n *Normalizer) initRunner() error {
	counter := n.tokenCounter()

	runner, err := pipeline.NewRunnerFromConfig(n.cfg.Pipeline, n.registry, pipeline.Deps{
		Sink:       n.sink,
		Counter:    counter,
		Logger:     n.logger,
		HTTPClient: n.webhookClient,
	},
		pipeline.WithLogger(n.logger),
		pipeline.WithTracerProvider(n.tracerProvider),
	)
	if err != nil {
		return err
	}
	n.runner = runner

	n.logger.Info("pipeline ready", slog.Any("stages", runner.Stages()))
	return nil
}

func (n *Normalizer) tokenCounter() tokens.Counter {
	openai, err := tokens.NewOpenAICounter()
	if err != nil {
		n.logger.Warn("tokenizer unavailable, using estimates", slog.String("error", err.Error()))
		return tokens.NewRegistry()
	}
	return tokens.NewRegistry(openai)
}

func (n *Normalizer) initServer(lister ports.RecordLister) error {
	timeout, err := parseDuration(n.cfg.Server.Timeout)
	if err != nil {
		return fmt.Errorf("server.timeout: %w", err)
	}

	var upstream *frontdoor.Upstream
	if n.cfg.Upstream.BaseURL != "" {
		client := n.upstreamClient
		if client == nil {
			upstreamTimeout, err := parseDuration(n.cfg.Upstream.Timeout)
			if err != nil {
				return fmt.Errorf("upstream.timeout: %w", err)
			}
			client = &http.Client{Timeout: upstreamTimeout}
		}
		upstream = frontdoor.NewUpstream(n.cfg.Upstream.BaseURL, n.cfg.Upstream.APIKey, client)
	}

	handler, err := frontdoor.NewHandler(frontdoor.Config{
		Runner:   n.runner,
		Upstream: upstream,
		Logger:   n.logger,
	})
	if err != nil {
		return err
	}

	admin := controlplane.Config{Stages: n.runner.Stages, Records: lister}
	if n.queue != nil {
		admin.Dropped = n.queue.Dropped
	}

	n.server = server.New(n.cfg.Server.Port, timeout, n.logger)
	handler.Mount(n.server.Router)
	n.server.Router.Mount("/admin", controlplane.NewServer(admin))
	return nil
}

// Handler returns the HTTP handler, for embedding or tests.
func (n *Normalizer) Handler() http.Handler {
	return n.server.Router
}

// Runner returns the frozen pipeline runner.
func (n *Normalizer) Runner() *pipeline.Runner {
	return n.runner
}

// Start begins serving in the background. Listen errors surface through Done.
func (n *Normalizer) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return errors.New("already started")
	}
	n.started = true
	n.done = make(chan error, 1)

	go func() {
		n.done <- n.server.Start()
	}()

	n.logger.Info("normalizer started",
		slog.Int("port", n.cfg.Server.Port),
		slog.String("upstream", n.cfg.Upstream.BaseURL),
		slog.String("sink", n.cfg.Sink.Type))
	return nil
}

// Done yields the server's exit error once it stops. It is nil before Start.
func (n *Normalizer) Done() <-chan error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}

// Shutdown stops the server, then flushes and closes the sinks.
func (n *Normalizer) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.logger.Info("shutting down normalizer")

	var errs []error
	if n.started {
		if err := n.server.Shutdown(ctx); err != nil {
			n.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := n.closeAll(); err != nil {
		errs = append(errs, err)
	}

	n.logger.Info("normalizer shutdown complete")
	return errors.Join(errs...)
}

func (n *Normalizer) closeAll() error {
	var errs []error
	for _, c := range n.closers {
		if err := c(); err != nil {
			n.logger.Error("failed to close sink", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
