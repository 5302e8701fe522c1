package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

const tracerName = "github.com/tjfontaine/polyglot-normalizer/internal/pipeline"

var (
	// ErrFrozen is returned when a stage is registered after serving began.
	ErrFrozen = errors.New("pipeline is frozen")
	// ErrDuplicateStage is returned when two stages share a name.
	ErrDuplicateStage = errors.New("duplicate stage name")
)

// Result is the outcome of one stage invocation: either a payload or a
// failure carrying a *domain.StageExecutionError.
type Result struct {
	Payload *domain.Payload
	Err     error
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Apply invokes a stage and folds returned errors, nil payloads and panics
// into a Result.
func Apply(ctx context.Context, stage ports.Stage, in *ports.StageInput) (res Result) {
	fail := func(err error) Result {
		return Result{Err: &domain.StageExecutionError{Stage: stage.Name(), CallType: in.CallType, Err: err}}
	}

	defer func() {
		if v := recover(); v != nil {
			res = fail(fmt.Errorf("panic: %v", v))
		}
	}()

	out, err := stage.Process(ctx, in)
	if err != nil {
		return fail(err)
	}
	if out == nil {
		return fail(errors.New("stage returned no payload"))
	}
	return Result{Payload: out}
}

// Runner executes stages in registration order, one linear pass per request.
// A failing stage is skipped: the next stage receives the payload the failing
// stage was given.
type Runner struct {
	mu     sync.Mutex
	stages []ports.Stage
	names  map[string]struct{}
	frozen atomic.Bool

	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for stage diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracerProvider sets the provider for per-stage spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewRunner creates an empty runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		names:  make(map[string]struct{}),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a stage. It fails once the runner is frozen.
func (r *Runner) Register(stage ports.Stage) error {
	if stage == nil {
		return errors.New("nil stage")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("register %s: %w", stage.Name(), ErrFrozen)
	}
	if _, ok := r.names[stage.Name()]; ok {
		return fmt.Errorf("register %s: %w", stage.Name(), ErrDuplicateStage)
	}
	r.names[stage.Name()] = struct{}{}
	r.stages = append(r.stages, stage)
	return nil
}

// Freeze closes registration. Run freezes implicitly.
func (r *Runner) Freeze() {
	if r.frozen.Load() {
		return
	}
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Stages returns the registered stage names in order.
func (r *Runner) Stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name()
	}
	return names
}

// Run passes the payload through every stage and returns the result. It never
// fails. If ctx is done the pass stops and the last valid payload is returned.
func (r *Runner) Run(ctx context.Context, in *ports.StageInput) *domain.Payload {
	r.Freeze()

	if in == nil || in.Payload == nil {
		return nil
	}

	current := in.Payload
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			r.logger.WarnContext(ctx, "pipeline abandoned",
				slog.String("request_id", in.RequestID),
				slog.String("call_type", string(in.CallType)),
				slog.String("next_stage", stage.Name()),
				slog.String("error", err.Error()),
			)
			return current
		}

		res := r.runStage(ctx, stage, in.WithPayload(current.Clone()))
		if !res.OK() {
			r.logger.ErrorContext(ctx, "pipeline stage failed",
				slog.String("request_id", in.RequestID),
				slog.String("stage", stage.Name()),
				slog.String("call_type", string(in.CallType)),
				slog.String("error", res.Err.Error()),
			)
			continue
		}
		current = res.Payload
	}

	return current
}

func (r *Runner) runStage(ctx context.Context, stage ports.Stage, in *ports.StageInput) Result {
	ctx, span := r.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("stage.name", stage.Name()),
		attribute.String("call_type", string(in.CallType)),
	))
	defer span.End()

	res := Apply(ctx, stage, in)
	if res.OK() {
		span.SetAttributes(attribute.String("outcome", "ok"))
	} else {
		span.SetAttributes(attribute.String("outcome", "skipped"))
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

// Ensure Runner implements the interface.
var _ ports.PipelineRunner = (*Runner)(nil)
