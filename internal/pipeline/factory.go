package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
	"github.com/tjfontaine/polyglot-normalizer/internal/pkg/config"
	"github.com/tjfontaine/polyglot-normalizer/internal/tokens"
)

// Stage type identifiers accepted in configuration.
const (
	TypeCombineSystemMessages = CombineSystemMessagesName
	TypeStripField            = "strip_field"
	TypeRemoveName            = "remove_name"
	TypeObserve               = ObserveName
	TypeWebhook               = "webhook"
)

// ErrUnknownStage is returned for a stage type with no constructor.
var ErrUnknownStage = errors.New("unknown stage type")

// Deps are the shared collaborators stage constructors may need.
type Deps struct {
	Sink       ports.RecordSink
	Counter    tokens.Counter
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Constructor builds a stage from its configuration.
type Constructor func(cfg config.PipelineStageConfig, deps Deps) (ports.Stage, error)

// Registry maps stage type identifiers to constructors. It is populated at
// startup and only read afterwards.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns a registry holding the built-in stages.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register(TypeCombineSystemMessages, func(config.PipelineStageConfig, Deps) (ports.Stage, error) {
		return NewCombineSystemMessages(), nil
	})
	r.Register(TypeRemoveName, func(config.PipelineStageConfig, Deps) (ports.Stage, error) {
		return NewRemoveName(), nil
	})
	r.Register(TypeStripField, newStripFieldFromConfig)
	r.Register(TypeObserve, func(_ config.PipelineStageConfig, deps Deps) (ports.Stage, error) {
		return NewObserve(ObserveConfig{Sink: deps.Sink, Counter: deps.Counter, Logger: deps.Logger})
	})
	r.Register(TypeWebhook, newWebhookFromConfig)
	return r
}

// Register adds or replaces the constructor for typ.
func (r *Registry) Register(typ string, ctor Constructor) {
	r.ctors[typ] = ctor
}

// Build constructs one stage. A configured name overrides the stage's own.
func (r *Registry) Build(cfg config.PipelineStageConfig, deps Deps) (ports.Stage, error) {
	ctor, ok := r.ctors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownStage, cfg.Type)
	}
	stage, err := ctor(cfg, deps)
	if err != nil {
		return nil, err
	}
	if cfg.Name != "" && cfg.Name != stage.Name() {
		stage = &renamedStage{Stage: stage, name: cfg.Name}
	}
	return stage, nil
}

// NewRunnerFromConfig builds, registers, and freezes the configured stages in order.
func NewRunnerFromConfig(cfg config.PipelineConfig, reg *Registry, deps Deps, opts ...Option) (*Runner, error) {
	if reg == nil {
		reg = NewRegistry()
	}

	runner := NewRunner(opts...)
	for i, stageCfg := range cfg.Stages {
		stage, err := reg.Build(stageCfg, deps)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, stageCfg.Type, err)
		}
		if err := runner.Register(stage); err != nil {
			return nil, err
		}
	}
	runner.Freeze()

	return runner, nil
}

func newStripFieldFromConfig(cfg config.PipelineStageConfig, _ Deps) (ports.Stage, error) {
	roles := make([]domain.Role, len(cfg.Roles))
	for i, r := range cfg.Roles {
		roles[i] = domain.Role(r)
	}
	return NewStripField(StripFieldConfig{Name: cfg.Name, Field: cfg.Field, Roles: roles})
}

func newWebhookFromConfig(cfg config.PipelineStageConfig, deps Deps) (ports.Stage, error) {
	timeout := 5 * time.Second // Default
	if cfg.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
		}
	}

	name := cfg.Name
	if name == "" {
		name = TypeWebhook
	}

	return NewWebhookStage(WebhookStageConfig{
		Name:    name,
		URL:     cfg.URL,
		Timeout: timeout,
		Headers: cfg.Headers,
		Client:  deps.HTTPClient,
	})
}

// renamedStage gives a stage the name it was configured with.
type renamedStage struct {
	ports.Stage
	name string
}

func (s *renamedStage) Name() string {
	return s.name
}
