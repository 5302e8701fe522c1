package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
	"github.com/tjfontaine/polyglot-normalizer/internal/tokens"
)

// ObserveName is the registry identifier of Observe.
const ObserveName = "observe"

// Observe records the outbound model and messages right before dispatch.
// It never changes the payload. The sink should not block; wrap slow sinks in
// an asynchronous one.
type Observe struct {
	sink    ports.RecordSink
	counter tokens.Counter
	logger  *slog.Logger
	now     func() time.Time
}

// ObserveConfig configures an Observe stage.
type ObserveConfig struct {
	Sink ports.RecordSink
	// Counter estimates prompt tokens. Optional.
	Counter tokens.Counter
	Logger  *slog.Logger
}

// NewObserve creates the stage.
func NewObserve(cfg ObserveConfig) (*Observe, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("observe: sink required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Observe{
		sink:    cfg.Sink,
		counter: cfg.Counter,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Name returns the stage identifier.
func (s *Observe) Name() string {
	return ObserveName
}

// Process emits a dispatch record and returns the payload unchanged.
func (s *Observe) Process(ctx context.Context, in *ports.StageInput) (*domain.Payload, error) {
	p := in.Payload
	if p == nil {
		return p, nil
	}

	rec := &domain.DispatchRecord{
		RequestID:    in.RequestID,
		CallType:     in.CallType,
		Model:        p.Model(),
		MessageCount: len(p.Messages),
		CreatedAt:    s.now().UTC(),
	}

	text, err := renderMessages(p.Messages)
	if err != nil {
		s.logger.DebugContext(ctx, "dispatch record rendered raw",
			slog.String("request_id", in.RequestID),
			slog.String("error", err.Error()),
		)
		rec.Raw = true
	}
	rec.Messages = text

	if s.counter != nil && p.HasMessages {
		rec.TokenEstimate = s.counter.Count(rec.Model, p.Messages)
	}

	if err := s.sink.Record(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "dispatch record dropped",
			slog.String("request_id", in.RequestID),
			slog.String("error", err.Error()),
		)
	}
	return p, nil
}

// renderMessages returns indented JSON, or a %+v rendering together with a
// *domain.SerializationFault when the messages cannot be encoded.
func renderMessages(msgs []*domain.Message) (string, error) {
	b, err := json.MarshalIndent(msgs, "", "  ")
	if err == nil {
		return string(b), nil
	}

	raw := make([]any, len(msgs))
	for i, m := range msgs {
		if m.IsRecord() {
			raw[i] = m.Fields()
		} else {
			raw[i] = m.Opaque
		}
	}
	return fmt.Sprintf("%+v", raw), &domain.SerializationFault{Err: err}
}
