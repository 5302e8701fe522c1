// Package logsink writes dispatch records to a structured logger.
package logsink

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

// Sink logs every dispatch record at info level.
type Sink struct {
	logger *slog.Logger
}

// New creates a sink. A nil logger means slog.Default().
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

// Record logs rec.
func (s *Sink) Record(ctx context.Context, rec *domain.DispatchRecord) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "pre-dispatch",
		slog.String("request_id", rec.RequestID),
		slog.String("call_type", string(rec.CallType)),
		slog.String("model", rec.Model),
		slog.Int("message_count", rec.MessageCount),
		slog.Int("token_estimate", rec.TokenEstimate),
		slog.Bool("raw", rec.Raw),
		slog.String("messages", rec.Messages),
	)
	return nil
}

// Close is a no-op.
func (s *Sink) Close() error {
	return nil
}

var _ ports.RecordSink = (*Sink)(nil)
