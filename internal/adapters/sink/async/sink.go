// Package async decouples record sinks from the request path.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

var (
	// ErrQueueFull is returned when the buffer is full and the record is dropped.
	ErrQueueFull = errors.New("dispatch record queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatch record sink closed")
)

// Sink queues records and writes them to the wrapped sink from a single
// background goroutine. Record never blocks.
type Sink struct {
	next   ports.RecordSink
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *domain.DispatchRecord
	done   chan struct{}

	dropped atomic.Int64
}

// New starts the drain goroutine. buffer <= 0 means 256.
func New(next ports.RecordSink, buffer int, logger *slog.Logger) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sink{
		next:   next,
		logger: logger,
		queue:  make(chan *domain.DispatchRecord, buffer),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// Record enqueues rec or drops it when the queue is full.
func (s *Sink) Record(ctx context.Context, rec *domain.DispatchRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- rec:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Close flushes queued records, stops the drain goroutine, and closes the
// wrapped sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.next.Close()
}

func (s *Sink) drain() {
	defer close(s.done)
	for rec := range s.queue {
		// Records outlive the request that produced them.
		if err := s.next.Record(context.Background(), rec); err != nil {
			s.logger.Warn("dispatch record write failed",
				slog.String("request_id", rec.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}
}

var _ ports.RecordSink = (*Sink)(nil)
