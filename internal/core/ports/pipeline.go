// Package ports defines the interfaces the normalization pipeline consumes
// from and exposes to its host.
// This file contains the stage contract.
package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
)

// Identity is the caller identity supplied by the host. Stages treat it as opaque.
type Identity any

// Cache is a cache handle supplied by the host. Stages treat it as opaque.
type Cache any

// StageInput is the data handed to a stage for one request.
type StageInput struct {
	// Identity is the authenticated caller, if the host knows it.
	Identity Identity
	// Cache is the host cache handle, if any.
	Cache Cache
	// Payload is the request body. Stages may mutate it in place.
	Payload *domain.Payload
	// CallType is the provider operation being prepared.
	CallType domain.CallType
	// RequestID correlates diagnostics with the host request.
	RequestID string
}

// WithPayload returns a shallow copy of the input carrying p.
func (in *StageInput) WithPayload(p *domain.Payload) *StageInput {
	out := *in
	out.Payload = p
	return &out
}

// Stage transforms a request payload before dispatch.
//
// Implementations must not keep request-to-request mutable state; one
// instance serves all concurrent requests.
type Stage interface {
	// Name returns the unique identifier for this stage.
	Name() string
	// Process returns the (possibly mutated) payload.
	Process(ctx context.Context, in *StageInput) (*domain.Payload, error)
}

// PipelineRunner runs the registered stages for one request.
type PipelineRunner interface {
	// Run never fails; a stage that errors is skipped.
	Run(ctx context.Context, in *StageInput) *domain.Payload
}

// RecordSink receives dispatch records from the observability stage.
type RecordSink interface {
	Record(ctx context.Context, rec *domain.DispatchRecord) error
	Close() error
}

// RecordLister is implemented by sinks that can return what they stored.
type RecordLister interface {
	Recent(ctx context.Context, limit int) ([]*domain.DispatchRecord, error)
}
