// Package tokens estimates prompt sizes for dispatch records.
package tokens

import (
	"strings"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
)

// Counter counts prompt tokens for the models it supports.
type Counter interface {
	// Count returns the prompt token count for msgs.
	Count(model string, msgs []*domain.Message) int
	// SupportsModel reports whether the counter understands model.
	SupportsModel(model string) bool
}

// Registry picks a counter per model and falls back to an estimator.
// It is immutable once built.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the given counters, consulted in order.
func NewRegistry(counters ...Counter) *Registry {
	return &Registry{
		counters: counters,
		fallback: NewEstimator(),
	}
}

// Count counts tokens using the first counter that supports model.
func (r *Registry) Count(model string, msgs []*domain.Message) int {
	return r.CounterFor(model).Count(model, msgs)
}

// CounterFor returns the appropriate counter for a model.
func (r *Registry) CounterFor(model string) Counter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

// Estimator provides token count estimation based on character counts.
// This is a fallback for models without a tokenizer.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// Count estimates the token count.
func (e *Estimator) Count(model string, msgs []*domain.Message) int {
	totalChars := 0
	for _, msg := range msgs {
		if !msg.IsRecord() {
			continue
		}
		totalChars += len(msg.Role)
		totalChars += len(messageText(msg))
		// role tokens + separators
		totalChars += 4
	}
	return int(float64(totalChars) / e.CharsPerToken)
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// messageText flattens content for counting. Content that is not text is
// counted by its JSON form.
func messageText(msg *domain.Message) string {
	if text, err := domain.ContentText(msg.Content); err == nil {
		return text
	}
	b, err := msg.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}
