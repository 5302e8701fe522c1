package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

// maxWebhookResponseBytes caps how much of a webhook reply is read.
const maxWebhookResponseBytes = 10 << 20

// WebhookAction is the verdict returned by a webhook.
type WebhookAction string

const (
	// WebhookAllow keeps the payload as is.
	WebhookAllow WebhookAction = "allow"
	// WebhookMutate replaces the payload with the one returned.
	WebhookMutate WebhookAction = "mutate"
)

// WebhookRequest is the body posted to a webhook.
type WebhookRequest struct {
	CallType domain.CallType `json:"call_type"`
	Payload  *domain.Payload `json:"payload"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// WebhookResponse is the body a webhook must return.
type WebhookResponse struct {
	Action  WebhookAction   `json:"action"`
	Payload *domain.Payload `json:"payload,omitempty"`
}

// WebhookStage hands the payload to an external HTTP endpoint that may
// rewrite it. Every transport, status, or decoding problem is returned as an
// error so the runner skips the stage; a webhook can never block delivery.
type WebhookStage struct {
	name    string
	url     string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
}

// WebhookStageConfig configures a webhook stage.
type WebhookStageConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
	Headers map[string]string
	// Client overrides the HTTP client. Timeout still bounds each call.
	Client *http.Client
}

// NewWebhookStage creates a new webhook stage.
func NewWebhookStage(cfg WebhookStageConfig) (*WebhookStage, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("webhook stage: name required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook stage %s: url required", cfg.Name)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &WebhookStage{
		name:    cfg.Name,
		url:     cfg.URL,
		headers: cfg.Headers,
		timeout: timeout,
		client:  client,
	}, nil
}

// Name returns the stage identifier.
func (s *WebhookStage) Name() string {
	return s.name
}

// Process executes the webhook call.
func (s *WebhookStage) Process(ctx context.Context, in *ports.StageInput) (*domain.Payload, error) {
	body, err := json.Marshal(WebhookRequest{
		CallType: in.CallType,
		Payload:  in.Payload,
		Metadata: map[string]any{"request_id": in.RequestID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(respBody) > maxWebhookResponseBytes {
		return nil, fmt.Errorf("webhook response exceeds %d bytes", maxWebhookResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out WebhookResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal webhook response: %w", err)
	}

	switch out.Action {
	case WebhookAllow, "":
		return in.Payload, nil
	case WebhookMutate:
		if out.Payload == nil {
			return nil, fmt.Errorf("webhook mutate without payload")
		}
		return out.Payload, nil
	default:
		return nil, fmt.Errorf("invalid action from webhook: %s", out.Action)
	}
}

// Ensure WebhookStage implements the interface.
var _ ports.Stage = (*WebhookStage)(nil)
