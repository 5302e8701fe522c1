package frontdoor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Upstream forwards normalized request bodies to an OpenAI-compatible provider.
type Upstream struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewUpstream returns a forwarder for baseURL. An empty apiKey passes the
// caller's Authorization header through instead.
func NewUpstream(baseURL, apiKey string, client *http.Client) *Upstream {
	if client == nil {
		client = http.DefaultClient
	}
	return &Upstream{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// Forward POSTs body to the provider path. The caller owns the response body.
func (u *Upstream) Forward(ctx context.Context, path, requestID string, body []byte, in http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accept := in.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	} else if auth := in.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	return resp, nil
}
