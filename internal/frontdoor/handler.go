// Package frontdoor exposes the OpenAI-style HTTP surface of the host. Every
// request body is run through the normalization pipeline and then forwarded
// to the configured provider, or echoed back when there is none.
package frontdoor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
	"github.com/tjfontaine/polyglot-normalizer/internal/server"
)

// MaxBodyBytes caps the size of a request body.
const MaxBodyBytes = 10 << 20

// Route binds a provider path to the call type its body represents.
type Route struct {
	Path     string
	CallType domain.CallType
}

// Routes are the provider endpoints the host accepts.
var Routes = []Route{
	{Path: "/v1/chat/completions", CallType: domain.CallCompletion},
	{Path: "/v1/completions", CallType: domain.CallTextCompletion},
	{Path: "/v1/embeddings", CallType: domain.CallEmbeddings},
	{Path: "/v1/images/generations", CallType: domain.CallImageGeneration},
	{Path: "/v1/moderations", CallType: domain.CallModeration},
	{Path: "/v1/audio/transcriptions", CallType: domain.CallAudioTranscription},
}

// Config wires a Handler.
type Config struct {
	Runner ports.PipelineRunner
	// Upstream receives normalized requests. Nil echoes them back.
	Upstream *Upstream
	Logger   *slog.Logger
}

type Handler struct {
	runner   ports.PipelineRunner
	upstream *Upstream
	logger   *slog.Logger
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("frontdoor: runner is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner:   cfg.Runner,
		upstream: cfg.Upstream,
		logger:   logger,
	}, nil
}

// Mount registers the provider routes.
func (h *Handler) Mount(r chi.Router) {
	for _, route := range Routes {
		r.Post(route.Path, h.handle(route))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, domain.ErrNotFound(fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)))
	})
}

func (h *Handler) handle(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := server.GetRequestID(ctx)
		server.AddLogField(ctx, "call_type", string(route.CallType))

		payload, err := decodeBody(w, r)
		if err != nil {
			server.AddError(ctx, err)
			WriteError(w, err)
			return
		}
		server.AddLogField(ctx, "model", payload.Model())

		normalized := h.runner.Run(ctx, &ports.StageInput{
			Payload:   payload,
			CallType:  route.CallType,
			RequestID: requestID,
		})

		body, err := json.Marshal(normalized)
		if err != nil {
			server.AddError(ctx, err)
			WriteError(w, fmt.Errorf("encode normalized payload: %w", err))
			return
		}

		if h.upstream == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
			return
		}

		h.forward(w, r, route.Path, requestID, body)
	}
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, path, requestID string, body []byte) {
	ctx := r.Context()

	resp, err := h.upstream.Forward(ctx, path, requestID, body, r.Header)
	if err != nil {
		server.AddError(ctx, err)
		h.logger.Warn("upstream unavailable",
			slog.String("request_id", requestID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		WriteError(w, domain.ErrUpstream("upstream unavailable"))
		return
	}
	defer resp.Body.Close()

	for _, k := range []string{"Content-Type", "Cache-Control"} {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	// Stream responses pass through as they arrive.
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				server.AddError(ctx, readErr)
			}
			return
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request) (*domain.Payload, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.ErrInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, domain.ErrInvalidRequest("failed to read request body")
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, domain.ErrInvalidRequest("request body must be a JSON object")
	}

	var payload domain.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("invalid JSON: %v", err))
	}
	return &payload, nil
}
