package frontdoor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
)

// ToAPIError converts any error to a domain.APIError.
// If the error is already a domain.APIError, it returns it directly.
// Otherwise it becomes a generic server error.
func ToAPIError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &domain.APIError{Type: domain.ErrorTypeServer, Message: err.Error()}
}

// WriteError writes err in the OpenAI error envelope:
//
//	{"error": {"type": "...", "message": "..."}}
func WriteError(w http.ResponseWriter, err error) {
	apiErr := ToAPIError(err)

	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{
			"type":    openAIErrorType(apiErr.Type),
			"message": apiErr.Message,
		},
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatusCode())
	w.Write(body)
}

func openAIErrorType(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeInvalidRequest:
		return "invalid_request_error"
	case domain.ErrorTypeNotFound:
		return "not_found"
	case domain.ErrorTypeUpstream:
		return "upstream_error"
	default:
		return "server_error"
	}
}
