package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docchat-ai/docchat/internal/core"
)

// apiError is the wire shape of every error response. Kind is a stable
// machine-readable label; Retryable tells clients whether the same
// request may succeed later.
type apiError struct {
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	writeJSON(w, status, body)
}

func classify(err error) (int, apiError) {
	switch {
	case errors.Is(err, core.ErrDocumentNotFound),
		errors.Is(err, core.ErrConversationNotFound):
		return http.StatusNotFound, apiError{Kind: "not_found", Message: err.Error()}
	case errors.Is(err, core.ErrConversationArchived):
		return http.StatusConflict, apiError{Kind: "conversation_archived", Message: err.Error()}
	case errors.Is(err, core.ErrIngestionInProgress):
		return http.StatusConflict, apiError{Kind: "ingestion_in_progress", Retryable: true, Message: err.Error()}
	case errors.Is(err, core.ErrGenerationFailure):
		return http.StatusBadGateway, apiError{Kind: "generation_failure", Retryable: true, Message: err.Error()}
	case errors.Is(err, core.ErrEmbeddingRateLimited):
		return http.StatusServiceUnavailable, apiError{Kind: "rate_limited", Retryable: true, Message: err.Error()}
	case errors.Is(err, core.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable, apiError{Kind: "embedding_unavailable", Retryable: true, Message: err.Error()}
	case errors.Is(err, core.ErrEmbeddingTooLong):
		return http.StatusBadRequest, apiError{Kind: "input_too_long", Message: err.Error()}
	case errors.Is(err, core.ErrInvalidConfiguration),
		errors.Is(err, core.ErrInvalidUser):
		return http.StatusBadRequest, apiError{Kind: "invalid_request", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, apiError{Kind: "timeout", Retryable: true, Message: err.Error()}
	default:
		return http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal server error"}
	}
}
