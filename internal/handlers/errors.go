package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"medrag-api/internal/contextutil"
	"medrag-api/internal/ingest"
	"medrag-api/internal/rag"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// writeDomainError maps pipeline and engine errors to HTTP status codes.
// Client mistakes are 400s; upstream failures surface as gateway errors so
// callers can tell them apart from bugs in this service.
func writeDomainError(w http.ResponseWriter, ctx context.Context, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "request failed", "error", err)

	switch {
	case errors.Is(err, ingest.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, "Invalid document: only PDF files are supported")
	case errors.Is(err, ingest.ErrNoExtractableText):
		writeError(w, http.StatusBadRequest, "No extractable text in document; scanned PDFs need an OCR layer")
	case errors.Is(err, rag.ErrUpstreamTimeout), errors.Is(err, ingest.ErrUpstreamTimeout):
		writeError(w, http.StatusGatewayTimeout, "Upstream request timed out")
	case errors.Is(err, rag.ErrEmbedding), errors.Is(err, rag.ErrGeneration), errors.Is(err, ingest.ErrEmbedding):
		writeError(w, http.StatusBadGateway, "External service error")
	case errors.Is(err, rag.ErrSearch):
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
	case errors.Is(err, ingest.ErrStoreInconsistency):
		writeError(w, http.StatusInternalServerError, "Storage inconsistency; contact support")
	default:
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}
