package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"medrag-api/internal/contextutil"
	"medrag-api/internal/rag"
)

// QueryHandler handles HTTP requests for patient document queries.
type QueryHandler struct {
	ragEngine rag.Engine
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(ragEngine rag.Engine) *QueryHandler {
	return &QueryHandler{
		ragEngine: ragEngine,
	}
}

// QueryRequest represents the HTTP request payload for document queries.
// This mirrors rag.AskRequest but is defined here for HTTP layer separation.
type QueryRequest struct {
	Question  string `json:"question"`
	PatientID string `json:"patientId"`
	UserID    string `json:"userId"`
	K         int    `json:"k,omitempty"`
}

// ServeHTTP handles HTTP requests for document queries.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		logger.WarnContext(ctx, "empty question in request")
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.PatientID == "" {
		logger.WarnContext(ctx, "missing patient ID in request")
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	if req.K < 0 {
		req.K = 0
	}

	ragResp, err := h.ragEngine.Ask(ctx, rag.AskRequest{
		Question:  req.Question,
		PatientID: req.PatientID,
		UserID:    req.UserID,
		K:         req.K,
	})
	if err != nil {
		writeDomainError(w, ctx, err, "Failed to process query")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ragResp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
