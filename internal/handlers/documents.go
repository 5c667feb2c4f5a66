package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medrag-api/internal/contextutil"
)

// DocumentsHandler handles HTTP requests for document management.
type DocumentsHandler struct {
	pipeline Ingestor
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(pipeline Ingestor) *DocumentsHandler {
	return &DocumentsHandler{
		pipeline: pipeline,
	}
}

// DocumentResponse represents one document in a listing.
type DocumentResponse struct {
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	DocumentType string `json:"documentType"`
	ChunkCount   int    `json:"chunkCount"`
	UploadDate   string `json:"uploadDate"`
}

// ListResponse represents the document listing response.
type ListResponse struct {
	PatientID string             `json:"patientId"`
	Documents []DocumentResponse `json:"documents"`
	Count     int                `json:"count"`
}

// DeleteResponse represents the document deletion response.
type DeleteResponse struct {
	DocumentID    string `json:"documentId"`
	ChunksDeleted int64  `json:"chunksDeleted"`
	Message       string `json:"message"`
}

// StatsResponse represents the patient stats response.
type StatsResponse struct {
	PatientID      string         `json:"patientId"`
	TotalDocuments int            `json:"totalDocuments"`
	TotalChunks    int            `json:"totalChunks"`
	ByType         map[string]int `json:"byType"`
}

// List returns the patient's uploaded documents, newest first.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	patientID := chi.URLParam(r, "patientID")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	docs, err := h.pipeline.ListDocuments(ctx, patientID)
	if err != nil {
		writeDomainError(w, ctx, err, "Failed to list documents")
		return
	}

	documents := make([]DocumentResponse, len(docs))
	for i, doc := range docs {
		documents[i] = DocumentResponse{
			DocumentID:   doc.DocumentID,
			DocumentName: doc.DocumentName,
			DocumentType: doc.DocumentType,
			ChunkCount:   doc.ChunkCount,
			UploadDate:   doc.UploadDate.Format(time.RFC3339),
		}
	}

	resp := ListResponse{
		PatientID: patientID,
		Documents: documents,
		Count:     len(documents),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Delete removes one of the patient's documents from both stores.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	patientID := chi.URLParam(r, "patientID")
	documentID := chi.URLParam(r, "documentID")
	if patientID == "" || documentID == "" {
		writeError(w, http.StatusBadRequest, "patient ID and document ID are required")
		return
	}

	deleted, err := h.pipeline.DeleteDocument(ctx, patientID, documentID)
	if err != nil {
		writeDomainError(w, ctx, err, "Failed to delete document")
		return
	}

	if deleted == 0 {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}

	resp := DeleteResponse{
		DocumentID:    documentID,
		ChunksDeleted: deleted,
		Message:       "Document deleted successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Stats returns aggregate counts for the patient's indexed corpus.
func (h *DocumentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	patientID := chi.URLParam(r, "patientID")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	stats, err := h.pipeline.Stats(ctx, patientID)
	if err != nil {
		writeDomainError(w, ctx, err, "Failed to get stats")
		return
	}

	resp := StatsResponse{
		PatientID:      patientID,
		TotalDocuments: stats.TotalDocuments,
		TotalChunks:    stats.TotalChunks,
		ByType:         stats.ByType,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
