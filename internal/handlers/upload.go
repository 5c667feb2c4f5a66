package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"medrag-api/internal/contextutil"
	"medrag-api/internal/ingest"
	"medrag-api/internal/storage"
)

// maxUploadBytes caps the multipart form size for document uploads.
const maxUploadBytes = 32 << 20 // 32 MB

// Ingestor is the document pipeline as the HTTP layer consumes it.
// This interface is defined from the handler's perspective (consumer-first).
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte, filename, patientID string) (*ingest.DocumentSummary, error)
	DeleteDocument(ctx context.Context, patientID, documentID string) (int64, error)
	ListDocuments(ctx context.Context, patientID string) ([]storage.DocumentInfo, error)
	Stats(ctx context.Context, patientID string) (*storage.PatientStats, error)
}

// UploadHandler handles HTTP requests for document uploads.
type UploadHandler struct {
	pipeline Ingestor
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(pipeline Ingestor) *UploadHandler {
	return &UploadHandler{
		pipeline: pipeline,
	}
}

// UploadResponse represents the HTTP response for a successful upload.
type UploadResponse struct {
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	DocumentType string `json:"documentType"`
	ChunkCount   int    `json:"chunkCount"`
	PageCount    int    `json:"pageCount"`
	UploadDate   string `json:"uploadDate"`
	Message      string `json:"message"`
}

// ServeHTTP handles multipart document uploads. The form must carry the PDF
// under "file" and the owning patient under "patient_id".
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.WarnContext(ctx, "invalid multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	patientID := r.FormValue("patient_id")
	if patientID == "" {
		logger.WarnContext(ctx, "missing patient_id in upload")
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.WarnContext(ctx, "missing file in upload", "error", err)
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		logger.WarnContext(ctx, "rejected non-PDF upload", "filename", header.Filename)
		writeError(w, http.StatusBadRequest, "Invalid document: only PDF files are supported")
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read upload", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	summary, err := h.pipeline.Ingest(ctx, raw, header.Filename, patientID)
	if err != nil {
		writeDomainError(w, ctx, err, "Failed to process document")
		return
	}

	resp := UploadResponse{
		DocumentID:   summary.DocumentID,
		DocumentName: summary.DocumentName,
		DocumentType: string(summary.DocumentType),
		ChunkCount:   summary.ChunkCount,
		PageCount:    summary.PageCount,
		UploadDate:   summary.UploadDate.Format(time.RFC3339),
		Message:      "Document processed successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
