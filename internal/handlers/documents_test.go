package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"medrag-api/internal/storage"
)

// newDocumentsRouter mounts the handler the way the real router does, so
// chi URL params resolve in tests.
func newDocumentsRouter(h *DocumentsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/documents/{patientID}", h.List)
	r.Get("/api/documents/{patientID}/stats", h.Stats)
	r.Delete("/api/documents/{patientID}/{documentID}", h.Delete)
	return r
}

func TestDocumentsHandler_List(t *testing.T) {
	uploaded := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ingestor := &fakeIngestor{docs: []storage.DocumentInfo{
		{DocumentID: "doc-2", DocumentName: "dexa.pdf", DocumentType: "DEXA", ChunkCount: 2, UploadDate: uploaded},
		{DocumentID: "doc-1", DocumentName: "labs.pdf", DocumentType: "LAB", ChunkCount: 3, UploadDate: uploaded.Add(-24 * time.Hour)},
	}}
	router := newDocumentsRouter(NewDocumentsHandler(ingestor))

	req := httptest.NewRequest(http.MethodGet, "/api/documents/patient-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp ListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PatientID != "patient-1" {
		t.Errorf("patientId = %v, want patient-1", resp.PatientID)
	}
	if resp.Count != 2 || len(resp.Documents) != 2 {
		t.Fatalf("count = %d with %d documents, want 2", resp.Count, len(resp.Documents))
	}
	if resp.Documents[0].DocumentID != "doc-2" {
		t.Errorf("documents[0].documentId = %v, want doc-2", resp.Documents[0].DocumentID)
	}
}

func TestDocumentsHandler_List_Empty(t *testing.T) {
	router := newDocumentsRouter(NewDocumentsHandler(&fakeIngestor{docs: []storage.DocumentInfo{}}))

	req := httptest.NewRequest(http.MethodGet, "/api/documents/patient-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp ListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}
	if resp.Documents == nil {
		t.Error("documents should encode as an empty array, not null")
	}
}

func TestDocumentsHandler_Delete(t *testing.T) {
	ingestor := &fakeIngestor{deleted: 5}
	router := newDocumentsRouter(NewDocumentsHandler(ingestor))

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/patient-1/doc-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp DeleteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.DocumentID != "doc-1" {
		t.Errorf("documentId = %v, want doc-1", resp.DocumentID)
	}
	if resp.ChunksDeleted != 5 {
		t.Errorf("chunksDeleted = %v, want 5", resp.ChunksDeleted)
	}
}

func TestDocumentsHandler_Delete_NotFound(t *testing.T) {
	router := newDocumentsRouter(NewDocumentsHandler(&fakeIngestor{deleted: 0}))

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/patient-1/unknown-doc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDocumentsHandler_Delete_Error(t *testing.T) {
	router := newDocumentsRouter(NewDocumentsHandler(&fakeIngestor{deleteErr: errors.New("qdrant unavailable")}))

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/patient-1/doc-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestDocumentsHandler_Stats(t *testing.T) {
	ingestor := &fakeIngestor{stats: &storage.PatientStats{
		TotalDocuments: 3,
		TotalChunks:    12,
		ByType:         map[string]int{"DEXA": 1, "LAB": 2},
	}}
	router := newDocumentsRouter(NewDocumentsHandler(ingestor))

	req := httptest.NewRequest(http.MethodGet, "/api/documents/patient-1/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TotalDocuments != 3 {
		t.Errorf("totalDocuments = %v, want 3", resp.TotalDocuments)
	}
	if resp.TotalChunks != 12 {
		t.Errorf("totalChunks = %v, want 12", resp.TotalChunks)
	}
	if resp.ByType["LAB"] != 2 {
		t.Errorf("byType[LAB] = %v, want 2", resp.ByType["LAB"])
	}
}
