package storage

import "time"

// ChunkRecord represents one indexed chunk of a patient document.
// The ID doubles as the Qdrant point ID so the two stores stay joinable.
type ChunkRecord struct {
	ID           string // UUID (same as Qdrant point ID)
	PatientID    string
	DocumentID   string // UUID, shared by all chunks of one upload
	DocumentName string // Original filename
	DocumentType string // DEXA, VO2, HRV, LAB, GENERAL
	ChunkIndex   int    // Index within document (starts at 0)
	Content      string
	PageNumber   int // Estimated page, 1-based
	UploadDate   time.Time
}

// DocumentInfo summarizes one uploaded document across its chunks.
type DocumentInfo struct {
	DocumentID   string
	DocumentName string
	DocumentType string
	ChunkCount   int
	UploadDate   time.Time
}

// PatientStats aggregates a patient's indexed corpus.
type PatientStats struct {
	TotalDocuments int
	TotalChunks    int
	ByType         map[string]int // document count per document type
}

// ConversationTurn is one message of a chatbot exchange, kept for audit.
type ConversationTurn struct {
	ConversationID string
	UserID         string
	PatientID      string
	Role           string // "user" or "assistant"
	Content        string
	Embedding      []float32 // question embedding, nil for assistant turns
	HasContext     bool      // whether retrieved chunks backed the answer
	CreatedAt      time.Time
}
