package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks medrag-api/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// ChunkStore defines the interface for document chunk metadata operations.
type ChunkStore interface {
	// InsertMany inserts all chunks of a document in a single transaction.
	// Either every chunk is persisted or none is.
	InsertMany(ctx context.Context, chunks []*ChunkRecord) error
	// DeleteByDocument deletes all chunks for a document owned by the given
	// patient and returns the number of rows removed.
	DeleteByDocument(ctx context.Context, patientID, documentID string) (int64, error)
	// ListDocuments returns one entry per document for a patient, newest first.
	ListDocuments(ctx context.Context, patientID string) ([]DocumentInfo, error)
	// Stats returns aggregate counts for a patient's indexed corpus.
	Stats(ctx context.Context, patientID string) (*PatientStats, error)
}

// ChunkRepo provides methods for document chunk metadata operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertMany inserts all chunks of a document in a single transaction.
// Each chunk.ID must be set (UUID) before calling this method.
func (r *ChunkRepo) InsertMany(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks
			(id, patient_id, document_id, document_name, document_type, chunk_index, content, page_number, upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.PatientID, chunk.DocumentID, chunk.DocumentName,
			chunk.DocumentType, chunk.ChunkIndex, chunk.Content, chunk.PageNumber,
			chunk.UploadDate,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk insert: %w", err)
	}
	return nil
}

// DeleteByDocument deletes all chunks for a document owned by the given patient.
// Returns the number of rows deleted; deleting an unknown document is not an error.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, patientID, documentID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM document_chunks WHERE patient_id = ? AND document_id = ?",
		patientID, documentID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks by document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows, nil
}

// ListDocuments returns one entry per document for a patient, newest first.
// Returns an empty slice if the patient has no documents (not an error).
func (r *ChunkRepo) ListDocuments(ctx context.Context, patientID string) ([]DocumentInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id, document_name, document_type, COUNT(*), MAX(upload_date)
		FROM document_chunks
		WHERE patient_id = ?
		GROUP BY document_id, document_name, document_type
		ORDER BY MAX(upload_date) DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	docs := []DocumentInfo{}
	for rows.Next() {
		var doc DocumentInfo
		if err := rows.Scan(&doc.DocumentID, &doc.DocumentName, &doc.DocumentType, &doc.ChunkCount, &doc.UploadDate); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}

// Stats returns aggregate counts for a patient's indexed corpus.
func (r *ChunkRepo) Stats(ctx context.Context, patientID string) (*PatientStats, error) {
	stats := &PatientStats{ByType: make(map[string]int)}

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT document_id), COUNT(*) FROM document_chunks WHERE patient_id = ?",
		patientID,
	).Scan(&stats.TotalDocuments, &stats.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT document_type, COUNT(DISTINCT document_id)
		FROM document_chunks
		WHERE patient_id = ?
		GROUP BY document_type`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query type counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var docType string
		var count int
		if err := rows.Scan(&docType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[docType] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return stats, nil
}
