package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medrag-api/internal/contextutil"
	"medrag-api/internal/doctype"
	"medrag-api/internal/pdfproc"
	"medrag-api/internal/segmenter"
	"medrag-api/internal/storage"
	"medrag-api/internal/vectorstore"
)

var (
	// ErrInvalidDocument is returned when the upload is not a usable PDF.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrNoExtractableText is returned when a valid PDF yields no text,
	// typically a scanned document without an OCR layer.
	ErrNoExtractableText = errors.New("no extractable text in document")
	// ErrStoreInconsistency is returned when the vector write failed and the
	// compensating metadata delete failed too, leaving the stores diverged.
	ErrStoreInconsistency = errors.New("stores inconsistent after failed ingest")
	// ErrEmbedding is returned when the embedding service fails mid-ingest.
	ErrEmbedding = errors.New("embedding generation failed")
	// ErrUpstreamTimeout is returned when an upstream call exceeds its deadline.
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// charsPerPage is the rough page size used to estimate which page a chunk
// starts on. Plain-text extraction loses real page boundaries.
const charsPerPage = 2000

// Embedder generates embedding vectors for batches of texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentSummary describes the outcome of one successful ingestion.
type DocumentSummary struct {
	DocumentID   string
	DocumentName string
	DocumentType doctype.Type
	ChunkCount   int
	PageCount    int
	UploadDate   time.Time
}

// Pipeline orchestrates the ingestion of patient PDFs into SQLite and Qdrant.
type Pipeline struct {
	extractor   pdfproc.Extractor
	segmenter   *segmenter.Segmenter
	embedder    Embedder
	chunkRepo   storage.ChunkStore
	vectorStore vectorstore.VectorStore
	collection  string
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	extractor pdfproc.Extractor,
	embedder Embedder,
	chunkRepo storage.ChunkStore,
	vectorStore vectorstore.VectorStore,
	collection string,
) *Pipeline {
	return &Pipeline{
		extractor:   extractor,
		segmenter:   segmenter.New(),
		embedder:    embedder,
		chunkRepo:   chunkRepo,
		vectorStore: vectorStore,
		collection:  collection,
	}
}

// Ingest processes one uploaded PDF for a patient: extract text, classify the
// document, segment it, embed each chunk and persist metadata and vectors.
// Metadata is written first; if the vector write fails, the metadata rows are
// removed again so a failed upload leaves no trace.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, filename, patientID string) (*DocumentSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if patientID == "" {
		return nil, fmt.Errorf("%w: patient ID is required", ErrInvalidDocument)
	}
	if !pdfproc.Validate(raw) {
		return nil, fmt.Errorf("%w: missing PDF header", ErrInvalidDocument)
	}

	extracted, err := p.extractor.Extract(raw)
	if err != nil {
		if errors.Is(err, pdfproc.ErrInvalidPDF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	if strings.TrimSpace(extracted.Text) == "" {
		return nil, ErrNoExtractableText
	}

	docType := doctype.Classify(extracted.Text, filename)

	chunks, err := p.segmenter.Segment(extracted.Text, segmenter.DefaultOptions())
	if err != nil {
		if errors.Is(err, segmenter.ErrEmptyInput) {
			return nil, ErrNoExtractableText
		}
		return nil, fmt.Errorf("failed to segment text: %w", err)
	}

	chunkTexts := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkTexts[i] = chunk.Content
	}

	embeddings, err := p.embedder.EmbedTexts(ctx, chunkTexts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	documentID := uuid.New().String()
	uploadDate := time.Now().UTC()

	chunkRecords := make([]*storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, len(chunks))

	for i, chunk := range chunks {
		chunkID := uuid.New().String()
		page := chunk.StartPosition/charsPerPage + 1

		chunkRecords[i] = &storage.ChunkRecord{
			ID:           chunkID,
			PatientID:    patientID,
			DocumentID:   documentID,
			DocumentName: filename,
			DocumentType: string(docType),
			ChunkIndex:   chunk.Index,
			Content:      chunk.Content,
			PageNumber:   page,
			UploadDate:   uploadDate,
		}

		points[i] = vectorstore.Point{
			ID:  chunkID,
			Vec: embeddings[i],
			Payload: map[string]any{
				vectorstore.FieldPatientID:    patientID,
				vectorstore.FieldDocumentID:   documentID,
				vectorstore.FieldDocumentName: filename,
				vectorstore.FieldDocumentType: string(docType),
				vectorstore.FieldChunkIndex:   chunk.Index,
				vectorstore.FieldContent:      chunk.Content,
				vectorstore.FieldPageNumber:   page,
				vectorstore.FieldUploadDate:   uploadDate.Format(time.RFC3339),
			},
		}
	}

	if err := p.chunkRepo.InsertMany(ctx, chunkRecords); err != nil {
		return nil, fmt.Errorf("failed to insert chunk metadata: %w", err)
	}

	if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
		// Roll the metadata back so the document does not appear indexed
		// while its vectors are missing.
		if _, delErr := p.chunkRepo.DeleteByDocument(ctx, patientID, documentID); delErr != nil {
			logger.ErrorContext(ctx, "compensating delete failed",
				"patient_id", patientID, "document_id", documentID, "error", delErr)
			return nil, fmt.Errorf("%w: vector write failed (%v), metadata cleanup failed (%v)",
				ErrStoreInconsistency, err, delErr)
		}
		return nil, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	logger.InfoContext(ctx, "ingested document",
		"patient_id", patientID, "document_id", documentID,
		"document_type", docType, "chunks", len(chunks), "pages", extracted.PageCount)

	return &DocumentSummary{
		DocumentID:   documentID,
		DocumentName: filename,
		DocumentType: docType,
		ChunkCount:   len(chunks),
		PageCount:    extracted.PageCount,
		UploadDate:   uploadDate,
	}, nil
}

// DeleteDocument removes a document's vectors and metadata for a patient.
// Returns the number of metadata rows removed; deleting an unknown document
// removes nothing and is not an error.
func (p *Pipeline) DeleteDocument(ctx context.Context, patientID, documentID string) (int64, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if patientID == "" || documentID == "" {
		return 0, fmt.Errorf("patient ID and document ID are required")
	}

	if err := p.vectorStore.DeleteByDocument(ctx, p.collection, patientID, documentID); err != nil {
		return 0, fmt.Errorf("failed to delete vectors: %w", err)
	}

	deleted, err := p.chunkRepo.DeleteByDocument(ctx, patientID, documentID)
	if err != nil {
		// Vectors are gone but metadata rows remain.
		return 0, fmt.Errorf("%w: %v", ErrStoreInconsistency, err)
	}

	logger.InfoContext(ctx, "deleted document",
		"patient_id", patientID, "document_id", documentID, "chunks", deleted)
	return deleted, nil
}

// ListDocuments returns the patient's uploaded documents, newest first.
func (p *Pipeline) ListDocuments(ctx context.Context, patientID string) ([]storage.DocumentInfo, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient ID is required")
	}
	return p.chunkRepo.ListDocuments(ctx, patientID)
}

// Stats returns aggregate counts for the patient's indexed corpus.
func (p *Pipeline) Stats(ctx context.Context, patientID string) (*storage.PatientStats, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient ID is required")
	}
	return p.chunkRepo.Stats(ctx, patientID)
}
