package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks medrag-api/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with its payload.
type Point struct {
	ID      string
	Vec     []float32
	Payload map[string]any
}

// SearchResult represents a ranked hit from a similarity search.
type SearchResult struct {
	PointID string
	Score   float32
	Payload map[string]any
}

// VectorStore defines the operations the pipelines require of the vector
// index. Search and the delete operations are patient-scoped: the patient
// filter is enforced by the store itself, never by post-filtering in memory.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search restricted to one patient's points.
	// patientID must be non-empty; the filter is mandatory.
	Search(ctx context.Context, collection string, query []float32, k int, patientID string) ([]SearchResult, error)

	// DeleteByDocument removes all points belonging to a document, scoped to
	// the owning patient.
	DeleteByDocument(ctx context.Context, collection, patientID, documentID string) error

	// DeleteByPatient removes all points belonging to a patient.
	DeleteByPatient(ctx context.Context, collection, patientID string) error
}
