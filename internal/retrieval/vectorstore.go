package retrieval

import (
	"context"

	"enlitens/internal/schema"
)

// SearchResult pairs a chunk with its similarity score.
type SearchResult struct {
	Chunk      schema.Chunk
	Similarity float64
}

// SearchFilter narrows vector search by chunk metadata. Zero values mean
// no filtering on that field.
type SearchFilter struct {
	DocumentID string
	DocType    string
}

// VectorStore persists chunk embeddings and answers similarity queries.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Upsert stores chunks with their embeddings, replacing existing rows
	// with the same chunk id. Chunks and embeddings are parallel slices.
	Upsert(ctx context.Context, chunks []schema.Chunk, embeddings [][]float32) error

	// Search returns the top-k most similar chunks by cosine similarity.
	Search(ctx context.Context, embedding []float32, topK int, filter SearchFilter) ([]SearchResult, error)

	// Count returns the total number of stored chunks.
	Count(ctx context.Context) (int, error)

	// CountByDocument returns the number of chunks for a document.
	CountByDocument(ctx context.Context, documentID string) (int, error)

	// DeleteByDocument removes all chunks for a document and reports how
	// many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Healthy reports whether the backing store is reachable.
	Healthy(ctx context.Context) bool
}
