package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
)

// MemoryVectorStore is the in-process fallback store used when Postgres is
// unavailable. Contents are lost on process exit.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	chunk     schema.Chunk
	embedding []float32
}

// NewMemoryVectorStore creates an empty in-memory store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryVectorStore) Upsert(_ context.Context, chunks []schema.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return errors.Wrapf(errors.ErrInvalidInput, "chunks and embeddings length mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ch := range chunks {
		emb := make([]float32, len(embeddings[i]))
		copy(emb, embeddings[i])
		s.entries[ch.ChunkID] = memoryEntry{chunk: ch, embedding: emb}
	}
	return nil
}

func (s *MemoryVectorStore) Search(_ context.Context, embedding []float32, topK int, filter SearchFilter) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.entries))
	for _, entry := range s.entries {
		if filter.DocumentID != "" && entry.chunk.Metadata.DocumentID != filter.DocumentID {
			continue
		}
		if filter.DocType != "" && entry.chunk.Metadata.DocType != filter.DocType {
			continue
		}
		results = append(results, SearchResult{
			Chunk:      entry.chunk,
			Similarity: cosineSimilarity(embedding, entry.embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryVectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryVectorStore) CountByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entry := range s.entries {
		if entry.chunk.Metadata.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryVectorStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if entry.chunk.Metadata.DocumentID == documentID {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryVectorStore) Healthy(_ context.Context) bool { return true }

// cosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either has zero magnitude or dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
