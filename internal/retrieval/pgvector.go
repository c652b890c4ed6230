package retrieval

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// Compile-time check
var _ VectorStore = (*PgVectorStore)(nil)

// PgVectorStore persists chunk embeddings in Postgres using pgvector.
type PgVectorStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPgVectorStore creates a pgvector-backed store.
func NewPgVectorStore(db *sqlx.DB) *PgVectorStore {
	return &PgVectorStore{
		db:  db,
		log: logger.Get().With("component", "pgvector_store"),
	}
}

type chunkRow struct {
	ChunkID    string          `db:"chunk_id"`
	DocumentID string          `db:"document_id"`
	DocType    string          `db:"doc_type"`
	Payload    json.RawMessage `db:"payload"`
	Similarity float64         `db:"similarity"`
}

func (s *PgVectorStore) Upsert(ctx context.Context, chunks []schema.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return errors.Wrapf(errors.ErrInvalidInput, "chunks and embeddings length mismatch")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chunks (chunk_id, document_id, doc_type, payload, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			doc_type = EXCLUDED.doc_type,
			payload = EXCLUDED.payload,
			embedding = EXCLUDED.embedding`

	now := time.Now().UTC()
	for i, ch := range chunks {
		payload, err := json.Marshal(ch)
		if err != nil {
			return errors.Wrap(err, "marshal chunk payload")
		}
		if _, err := tx.ExecContext(ctx, query,
			ch.ChunkID, ch.Metadata.DocumentID, ch.Metadata.DocType,
			payload, pgvector.NewVector(embeddings[i]), now,
		); err != nil {
			return errors.Wrap(err, "insert chunk")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit chunks")
	}
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, embedding []float32, topK int, filter SearchFilter) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := `
		SELECT chunk_id, document_id, doc_type, payload,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE ($2 = '' OR document_id = $2)
		  AND ($3 = '' OR doc_type = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`

	var rows []chunkRow
	err := s.db.SelectContext(ctx, &rows, query,
		pgvector.NewVector(embedding), filter.DocumentID, filter.DocType, topK)
	if err != nil {
		return nil, errors.Wrap(err, "vector search")
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		var ch schema.Chunk
		if err := json.Unmarshal(row.Payload, &ch); err != nil {
			s.log.Warnf("Skipping chunk %s with corrupt payload: %v", row.ChunkID, err)
			continue
		}
		results = append(results, SearchResult{Chunk: ch, Similarity: row.Similarity})
	}
	return results, nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chunks`); err != nil {
		return 0, errors.Wrap(err, "count chunks")
	}
	return count, nil
}

func (s *PgVectorStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, errors.Wrap(err, "count document chunks")
	}
	return count, nil
}

func (s *PgVectorStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, errors.Wrap(err, "delete document chunks")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return int(affected), nil
}

func (s *PgVectorStore) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}

// ResilientVectorStore routes to a primary store and falls back to an
// in-memory store when the primary is unreachable. Fallback activation is
// sticky for the life of the process and recorded as a degraded mode.
type ResilientVectorStore struct {
	primary  VectorStore
	fallback *MemoryVectorStore
	log      *logger.Logger

	mu         sync.Mutex
	degraded   bool
	onDegraded func(reason string)
}

// NewResilientVectorStore wraps primary with an in-memory fallback. Passing
// a nil primary activates the fallback immediately.
func NewResilientVectorStore(primary VectorStore, onDegraded func(reason string)) *ResilientVectorStore {
	s := &ResilientVectorStore{
		primary:    primary,
		fallback:   NewMemoryVectorStore(),
		log:        logger.Get().With("component", "vector_store"),
		onDegraded: onDegraded,
	}
	if primary == nil {
		s.activateFallback("primary vector store not configured")
	}
	return s
}

// Degraded reports whether the fallback store is active.
func (s *ResilientVectorStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *ResilientVectorStore) activateFallback(reason string) {
	s.mu.Lock()
	already := s.degraded
	s.degraded = true
	s.mu.Unlock()
	if already {
		return
	}
	s.log.Warnf("Vector store degraded to in-memory fallback: %s", reason)
	if s.onDegraded != nil {
		s.onDegraded(reason)
	}
}

func (s *ResilientVectorStore) active() VectorStore {
	if s.Degraded() {
		return s.fallback
	}
	return s.primary
}

func (s *ResilientVectorStore) Upsert(ctx context.Context, chunks []schema.Chunk, embeddings [][]float32) error {
	if !s.Degraded() {
		if err := s.primary.Upsert(ctx, chunks, embeddings); err == nil {
			return nil
		} else {
			s.activateFallback(err.Error())
		}
	}
	return s.fallback.Upsert(ctx, chunks, embeddings)
}

func (s *ResilientVectorStore) Search(ctx context.Context, embedding []float32, topK int, filter SearchFilter) ([]SearchResult, error) {
	if !s.Degraded() {
		results, err := s.primary.Search(ctx, embedding, topK, filter)
		if err == nil {
			return results, nil
		}
		s.activateFallback(err.Error())
	}
	return s.fallback.Search(ctx, embedding, topK, filter)
}

func (s *ResilientVectorStore) Count(ctx context.Context) (int, error) {
	return s.active().Count(ctx)
}

func (s *ResilientVectorStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	return s.active().CountByDocument(ctx, documentID)
}

func (s *ResilientVectorStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	return s.active().DeleteByDocument(ctx, documentID)
}

func (s *ResilientVectorStore) Healthy(ctx context.Context) bool {
	return s.active().Healthy(ctx)
}
