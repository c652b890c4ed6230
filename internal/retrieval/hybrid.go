package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"enlitens/internal/adapters/embeddings"
	"enlitens/internal/metrics"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"

	"enlitens/internal/schema"
)

// Reranker scores query/passage pairs. Implementations may be unavailable
// at runtime, in which case Rerank returns ErrRerankerUnavailable.
type Reranker interface {
	// Rerank returns relevance scores for each passage against the query,
	// parallel to the passages slice.
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
	Available() bool
}

// HybridRetrieverOptions tunes candidate pool sizes and fusion.
type HybridRetrieverOptions struct {
	DenseTopK  int
	SparseTopK int
	FinalTopK  int
	RRFConstant int
}

// HybridRetriever fuses dense vector search with BM25 keyword search using
// reciprocal rank fusion, then reranks with a cross-encoder when available.
type HybridRetriever struct {
	store    VectorStore
	embedder embeddings.Provider
	reranker Reranker
	opts     HybridRetrieverOptions
	log      *logger.Logger

	mu     sync.RWMutex
	corpus []schema.Chunk
	docLen []int
	df     map[string]int
	avgLen float64
}

// NewHybridRetriever creates a retriever over the given store. The reranker
// may be nil.
func NewHybridRetriever(store VectorStore, embedder embeddings.Provider, reranker Reranker, opts HybridRetrieverOptions) *HybridRetriever {
	if opts.DenseTopK <= 0 {
		opts.DenseTopK = 50
	}
	if opts.SparseTopK <= 0 {
		opts.SparseTopK = 50
	}
	if opts.FinalTopK <= 0 {
		opts.FinalTopK = 5
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = 60
	}
	return &HybridRetriever{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		opts:     opts,
		df:       make(map[string]int),
		log:      logger.Get().With("component", "hybrid_retriever"),
	}
}

// Index adds chunks to the keyword corpus and stores their embeddings.
func (r *HybridRetriever) Index(ctx context.Context, chunks []schema.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := r.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return errors.Wrap(err, "embed chunks")
	}
	if err := r.store.Upsert(ctx, chunks, vectors); err != nil {
		return err
	}
	metrics.ChunksIndexed.Add(float64(len(chunks)))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range chunks {
		tokens := tokenize(ch.Text)
		r.corpus = append(r.corpus, ch)
		r.docLen = append(r.docLen, len(tokens))
		for term := range uniqueTerms(tokens) {
			r.df[term]++
		}
	}
	total := 0
	for _, l := range r.docLen {
		total += l
	}
	r.avgLen = float64(total) / float64(len(r.docLen))
	return nil
}

// Retrieve returns the final top-k chunks for the query. Results carry the
// reranker score when reranking ran, otherwise the fused RRF score.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	start := time.Now()

	queryVec, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		metrics.RecordRetrieval("error", time.Since(start))
		return nil, errors.Wrap(err, "embed query")
	}

	dense, err := r.store.Search(ctx, queryVec, r.opts.DenseTopK, filter)
	if err != nil {
		metrics.RecordRetrieval("error", time.Since(start))
		return nil, err
	}
	sparse := r.keywordSearch(query, r.opts.SparseTopK, filter)

	fused := r.fuse(dense, sparse)
	if len(fused) == 0 {
		metrics.RecordRetrieval("success", time.Since(start))
		return nil, nil
	}

	candidates := fused
	if len(candidates) > r.opts.DenseTopK {
		candidates = candidates[:r.opts.DenseTopK]
	}

	status := "success"
	reranked, err := r.rerank(ctx, query, candidates)
	if err != nil {
		if !errors.Is(err, errors.ErrRerankerUnavailable) {
			r.log.Warnf("Reranker failed, falling back to fused order: %v", err)
		}
		status = "degraded"
		reranked = candidates
	}

	if len(reranked) > r.opts.FinalTopK {
		reranked = reranked[:r.opts.FinalTopK]
	}
	metrics.RecordRetrieval(status, time.Since(start))
	return reranked, nil
}

// keywordSearch scores the corpus with BM25 (k1=1.5, b=0.75) over
// lowercase whitespace tokens.
func (r *HybridRetriever) keywordSearch(query string, topK int, filter SearchFilter) []SearchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.corpus) == 0 {
		return nil
	}

	const k1, b = 1.5, 0.75
	queryTerms := tokenize(query)
	n := float64(len(r.corpus))

	results := make([]SearchResult, 0, len(r.corpus))
	for i, ch := range r.corpus {
		if filter.DocumentID != "" && ch.Metadata.DocumentID != filter.DocumentID {
			continue
		}
		if filter.DocType != "" && ch.Metadata.DocType != filter.DocType {
			continue
		}

		tf := termFrequencies(tokenize(ch.Text))
		score := 0.0
		for _, term := range queryTerms {
			freq, ok := tf[term]
			if !ok {
				continue
			}
			df := float64(r.df[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			norm := float64(freq) * (k1 + 1) / (float64(freq) + k1*(1-b+b*float64(r.docLen[i])/r.avgLen))
			score += idf * norm
		}
		if score > 0 {
			results = append(results, SearchResult{Chunk: ch, Similarity: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// fuse merges ranked lists with reciprocal rank fusion:
// score(c) = sum over lists of 1/(k + rank).
func (r *HybridRetriever) fuse(lists ...[]SearchResult) []SearchResult {
	k := float64(r.opts.RRFConstant)
	scores := make(map[string]float64)
	byID := make(map[string]schema.Chunk)

	for _, list := range lists {
		for rank, res := range list {
			id := res.Chunk.ChunkID
			scores[id] += 1.0 / (k + float64(rank+1))
			if _, ok := byID[id]; !ok {
				byID[id] = res.Chunk
			}
		}
	}

	fused := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, SearchResult{Chunk: byID[id], Similarity: score})
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Similarity != fused[j].Similarity {
			return fused[i].Similarity > fused[j].Similarity
		}
		return fused[i].Chunk.ChunkID < fused[j].Chunk.ChunkID
	})
	return fused
}

func (r *HybridRetriever) rerank(ctx context.Context, query string, candidates []SearchResult) ([]SearchResult, error) {
	if r.reranker == nil || !r.reranker.Available() {
		return nil, errors.ErrRerankerUnavailable
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Chunk.Text
	}
	scores, err := r.reranker.Rerank(ctx, query, passages)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, errors.Wrapf(errors.ErrRerankerUnavailable, "score count mismatch")
	}

	reranked := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		reranked[i] = SearchResult{Chunk: c.Chunk, Similarity: scores[i]}
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Similarity > reranked[j].Similarity
	})
	return reranked, nil
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func uniqueTerms(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
