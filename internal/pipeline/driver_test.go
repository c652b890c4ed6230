package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlitens/internal/retrieval"
	"enlitens/internal/schema"
	"enlitens/pkg/errors"
)

type stubProcessor struct {
	mu    sync.Mutex
	calls []schema.DocumentContext
	fail  map[string]error
}

func (p *stubProcessor) ProcessDocument(ctx context.Context, doc schema.DocumentContext) (*schema.KnowledgeEntry, error) {
	p.mu.Lock()
	p.calls = append(p.calls, doc)
	p.mu.Unlock()
	if err, ok := p.fail[doc.DocumentID]; ok {
		return nil, err
	}
	return &schema.KnowledgeEntry{
		Metadata: schema.EntryMetadata{
			DocumentID:   doc.DocumentID,
			ProcessedAt:  time.Now().UTC(),
			QualityScore: 0.8,
		},
		FullDocumentText: doc.DocumentText,
		ValidationPassed: true,
	}, nil
}

type recordingIndexer struct {
	chunks []schema.Chunk
	err    error
}

func (r *recordingIndexer) Index(ctx context.Context, chunks []schema.Chunk) error {
	r.chunks = append(r.chunks, chunks...)
	return r.err
}

func writeCorpus(t *testing.T, dir string, docs map[string]string) {
	t.Helper()
	for name, text := range docs {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
}

func newTestDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	if cfg.Extractor == nil {
		cfg.Extractor = NewMarkdownExtractor("")
	}
	if cfg.Chunker == nil {
		cfg.Chunker = retrieval.NewChunker(retrieval.ChunkerOptions{ChunkSizeTokens: 50})
	}
	driver, err := New(cfg)
	require.NoError(t, err)
	return driver
}

func TestDriverProcessesCorpusAndCommitsAtomically(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "knowledge_base.json")
	writeCorpus(t, inputDir, map[string]string{
		"alpha.md": "# Alpha\n\nNeuroplasticity findings across the lifespan.",
		"beta.md":  "# Beta\n\nDopamine signaling in reward circuits.",
	})

	processor := &stubProcessor{}
	indexer := &recordingIndexer{}
	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Indexer:    indexer,
		Processor:  processor,
	})

	result, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, result.Processed)
	assert.Empty(t, result.Failed)
	assert.False(t, result.Partial())

	raw, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	var kb schema.KnowledgeBase
	require.NoError(t, json.Unmarshal(raw, &kb))
	assert.Equal(t, 2, kb.TotalDocuments)
	require.Len(t, kb.Documents, 2)
	assert.Equal(t, "alpha", kb.Documents[0].Metadata.DocumentID)

	_, err = os.Stat(checkpointPath(outputFile))
	assert.True(t, os.IsNotExist(err), "checkpoint must be cleared after final write")

	assert.NotEmpty(t, indexer.chunks)
	for _, ch := range indexer.chunks {
		assert.NotEmpty(t, ch.Metadata.DocumentID)
	}
}

func TestDriverResumeSkipsCompletedDocuments(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"alpha.md": "Alpha text body for processing.",
		"beta.md":  "Beta text body for processing.",
	})

	checkpoint := schema.KnowledgeBase{
		Documents: []schema.KnowledgeEntry{{
			Metadata:         schema.EntryMetadata{DocumentID: "alpha"},
			ValidationPassed: true,
		}},
		TotalDocuments: 1,
	}
	data, err := json.Marshal(checkpoint)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(checkpointPath(outputFile), data, 0o644))

	processor := &stubProcessor{}
	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Processor:  processor,
	})

	result, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, result.Resumed)
	assert.Equal(t, []string{"beta"}, result.Processed)
	require.Len(t, processor.calls, 1)
	assert.Equal(t, "beta", processor.calls[0].DocumentID)

	raw, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	var kb schema.KnowledgeBase
	require.NoError(t, json.Unmarshal(raw, &kb))
	ids := make([]string, 0, len(kb.Documents))
	for _, e := range kb.Documents {
		ids = append(ids, e.Metadata.DocumentID)
	}
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestDriverDocumentFailureContinues(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"alpha.md": "Alpha body.",
		"beta.md":  "Beta body.",
	})

	processor := &stubProcessor{fail: map[string]error{
		"alpha": errors.Wrapf(errors.ErrDocumentFatal, "synthesis exploded"),
	}}
	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Processor:  processor,
	})

	result, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Partial())
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "alpha", result.Failed[0].DocumentID)
	assert.Contains(t, result.Failed[0].Reason, "synthesis exploded")
	assert.Equal(t, []string{"beta"}, result.Processed)
}

func TestDriverExtractionFailureIsDocumentFatal(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"readable.md": "Readable body.",
	})
	// A PDF with no markdown rendition fails extraction.
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "scan.pdf"), []byte("%PDF-1.4"), 0o644))

	processor := &stubProcessor{}
	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Processor:  processor,
	})

	result, err := driver.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "scan", result.Failed[0].DocumentID)
	assert.Equal(t, []string{"readable"}, result.Processed)
}

func TestDriverStateCorruptionAborts(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	outputFile := filepath.Join(outputDir, "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"alpha.md": "Alpha body.",
		"beta.md":  "Beta body.",
	})

	processor := &stubProcessor{fail: map[string]error{
		"alpha": errors.Wrapf(errors.ErrStateCorrupt, "conflicting writers"),
	}}
	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Processor:  processor,
	})

	result, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateCorrupt))
	assert.Empty(t, result.Processed)

	raw, rerr := os.ReadFile(filepath.Join(outputDir, statusSidecarName))
	require.NoError(t, rerr)
	var status schema.ProcessingStatus
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Contains(t, status.Reason, "conflicting writers")
	assert.Equal(t, []string{"alpha", "beta"}, status.AffectedDocuments)
	assert.False(t, status.Timestamp.IsZero())
}

func TestDriverInterruptFlushesPartialKnowledgeBase(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"alpha.md": "Alpha body.",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := &stubProcessor{}
	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Processor:  processor,
	})

	result, err := driver.Run(ctx)
	require.Error(t, err)
	assert.Empty(t, result.Processed)
	assert.Empty(t, processor.calls)

	raw, rerr := os.ReadFile(outputFile)
	require.NoError(t, rerr)
	var kb schema.KnowledgeBase
	require.NoError(t, json.Unmarshal(raw, &kb))
	assert.Equal(t, 0, kb.TotalDocuments)
}

func TestDriverConcurrentWindowsKeepCorpusOrder(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"a.md": "One.", "b.md": "Two.", "c.md": "Three.",
		"d.md": "Four.", "e.md": "Five.",
	})

	processor := &stubProcessor{}
	driver := newTestDriver(t, Config{
		InputDir:      inputDir,
		OutputFile:    outputFile,
		Processor:     processor,
		MaxConcurrent: 2,
	})

	result, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, result.Processed)
	assert.Empty(t, result.Failed)
	assert.Len(t, processor.calls, 5)

	raw, rerr := os.ReadFile(outputFile)
	require.NoError(t, rerr)
	var kb schema.KnowledgeBase
	require.NoError(t, json.Unmarshal(raw, &kb))
	require.Len(t, kb.Documents, 5)
	ids := make([]string, 0, len(kb.Documents))
	for _, e := range kb.Documents {
		ids = append(ids, e.Metadata.DocumentID)
	}
	// Documents land in corpus order no matter which goroutine finished first.
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)

	_, serr := os.Stat(checkpointPath(outputFile))
	assert.True(t, os.IsNotExist(serr), "checkpoint must be cleared after final write")
}

func TestDriverConcurrentFailureStillContinues(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"a.md": "One.", "b.md": "Two.", "c.md": "Three.", "d.md": "Four.",
	})

	processor := &stubProcessor{fail: map[string]error{
		"b": errors.Wrapf(errors.ErrDocumentFatal, "synthesis exploded"),
	}}
	driver := newTestDriver(t, Config{
		InputDir:      inputDir,
		OutputFile:    outputFile,
		Processor:     processor,
		MaxConcurrent: 3,
	})

	result, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Partial())
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b", result.Failed[0].DocumentID)
	assert.Equal(t, []string{"a", "c", "d"}, result.Processed)
}

func TestDriverCleanupHookCadence(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"a.md": "One.", "b.md": "Two.", "c.md": "Three.",
		"d.md": "Four.", "e.md": "Five.", "f.md": "Six.", "g.md": "Seven.",
	})

	cleanups := 0
	driver := newTestDriver(t, Config{
		InputDir:     inputDir,
		OutputFile:   outputFile,
		Processor:    &stubProcessor{},
		CleanupEvery: 3,
		Cleanup:      func() { cleanups++ },
	})

	_, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cleanups)
}

func TestDriverDocTypeFromSubdirectory(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{
		"paper.md":                       "Primary paper body.",
		"context_reference/handbook.md":  "Reference handbook body.",
		"marketing_refresh/refresh.md":   "Marketing refresh body.",
		"unrelated_subdir/other_note.md": "Regular nested body.",
	})

	processor := &stubProcessor{}
	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Processor:  processor,
	})

	_, err := driver.Run(context.Background())
	require.NoError(t, err)

	byID := make(map[string]schema.DocType)
	for _, call := range processor.calls {
		byID[call.DocumentID] = call.DocType
	}
	assert.Equal(t, schema.DocTypeContextReference, byID["handbook"])
	assert.Equal(t, schema.DocTypeMarketingRefresh, byID["refresh"])
	assert.Equal(t, schema.DocTypeFull, byID["paper"])
	assert.Equal(t, schema.DocTypeFull, byID["other_note"])
}

func TestDriverStampsDegradedModes(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	writeCorpus(t, inputDir, map[string]string{"alpha.md": "Alpha body."})

	driver := newTestDriver(t, Config{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Processor:  &stubProcessor{},
		Degraded:   func() []string { return []string{"vector_store_memory_fallback"} },
	})

	_, err := driver.Run(context.Background())
	require.NoError(t, err)

	raw, rerr := os.ReadFile(outputFile)
	require.NoError(t, rerr)
	var kb schema.KnowledgeBase
	require.NoError(t, json.Unmarshal(raw, &kb))
	require.Len(t, kb.Documents, 1)
	assert.Equal(t, []string{"vector_store_memory_fallback"}, kb.Documents[0].Metadata.DegradedModes)
}

func TestDriverWritesContextReport(t *testing.T) {
	inputDir := t.TempDir()
	outputFile := filepath.Join(t.TempDir(), "kb.json")
	reportFile := filepath.Join(t.TempDir(), "context_report.json")
	writeCorpus(t, inputDir, map[string]string{
		"alpha.md": "# Alpha Study\n\nBody of the alpha study.",
	})

	driver := newTestDriver(t, Config{
		InputDir:      inputDir,
		OutputFile:    outputFile,
		ContextReport: reportFile,
		Processor:     &stubProcessor{},
	})

	_, err := driver.Run(context.Background())
	require.NoError(t, err)

	raw, rerr := os.ReadFile(reportFile)
	require.NoError(t, rerr)
	var report contextReport
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Len(t, report.Documents, 1)
	assert.Equal(t, "alpha", report.Documents[0].DocumentID)
	assert.Equal(t, "Alpha Study", report.Documents[0].Title)
	assert.Greater(t, report.Documents[0].Chunks, 0)
}
