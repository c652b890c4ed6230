package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"enlitens/internal/observability"
	"enlitens/internal/retrieval"
	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// Processor runs the agent workflow for one document.
type Processor interface {
	ProcessDocument(ctx context.Context, doc schema.DocumentContext) (*schema.KnowledgeEntry, error)
}

// Indexer feeds document chunks into the shared retrieval pool before the
// workflow runs, so context agents can retrieve across the corpus.
type Indexer interface {
	Index(ctx context.Context, chunks []schema.Chunk) error
}

// FailedDocument records a document the pipeline skipped and why.
type FailedDocument struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

// Result summarizes a corpus run.
type Result struct {
	Processed []string
	Resumed   []string
	Failed    []FailedDocument
}

// Partial reports whether some documents failed while others completed.
func (r *Result) Partial() bool {
	return len(r.Failed) > 0
}

// Config wires the corpus driver.
type Config struct {
	InputDir      string
	OutputFile    string
	ContextReport string

	Extractor PDFExtractor
	Entities  EntityExtractor
	Chunker   *retrieval.Chunker
	Indexer   Indexer
	Processor Processor
	Emitter   *observability.Emitter

	// MaxConcurrent bounds how many documents run at once; <=1 keeps the
	// loop strictly sequential. Checkpoint appends stay in corpus order
	// regardless.
	MaxConcurrent int

	// CleanupEvery documents the cleanup hook runs; <=0 uses the default 3.
	CleanupEvery int
	Cleanup      func()

	// Degraded reports currently active degraded modes (in-memory vector
	// fallback, missing reranker) for stamping into entry metadata.
	Degraded func() []string
}

// Driver processes every document in the input directory, sequential by
// default and windowed when MaxConcurrent allows it, checkpointing after
// each one and committing the knowledge base atomically at the end.
type Driver struct {
	cfg Config
	log *logger.Logger
}

// New creates a driver. Extractor, Chunker and Processor are required.
func New(cfg Config) (*Driver, error) {
	if cfg.InputDir == "" || cfg.OutputFile == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "input dir and output file required")
	}
	if cfg.Extractor == nil || cfg.Chunker == nil || cfg.Processor == nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "extractor, chunker and processor required")
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 3
	}
	if cfg.Cleanup == nil {
		cfg.Cleanup = func() { runtime.GC() }
	}
	return &Driver{cfg: cfg, log: logger.Get().With("component", "corpus_driver")}, nil
}

// Run processes the corpus. The returned Result is valid even when an error
// is returned; callers distinguish partial completion via Result.Partial.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	files, err := listCorpus(d.cfg.InputDir)
	if err != nil {
		return nil, err
	}
	d.log.Infof("Processing corpus of %d documents from %s", len(files), d.cfg.InputDir)

	kb, completed, err := loadCheckpoint(checkpointPath(d.cfg.OutputFile))
	if err != nil {
		return nil, err
	}
	if len(kb.Documents) > 0 {
		d.log.Infof("Resuming from checkpoint with %d completed documents", len(kb.Documents))
	}

	result := &Result{}
	var contextEntries []contextReportEntry
	sinceCleanup := 0

	var work []string
	for _, file := range files {
		if completed[documentIDFor(file)] {
			result.Resumed = append(result.Resumed, documentIDFor(file))
			continue
		}
		work = append(work, file)
	}

	workers := d.cfg.MaxConcurrent
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < len(work); i += workers {
		if err := ctx.Err(); err != nil {
			return result, d.interrupt(kb, err)
		}

		end := i + workers
		if end > len(work) {
			end = len(work)
		}
		outcomes := d.processWindow(ctx, work[i:end])

		// Outcomes are applied in corpus order so checkpoints and the abort
		// taxonomy behave exactly as in the sequential case.
		for j, out := range outcomes {
			docID := documentIDFor(work[i+j])
			procErr := out.err
			if procErr != nil {
				if errors.Is(procErr, context.Canceled) || errors.Is(procErr, context.DeadlineExceeded) {
					if out.entry != nil {
						d.appendEntry(kb, out.entry, result, docID)
					}
					return result, d.interrupt(kb, procErr)
				}
				if errors.Is(procErr, errors.ErrStateCorrupt) || errors.Is(procErr, errors.ErrAgentInit) {
					affected := remainingIDs(work[i+j:])
					d.cfg.Emitter.Alert(ctx, observability.SeverityCritical, docID, "",
						"pipeline aborted: "+procErr.Error())
					if serr := WriteStatusSidecar(d.cfg.OutputFile, procErr.Error(), affected); serr != nil {
						d.log.Errorf("Failed to write status sidecar: %v", serr)
					}
					if cerr := writeCheckpoint(checkpointPath(d.cfg.OutputFile), kb); cerr != nil {
						d.log.Errorf("Failed to flush checkpoint: %v", cerr)
					}
					return result, errors.Wrap(procErr, "pipeline aborted")
				}

				result.Failed = append(result.Failed, FailedDocument{DocumentID: docID, Reason: procErr.Error()})
				d.cfg.Emitter.Alert(ctx, observability.SeverityCritical, docID, "",
					"document skipped: "+procErr.Error())
				d.log.Errorf("Document %s failed: %v", docID, procErr)
				continue
			}

			d.appendEntry(kb, out.entry, result, docID)
			contextEntries = append(contextEntries, out.report)

			if cerr := writeCheckpoint(checkpointPath(d.cfg.OutputFile), kb); cerr != nil {
				d.log.Errorf("Failed to write checkpoint after %s: %v", docID, cerr)
			}

			sinceCleanup++
			if sinceCleanup >= d.cfg.CleanupEvery {
				d.cfg.Cleanup()
				sinceCleanup = 0
			}
		}
	}

	if d.cfg.ContextReport != "" && len(contextEntries) > 0 {
		if rerr := writeContextReport(d.cfg.ContextReport, contextEntries); rerr != nil {
			d.log.Errorf("Failed to write context report: %v", rerr)
		}
	}

	if err := writeKnowledgeBase(d.cfg.OutputFile, kb); err != nil {
		return result, err
	}
	d.log.Infof("Knowledge base written: %d documents, %d failed", kb.TotalDocuments, len(result.Failed))
	return result, nil
}

func (d *Driver) appendEntry(kb *schema.KnowledgeBase, entry *schema.KnowledgeEntry, result *Result, docID string) {
	if d.cfg.Degraded != nil {
		entry.Metadata.DegradedModes = mergeModes(entry.Metadata.DegradedModes, d.cfg.Degraded())
	}
	kb.Documents = append(kb.Documents, *entry)
	kb.TotalDocuments = len(kb.Documents)
	result.Processed = append(result.Processed, docID)
}

// interrupt flushes the partial knowledge base on cooperative shutdown.
func (d *Driver) interrupt(kb *schema.KnowledgeBase, cause error) error {
	if err := writeKnowledgeBase(d.cfg.OutputFile, kb); err != nil {
		d.log.Errorf("Failed to flush partial knowledge base: %v", err)
	}
	return errors.Wrap(cause, "corpus processing interrupted")
}

// outcome is one document's processing result, applied in corpus order.
type outcome struct {
	entry  *schema.KnowledgeEntry
	report contextReportEntry
	err    error
}

// processWindow runs up to MaxConcurrent documents at once. A single-file
// window runs inline.
func (d *Driver) processWindow(ctx context.Context, files []string) []outcome {
	outcomes := make([]outcome, len(files))
	if len(files) == 1 {
		o := &outcomes[0]
		o.entry, o.report, o.err = d.processFile(ctx, files[0], documentIDFor(files[0]))
		return outcomes
	}

	var wg sync.WaitGroup
	for i, file := range files {
		wg.Add(1)
		go func(i int, file string) {
			defer wg.Done()
			o := &outcomes[i]
			o.entry, o.report, o.err = d.processFile(ctx, file, documentIDFor(file))
		}(i, file)
	}
	wg.Wait()
	return outcomes
}

func (d *Driver) processFile(ctx context.Context, file, docID string) (*schema.KnowledgeEntry, contextReportEntry, error) {
	extraction, err := d.cfg.Extractor.Extract(ctx, file)
	if err != nil {
		return nil, contextReportEntry{}, errors.Wrapf(err, "extract %s", docID)
	}

	docType := docTypeFor(file)

	var entities map[string][]schema.Entity
	if d.cfg.Entities != nil {
		entities, err = d.cfg.Entities.ExtractEntities(ctx, extraction.Markdown)
		if err != nil {
			d.cfg.Emitter.Alert(ctx, observability.SeverityWarning, docID, "",
				"entity extraction unavailable: "+err.Error())
			entities = nil
		}
	}

	chunks := d.cfg.Chunker.Chunk(extraction.Markdown, retrieval.ChunkInput{
		DocumentID: docID,
		DocType:    docType,
		SourcePath: file,
		PageMap:    extraction.PageMap,
		Sections:   extraction.Sections,
	})
	if len(chunks) > 0 && d.cfg.Indexer != nil {
		if ierr := d.cfg.Indexer.Index(ctx, chunks); ierr != nil {
			d.cfg.Emitter.Alert(ctx, observability.SeverityWarning, docID, "",
				"context indexing degraded: "+ierr.Error())
		}
	}

	entry, err := d.cfg.Processor.ProcessDocument(ctx, schema.DocumentContext{
		DocumentID:   docID,
		DocumentText: extraction.Markdown,
		DocType:      docType,
		Entities:     entities,
	})
	if err != nil {
		return entry, contextReportEntry{}, err
	}

	report := contextReportEntry{
		DocumentID: docID,
		DocType:    string(docType),
		Title:      extraction.Title,
		Chunks:     len(chunks),
		Pages:      len(extraction.PageMap),
	}
	return entry, report, nil
}

var corpusExtensions = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// listCorpus walks the input directory collecting source documents in a
// stable order. Hidden files and directories are skipped.
func listCorpus(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if corpusExtensions[strings.ToLower(filepath.Ext(name))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list input directory")
	}
	sort.Strings(files)
	return files, nil
}

// documentIDFor derives a stable id from the filename stem.
func documentIDFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// docTypeFor maps a file to its pipeline mode. Files in a subdirectory
// named after a doc type use that mode; everything else runs the full
// pipeline.
func docTypeFor(path string) schema.DocType {
	parent := schema.DocType(filepath.Base(filepath.Dir(path)))
	if parent.Valid() {
		return parent
	}
	return schema.DocTypeFull
}

func remainingIDs(files []string) []string {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, documentIDFor(f))
	}
	return ids
}

func mergeModes(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m] = true
	}
	for _, m := range extra {
		if !seen[m] {
			existing = append(existing, m)
			seen[m] = true
		}
	}
	return existing
}
