package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// Extraction is the archival content produced for one source document.
type Extraction struct {
	Markdown string
	Title    string
	PageMap  []schema.PageSpan
	Sections []schema.SectionHeading
}

// PDFExtractor converts a source document into markdown with page and
// section provenance. Implementations may fail; the pipeline wraps them
// with retry and backend fallbacks.
type PDFExtractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// EntityExtractor produces labeled entity spans from extracted text,
// grouped by model family (biomedical, neuroscience, clinical, ...).
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (map[string][]schema.Entity, error)
}

// MarkdownExtractor reads pre-rendered markdown from disk. Corpus PDFs are
// converted to markdown ahead of time; for a PDF path the extractor looks
// for a sibling .md rendition, optionally under a separate cache directory.
// Page breaks are form feed characters; sections are ATX headings.
type MarkdownExtractor struct {
	cacheDir string
	log      *logger.Logger
}

// NewMarkdownExtractor creates an extractor. cacheDir may be empty, in
// which case PDF renditions are only looked up next to the source file.
func NewMarkdownExtractor(cacheDir string) *MarkdownExtractor {
	return &MarkdownExtractor{
		cacheDir: cacheDir,
		log:      logger.Get().With("component", "markdown_extractor"),
	}
}

func (m *MarkdownExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := m.resolve(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExtractionFailed, "read %s: %v", resolved, err)
	}

	markdown := strings.ReplaceAll(string(raw), "\r\n", "\n")
	pages := buildPageMap(markdown)
	sections := buildSections(markdown, pages)

	return &Extraction{
		Markdown: markdown,
		Title:    firstHeading(sections),
		PageMap:  pages,
		Sections: sections,
	}, nil
}

// resolve maps a source path to its markdown rendition.
func (m *MarkdownExtractor) resolve(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return path, nil
	case ".pdf":
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		candidates := []string{
			strings.TrimSuffix(path, filepath.Ext(path)) + ".md",
		}
		if m.cacheDir != "" {
			candidates = append(candidates, filepath.Join(m.cacheDir, stem+".md"))
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				return c, nil
			}
		}
		return "", errors.Wrapf(errors.ErrExtractionFailed, "no markdown rendition for %s", path)
	default:
		return "", errors.Wrapf(errors.ErrExtractionFailed, "unsupported source type %s", filepath.Ext(path))
	}
}

// buildPageMap splits markdown on form feed page breaks. A document without
// breaks is a single page.
func buildPageMap(markdown string) []schema.PageSpan {
	if markdown == "" {
		return nil
	}
	var pages []schema.PageSpan
	start := 0
	page := 1
	for i := 0; i < len(markdown); i++ {
		if markdown[i] == '\f' {
			pages = append(pages, schema.PageSpan{PageNumber: page, Start: start, End: i})
			start = i + 1
			page++
		}
	}
	pages = append(pages, schema.PageSpan{PageNumber: page, Start: start, End: len(markdown)})
	return pages
}

// buildSections collects ATX headings and the pages they fall on.
func buildSections(markdown string, pages []schema.PageSpan) []schema.SectionHeading {
	var sections []schema.SectionHeading
	offset := 0
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if title != "" {
				sections = append(sections, schema.SectionHeading{
					Title:      title,
					PageNumber: pageAt(pages, offset),
				})
			}
		}
		offset += len(line) + 1
	}
	return sections
}

func pageAt(pages []schema.PageSpan, offset int) int {
	for _, p := range pages {
		if offset >= p.Start && offset <= p.End {
			return p.PageNumber
		}
	}
	if len(pages) > 0 {
		return pages[len(pages)-1].PageNumber
	}
	return 1
}

func firstHeading(sections []schema.SectionHeading) string {
	if len(sections) == 0 {
		return ""
	}
	return sections[0].Title
}

// RetryingExtractor chains extractor backends with per-backend retry and
// exponential backoff. The first successful extraction wins; the last
// error is returned when every backend is exhausted.
type RetryingExtractor struct {
	backends      []PDFExtractor
	maxAttempts   int
	baseDelay     time.Duration
	backoffFactor float64
	log           *logger.Logger
}

// NewRetryingExtractor wraps backends. Zero values fall back to three
// attempts with a 2s base delay.
func NewRetryingExtractor(backends []PDFExtractor, maxAttempts int, baseDelay time.Duration, backoffFactor float64) *RetryingExtractor {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if backoffFactor <= 1 {
		backoffFactor = 1.8
	}
	return &RetryingExtractor{
		backends:      backends,
		maxAttempts:   maxAttempts,
		baseDelay:     baseDelay,
		backoffFactor: backoffFactor,
		log:           logger.Get().With("component", "pdf_extractor"),
	}
}

func (r *RetryingExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	var lastErr error
	for _, backend := range r.backends {
		delay := r.baseDelay
		for attempt := 1; attempt <= r.maxAttempts; attempt++ {
			result, err := backend.Extract(ctx, path)
			if err == nil {
				return result, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "extraction cancelled")
			}
			r.log.Warnf("Extraction attempt %d failed for %s: %v", attempt, path, err)
			if attempt < r.maxAttempts {
				select {
				case <-ctx.Done():
					return nil, errors.Wrap(ctx.Err(), "extraction cancelled")
				case <-time.After(delay):
				}
				delay = time.Duration(float64(delay) * r.backoffFactor)
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.Wrapf(errors.ErrExtractionFailed, "no extraction backends configured")
	}
	return nil, errors.Wrapf(lastErr, "extraction failed for %s after all backends", path)
}
