package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlitens/pkg/errors"
)

func TestMarkdownExtractorPagesAndSections(t *testing.T) {
	dir := t.TempDir()
	content := "# Methods\n\nFirst page text.\f## Results\n\nSecond page text."
	path := filepath.Join(dir, "paper.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	extractor := NewMarkdownExtractor("")
	result, err := extractor.Extract(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, result.PageMap, 2)
	assert.Equal(t, 1, result.PageMap[0].PageNumber)
	assert.Equal(t, 2, result.PageMap[1].PageNumber)
	assert.Equal(t, len(content), result.PageMap[1].End)

	require.Len(t, result.Sections, 2)
	assert.Equal(t, "Methods", result.Sections[0].Title)
	assert.Equal(t, 1, result.Sections[0].PageNumber)
	assert.Equal(t, "Results", result.Sections[1].Title)
	assert.Equal(t, 2, result.Sections[1].PageNumber)

	assert.Equal(t, "Methods", result.Title)
}

func TestMarkdownExtractorResolvesPDFRendition(t *testing.T) {
	dir := t.TempDir()
	cache := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cache, "study.md"), []byte("# Study\n\nBody text."), 0o644))

	extractor := NewMarkdownExtractor(cache)
	result, err := extractor.Extract(context.Background(), filepath.Join(dir, "study.pdf"))
	require.NoError(t, err)
	assert.Contains(t, result.Markdown, "Body text.")
}

func TestMarkdownExtractorMissingRendition(t *testing.T) {
	extractor := NewMarkdownExtractor("")
	_, err := extractor.Extract(context.Background(), filepath.Join(t.TempDir(), "ghost.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExtractionFailed))
}

type flakyExtractor struct {
	calls    int
	failures int
	result   *Extraction
}

func (f *flakyExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.Wrapf(errors.ErrExtractionFailed, "backend busy")
	}
	if f.result == nil {
		return nil, errors.Wrapf(errors.ErrExtractionFailed, "backend broken")
	}
	return f.result, nil
}

func TestRetryingExtractorRetriesThenSucceeds(t *testing.T) {
	backend := &flakyExtractor{failures: 2, result: &Extraction{Markdown: "text"}}
	extractor := NewRetryingExtractor([]PDFExtractor{backend}, 3, time.Millisecond, 1.5)

	result, err := extractor.Extract(context.Background(), "doc.md")
	require.NoError(t, err)
	assert.Equal(t, "text", result.Markdown)
	assert.Equal(t, 3, backend.calls)
}

func TestRetryingExtractorFallsBackAcrossBackends(t *testing.T) {
	broken := &flakyExtractor{failures: 99}
	healthy := &flakyExtractor{result: &Extraction{Markdown: "recovered"}}
	extractor := NewRetryingExtractor([]PDFExtractor{broken, healthy}, 2, time.Millisecond, 1.5)

	result, err := extractor.Extract(context.Background(), "doc.md")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Markdown)
	assert.Equal(t, 2, broken.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestRetryingExtractorExhaustsAllBackends(t *testing.T) {
	broken := &flakyExtractor{failures: 99}
	extractor := NewRetryingExtractor([]PDFExtractor{broken}, 2, time.Millisecond, 1.5)

	_, err := extractor.Extract(context.Background(), "doc.md")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExtractionFailed))
}
