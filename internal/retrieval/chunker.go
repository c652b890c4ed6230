package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"enlitens/internal/schema"
	"enlitens/pkg/logger"
)

// segment is one blank-line-delimited span of the source markdown.
type segment struct {
	text   string
	tokens int
	start  int
	end    int
}

// Chunker splits markdown documents into overlapping chunks with page and
// section provenance. Chunking is fully deterministic for a fixed input and
// config: re-running a document yields the same chunk ids, so store upserts
// replace rows instead of duplicating them.
type Chunker struct {
	chunkSizeTokens    int
	chunkOverlapTokens int
	log                *logger.Logger
}

// ChunkerOptions configures a Chunker.
type ChunkerOptions struct {
	ChunkSizeTokens   int
	ChunkOverlapRatio float64
}

// NewChunker creates a chunker with the given token budget and overlap ratio.
func NewChunker(opts ChunkerOptions) *Chunker {
	size := opts.ChunkSizeTokens
	if size <= 0 {
		size = 900
	}
	ratio := opts.ChunkOverlapRatio
	if ratio <= 0 {
		ratio = 0.15
	}
	overlap := int(float64(size) * ratio)
	if overlap < 1 {
		overlap = 1
	}
	return &Chunker{
		chunkSizeTokens:    size,
		chunkOverlapTokens: overlap,
		log:                logger.Get().With("component", "chunker"),
	}
}

// ChunkInput carries the source markdown and its provenance maps.
type ChunkInput struct {
	DocumentID string
	DocType    schema.DocType
	SourcePath string
	DOI        string
	PageMap    []schema.PageSpan
	Sections   []schema.SectionHeading
}

// Chunk splits markdown into overlapping chunks. Empty or whitespace-only
// input yields an empty slice.
func (c *Chunker) Chunk(markdown string, input ChunkInput) []schema.Chunk {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	segments := c.buildSegments(markdown)
	if len(segments) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var chunks []schema.Chunk

	idx := 0
	for idx < len(segments) {
		startIdx := idx
		tokenTotal := 0
		var current []segment

		// Accumulate until the budget would be exceeded. An oversized single
		// segment is emitted alone.
		for idx < len(segments) && (tokenTotal+segments[idx].tokens <= c.chunkSizeTokens || len(current) == 0) {
			current = append(current, segments[idx])
			tokenTotal += segments[idx].tokens
			idx++
		}

		chunkStart := current[0].start
		chunkEnd := current[len(current)-1].end
		texts := make([]string, len(current))
		for i, seg := range current {
			texts[i] = seg.text
		}

		pages := resolvePages(input.PageMap, chunkStart, chunkEnd)
		sections := resolveSections(input.Sections, pages)

		chunks = append(chunks, schema.Chunk{
			ChunkID:    chunkID(input.DocumentID, len(chunks)),
			Text:       strings.Join(texts, "\n\n"),
			TokenCount: tokenTotal,
			StartChar:  chunkStart,
			EndChar:    chunkEnd,
			Pages:      pages,
			Sections:   sections,
			Metadata: schema.ChunkMetadata{
				DocumentID:  input.DocumentID,
				DocType:     string(input.DocType),
				SourcePath:  input.SourcePath,
				DOI:         input.DOI,
				ProcessedAt: now,
			},
		})

		if idx >= len(segments) {
			break
		}

		idx = c.applyOverlap(segments, startIdx, idx)
		if idx <= startIdx {
			// Overlap would not advance; move forward by one segment.
			idx = startIdx + 1
		}
	}

	c.log.Debugf("Generated %d chunks for %s", len(chunks), input.DocumentID)
	return chunks
}

// chunkID derives a stable UUID from the document id and chunk position.
func chunkID(documentID string, index int) string {
	name := fmt.Sprintf("chunk/%s/%d", documentID, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// buildSegments splits on blank lines and records char offsets against the
// original text.
func (c *Chunker) buildSegments(markdown string) []segment {
	parts := strings.Split(markdown, "\n\n")
	cursor := 0
	var segments []segment

	for _, part := range parts {
		text := strings.TrimSpace(part)
		if text == "" {
			cursor += len(part) + 2
			continue
		}

		start := strings.Index(markdown[cursor:], part)
		if start < 0 {
			start = cursor
		} else {
			start += cursor
		}
		end := start + len(part)
		cursor = end + 2

		tokens := approximateTokenCount(text)
		if tokens < 1 {
			tokens = 1
		}
		segments = append(segments, segment{
			text:   text,
			tokens: tokens,
			start:  start,
			end:    end,
		})
	}

	return segments
}

// applyOverlap walks back from the end of the previous chunk until the
// overlap token budget is covered and returns the next start index.
func (c *Chunker) applyOverlap(segments []segment, startIdx, endIdx int) int {
	if c.chunkOverlapTokens <= 0 {
		return endIdx
	}

	accum := 0
	newStart := endIdx
	for i := endIdx - 1; i >= startIdx; i-- {
		accum += segments[i].tokens
		if accum >= c.chunkOverlapTokens {
			newStart = i
			break
		}
	}
	return newStart
}

// approximateTokenCount is the max of whitespace word count and ceil(len/4).
func approximateTokenCount(text string) int {
	words := len(strings.Fields(text))
	chars := (len(text) + 3) / 4
	if words > chars {
		return words
	}
	return chars
}

func resolvePages(pageMap []schema.PageSpan, start, end int) []int {
	seen := make(map[int]bool)
	var pages []int
	for _, span := range pageMap {
		if span.End >= start && span.Start <= end && !seen[span.PageNumber] {
			seen[span.PageNumber] = true
			pages = append(pages, span.PageNumber)
		}
	}
	// Page maps arrive ordered; an insertion sort keeps the output ordered
	// even if they do not.
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0 && pages[j] < pages[j-1]; j-- {
			pages[j], pages[j-1] = pages[j-1], pages[j]
		}
	}
	return pages
}

func resolveSections(headings []schema.SectionHeading, pages []int) []string {
	if len(pages) == 0 {
		return nil
	}
	pageSet := make(map[int]bool, len(pages))
	for _, p := range pages {
		pageSet[p] = true
	}
	var titles []string
	for _, h := range headings {
		if h.Title != "" && pageSet[h.PageNumber] {
			titles = append(titles, h.Title)
		}
	}
	return titles
}
