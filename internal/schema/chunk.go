package schema

import "time"

// Chunk represents a bounded-token, overlap-preserving slice of a source
// document with page and section provenance.
type Chunk struct {
	ChunkID    string        `json:"chunk_id"`
	Text       string        `json:"text"`
	TokenCount int           `json:"token_count"`
	StartChar  int           `json:"start_char"`
	EndChar    int           `json:"end_char"`
	Pages      []int         `json:"pages"`
	Sections   []string      `json:"sections"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries document-level provenance for a chunk.
type ChunkMetadata struct {
	DocumentID  string    `json:"document_id"`
	DocType     string    `json:"doc_type,omitempty"`
	SourcePath  string    `json:"source_path,omitempty"`
	DOI         string    `json:"doi,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// PageSpan maps a page number to its character range in the source markdown.
type PageSpan struct {
	PageNumber int `json:"page_number"`
	Start      int `json:"start"`
	End        int `json:"end"`
}

// SectionHeading records a section title and the page it appears on.
type SectionHeading struct {
	Title      string `json:"title"`
	PageNumber int    `json:"page_number"`
}
