package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
)

const statusSidecarName = "enlitens_processing_status.json"

// checkpointPath returns the per-document checkpoint file for an output path.
func checkpointPath(outputFile string) string {
	return outputFile + ".temp"
}

// loadCheckpoint reads an existing checkpoint and returns the knowledge base
// plus the set of completed document ids. A missing checkpoint yields an
// empty knowledge base; a corrupt one is an error so a resume never silently
// drops prior work.
func loadCheckpoint(path string) (*schema.KnowledgeBase, map[string]bool, error) {
	kb := &schema.KnowledgeBase{}
	completed := make(map[string]bool)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return kb, completed, nil
		}
		return nil, nil, errors.Wrap(err, "read checkpoint")
	}
	if err := json.Unmarshal(raw, kb); err != nil {
		return nil, nil, errors.Wrap(err, "parse checkpoint")
	}
	for _, entry := range kb.Documents {
		completed[entry.Metadata.DocumentID] = true
	}
	return kb, completed, nil
}

// writeCheckpoint persists the knowledge base after each document so a crash
// loses at most the document in flight.
func writeCheckpoint(path string, kb *schema.KnowledgeBase) error {
	data, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write checkpoint")
	}
	return nil
}

// writeKnowledgeBase performs the atomic final write. The checkpoint file is
// renamed onto the output path, which both commits the result and clears
// the checkpoint in one step.
func writeKnowledgeBase(outputFile string, kb *schema.KnowledgeBase) error {
	temp := checkpointPath(outputFile)
	if err := writeCheckpoint(temp, kb); err != nil {
		return err
	}
	if err := os.Rename(temp, outputFile); err != nil {
		return errors.Wrap(err, "commit knowledge base")
	}
	return nil
}

// WriteStatusSidecar records why the pipeline aborted and which documents
// never completed. Written next to the output file.
func WriteStatusSidecar(outputFile, reason string, affected []string) error {
	status := schema.ProcessingStatus{
		Reason:            reason,
		AffectedDocuments: affected,
		Timestamp:         time.Now().UTC(),
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal status sidecar")
	}
	path := filepath.Join(filepath.Dir(outputFile), statusSidecarName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write status sidecar")
	}
	return nil
}

// contextReportEntry summarizes what one document contributed to the
// retrieval pool.
type contextReportEntry struct {
	DocumentID string `json:"document_id"`
	DocType    string `json:"doc_type"`
	Title      string `json:"title,omitempty"`
	Chunks     int    `json:"chunks"`
	Pages      int    `json:"pages"`
}

type contextReport struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Documents   []contextReportEntry `json:"documents"`
}

func writeContextReport(path string, entries []contextReportEntry) error {
	report := contextReport{GeneratedAt: time.Now().UTC(), Documents: entries}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal context report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write context report")
	}
	return nil
}
