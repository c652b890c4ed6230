package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"enlitens/internal/schema"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// HTTPEntityExtractor calls an external entity service that runs the
// specialized biomedical and neuroscience models. The service accepts
// {"text": ...} and returns entity spans grouped by model family.
type HTTPEntityExtractor struct {
	endpoint string
	client   *http.Client
	log      *logger.Logger
}

// NewHTTPEntityExtractor creates an extractor. Returns nil when no endpoint
// is configured; callers treat a nil extractor as disabled.
func NewHTTPEntityExtractor(endpoint string, timeout time.Duration) *HTTPEntityExtractor {
	if endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPEntityExtractor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      logger.Get().With("component", "entity_extractor"),
	}
}

type entityRequest struct {
	Text string `json:"text"`
}

type entityResponse struct {
	Entities map[string][]schema.Entity `json:"entities"`
}

func (e *HTTPEntityExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]schema.Entity, error) {
	payload, err := json.Marshal(entityRequest{Text: text})
	if err != nil {
		return nil, errors.Wrap(err, "marshal entity request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build entity request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call entity service")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrUnavailable, "entity service returned %d", resp.StatusCode)
	}

	var decoded entityResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "decode entity response")
	}

	total := 0
	for _, spans := range decoded.Entities {
		total += len(spans)
	}
	e.log.Debugf("Extracted %d entities across %d families", total, len(decoded.Entities))
	return decoded.Entities, nil
}
