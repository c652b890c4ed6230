package websearch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"enlitens/pkg/errors"
)

// Scraper fetches a page and extracts its readable text.
type Scraper interface {
	FetchText(ctx context.Context, pageURL string) (string, error)
}

// HTTPScraper fetches pages and strips them down to headings, paragraphs
// and list items.
type HTTPScraper struct {
	client *http.Client
}

// NewHTTPScraper creates a scraper with the given timeout.
func NewHTTPScraper(timeout time.Duration) *HTTPScraper {
	if timeout == 0 {
		timeout = 12 * time.Second
	}
	return &HTTPScraper{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPScraper) FetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "create scrape request")
	}
	req.Header.Set("User-Agent", "enlitens-citation-checker/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetch page")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("fetch page: status %d for %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "parse page HTML")
	}
	return extractText(doc), nil
}

func extractText(doc *goquery.Document) string {
	doc.Find("script,style,nav,footer,aside").Remove()

	var out []string
	doc.Find("h1,h2,h3,p,li,blockquote").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			out = append(out, text)
		}
	})
	return strings.Join(out, "\n\n")
}
