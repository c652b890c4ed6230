package validation

import (
	"context"
	"strings"

	"enlitens/internal/adapters/websearch"
	"enlitens/internal/schema"
	"enlitens/pkg/logger"
)

// CitationVerifier audits every statistic's quote against the source
// document. Quotes that match neither exactly nor by character similarity are
// optionally corroborated against the open web before being marked failed.
type CitationVerifier struct {
	threshold float64
	searcher  websearch.Searcher
	scraper   websearch.Scraper
	webLimit  int
}

// NewCitationVerifier builds a verifier. threshold is the character
// similarity below which a quote is considered unmatched; searcher and
// scraper may be nil to disable web corroboration.
func NewCitationVerifier(threshold float64, searcher websearch.Searcher, scraper websearch.Scraper, webLimit int) *CitationVerifier {
	if threshold <= 0 {
		threshold = 0.80
	}
	if webLimit <= 0 {
		webLimit = 3
	}
	return &CitationVerifier{threshold: threshold, searcher: searcher, scraper: scraper, webLimit: webLimit}
}

// Verify checks each statistic's quote in order: missing quote, exact
// substring match, character similarity, then web corroboration for the
// first few unresolved quotes. Everything else fails.
func (v *CitationVerifier) Verify(ctx context.Context, stats []schema.Statistic, documentText string) schema.CitationReport {
	report := schema.CitationReport{Total: len(stats)}
	normalizedDoc := normalizeWhitespace(documentText)

	type unresolved struct {
		index      int
		quote      string
		similarity float64
	}
	var pending []unresolved

	for i, stat := range stats {
		quote := ""
		if stat.Citation != nil {
			quote = strings.TrimSpace(stat.Citation.Quote)
		}
		if quote == "" {
			report.MissingQuotes = append(report.MissingQuotes, i)
			continue
		}

		normalizedQuote := normalizeWhitespace(quote)
		if strings.Contains(normalizedDoc, normalizedQuote) {
			report.Verified++
			continue
		}

		similarity := bestWindowSimilarity(normalizedQuote, normalizedDoc)
		if similarity >= v.threshold {
			report.Verified++
			continue
		}
		pending = append(pending, unresolved{index: i, quote: quote, similarity: similarity})
	}

	for n, item := range pending {
		if v.searcher != nil && n < v.webLimit && v.corroborate(ctx, item.quote) {
			report.Verified++
			report.WebCorroborated = append(report.WebCorroborated, item.index)
			continue
		}
		report.Failed = append(report.Failed, schema.CitationFailure{
			Index:      item.index,
			Quote:      item.quote,
			Similarity: item.similarity,
			Reason:     "quote not found in source document",
		})
	}

	return report
}

// corroborate searches for the quoted text and checks fetched pages for a
// normalized substring match.
func (v *CitationVerifier) corroborate(ctx context.Context, quote string) bool {
	results, err := v.searcher.Search(ctx, `"`+quote+`"`, v.webLimit)
	if err != nil {
		logger.Warnf("citation web search failed: %v", err)
		return false
	}

	target := normalizeWhitespace(quote)
	for _, result := range results {
		if strings.Contains(normalizeWhitespace(result.Snippet), target) {
			return true
		}
		if v.scraper == nil {
			continue
		}
		text, err := v.scraper.FetchText(ctx, result.URL)
		if err != nil {
			logger.Debugf("citation page fetch failed for %s: %v", result.URL, err)
			continue
		}
		if strings.Contains(normalizeWhitespace(text), target) {
			return true
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// bestWindowSimilarity slides a quote-sized window across the document and
// returns the highest bigram similarity seen.
func bestWindowSimilarity(quote, doc string) float64 {
	if quote == "" || doc == "" {
		return 0
	}
	if len(quote) >= len(doc) {
		return bigramSimilarity(quote, doc)
	}

	step := len(quote) / 4
	if step < 1 {
		step = 1
	}
	best := 0.0
	for start := 0; start < len(doc); start += step {
		end := start + len(quote)
		if end > len(doc) {
			end = len(doc)
		}
		if sim := bigramSimilarity(quote, doc[start:end]); sim > best {
			best = sim
		}
		if end == len(doc) {
			break
		}
	}
	return best
}

// bigramSimilarity is the Dice coefficient over character bigrams.
func bigramSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}

	counts := make(map[string]int)
	for i := 0; i < len(a)-1; i++ {
		counts[a[i:i+2]]++
	}
	overlap := 0
	for i := 0; i < len(b)-1; i++ {
		bg := b[i : i+2]
		if counts[bg] > 0 {
			counts[bg]--
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(a)-1+len(b)-1)
}
