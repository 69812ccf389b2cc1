package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"brandhub/backend/internal/brave"
)

const (
	maxSummaryRunes = 1600
	maxTitleRunes   = 240
	maxSnippetRunes = 480
)

type rateLimitedSearcher struct {
	inner   Searcher
	limiter *rate.Limiter
}

// NewRateLimitedSearcher spaces calls to inner at least minInterval apart
// across all sessions sharing it.
func NewRateLimitedSearcher(inner Searcher, minInterval time.Duration) Searcher {
	if inner == nil || minInterval <= 0 {
		return inner
	}
	return &rateLimitedSearcher{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

func (s *rateLimitedSearcher) Search(ctx context.Context, query string, opts brave.SearchOptions) ([]brave.SearchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Search(ctx, query, opts)
}

// summarizeSearchResults renders search hits as note lines and the matching
// source list, in result order.
func summarizeSearchResults(results []brave.SearchResult) (string, []Source) {
	var b strings.Builder
	sources := make([]Source, 0, len(results))
	for _, result := range results {
		rawURL := strings.TrimSpace(result.URL)
		if rawURL == "" {
			continue
		}
		title := trimToRunes(strings.TrimSpace(result.Title), maxTitleRunes)
		if title == "" {
			title = rawURL
		}
		sources = append(sources, Source{Title: title, URL: rawURL})

		snippet := strings.TrimSpace(result.Snippet)
		if len(result.ExtraSnippets) > 0 {
			snippet = strings.TrimSpace(snippet + " " + strings.Join(result.ExtraSnippets, " "))
		}
		b.WriteString(fmt.Sprintf("- %s: %s\n", title, trimToRunes(snippet, maxSnippetRunes)))
	}
	return trimToRunes(strings.TrimSpace(b.String()), maxSummaryRunes), sources
}

// trimToRunes cuts raw to at most limit runes without splitting one.
func trimToRunes(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	seen := 0
	for offset := range raw {
		if seen == limit {
			return raw[:offset]
		}
		seen++
	}
	return raw
}
