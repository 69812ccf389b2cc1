// Package brave wraps the Brave web search endpoint used by the research
// dispatcher. Results come back as citable sources: deduplicated http(s)
// links with a title and at least one snippet where Brave has one.
package brave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"brandhub/backend/internal/config"
)

const (
	maxErrorBodyBytes = 8 * 1024
	maxQueryWords     = 50
	maxQueryChars     = 400
)

var ErrMissingAPIKey = errors.New("brave api key is not configured")

// Tier selects the quality/price level of a search call. Pro requests extra
// snippets and a deeper result page.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
)

func (t Tier) resultCount() int {
	if t == TierPro {
		return 10
	}
	return 5
}

type APIError struct {
	StatusCode int
	Body       string
	// ResetAfter is how long until the current rate-limit window reopens,
	// zero when Brave did not say.
	ResetAfter time.Duration
}

func (e APIError) Error() string {
	return fmt.Sprintf("brave returned %d: %s", e.StatusCode, e.Body)
}

func (e APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type SearchOptions struct {
	// Count caps the results; zero uses the tier's page size.
	Count int
	Tier  Tier
}

type SearchResult struct {
	URL           string
	Title         string
	Snippet       string
	ExtraSnippets []string
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return Client{
		apiKey:     strings.TrimSpace(cfg.BraveAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BraveBaseURL), "/"),
		httpClient: httpClient,
	}
}

// Search runs one web search. A blank query returns no results and makes
// no request.
func (c Client) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	query = clampQuery(query)
	if query == "" {
		return nil, nil
	}
	limit := opts.Count
	if limit <= 0 {
		limit = opts.Tier.resultCount()
	}

	endpoint, err := c.searchURL(query, limit, opts.Tier)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request brave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			ResetAfter: parseRateLimitReset(resp.Header.Get("X-RateLimit-Reset")),
		}
	}

	var page struct {
		Web struct {
			Results []webResult `json:"results"`
		} `json:"web"`
		Results []webResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}
	raw := page.Web.Results
	if len(raw) == 0 {
		raw = page.Results
	}
	return collectResults(raw, limit), nil
}

func (c Client) searchURL(query string, count int, tier Tier) (string, error) {
	endpoint, err := url.Parse(c.baseURL + "/web/search")
	if err != nil {
		return "", fmt.Errorf("parse brave endpoint: %w", err)
	}
	params := url.Values{
		"q":                {query},
		"count":            {strconv.Itoa(count)},
		"spellcheck":       {"0"},
		"text_decorations": {"0"},
	}
	if tier == TierPro {
		params.Set("extra_snippets", "1")
	}
	endpoint.RawQuery = params.Encode()
	return endpoint.String(), nil
}

type webResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
}

// source converts a raw hit into a citable result. Hits without an http(s)
// URL are dropped.
func (r webResult) source() (SearchResult, bool) {
	link := strings.TrimSpace(r.URL)
	parsed, err := url.Parse(link)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return SearchResult{}, false
	}

	var snippets []string
	seen := make(map[string]struct{}, 2+len(r.ExtraSnippets))
	for _, candidate := range append([]string{r.Description, r.Snippet}, r.ExtraSnippets...) {
		text := strings.TrimSpace(candidate)
		if _, dup := seen[text]; text == "" || dup {
			continue
		}
		seen[text] = struct{}{}
		snippets = append(snippets, text)
	}

	result := SearchResult{URL: link, Title: strings.TrimSpace(r.Title)}
	if result.Title == "" {
		result.Title = link
	}
	if len(snippets) > 0 {
		result.Snippet = snippets[0]
		if len(snippets) > 1 {
			result.ExtraSnippets = snippets[1:]
		}
	}
	return result, true
}

func collectResults(raw []webResult, limit int) []SearchResult {
	results := make([]SearchResult, 0, min(len(raw), limit))
	seen := make(map[string]struct{}, len(raw))
	for _, hit := range raw {
		if len(results) >= limit {
			break
		}
		result, ok := hit.source()
		if !ok {
			continue
		}
		if _, dup := seen[result.URL]; dup {
			continue
		}
		seen[result.URL] = struct{}{}
		results = append(results, result)
	}
	return results
}

// clampQuery collapses whitespace and keeps the query inside Brave's word
// and length limits.
func clampQuery(query string) string {
	words := strings.Fields(query)
	if len(words) > maxQueryWords {
		words = words[:maxQueryWords]
	}
	clamped := strings.Join(words, " ")
	if len(clamped) <= maxQueryChars {
		return clamped
	}
	if cut := strings.LastIndexByte(clamped[:maxQueryChars], ' '); cut > 0 {
		return clamped[:cut]
	}
	return strings.ToValidUTF8(clamped[:maxQueryChars], "")
}

// parseRateLimitReset reads the first window of a header like "1, 1419704".
func parseRateLimitReset(raw string) time.Duration {
	first, _, _ := strings.Cut(raw, ",")
	seconds, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
