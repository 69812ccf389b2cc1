package brave

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandhub/backend/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.Config{BraveAPIKey: "brave-key", BraveBaseURL: server.URL + "/"}, server.Client())
}

func TestSearchReturnsCitableSources(t *testing.T) {
	var received url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/search", r.URL.Path)
		assert.Equal(t, "brave-key", r.Header.Get("X-Subscription-Token"))
		received = r.URL.Query()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
		  "web": {
		    "results": [
		      {"url":"https://example.com/a","title":"Example A","description":"Snippet A","snippet":"Snippet A"},
		      {"url":"https://example.com/a","title":"Example A Dup","description":"Duplicate"},
		      {"url":"javascript:alert(1)","title":"Bad"},
		      {"url":"/relative","title":"Relative"},
		      {"url":"https://example.com/b","title":"","description":"Snippet B"},
		      {"url":"https://example.com/c","title":"Over the limit"}
		    ]
		  }
		}`)
	})

	results, err := client.Search(context.Background(), "  remote work\toffice   demand ", SearchOptions{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, "remote work office demand", received.Get("q"))
	assert.Equal(t, "2", received.Get("count"))
	assert.Equal(t, "0", received.Get("text_decorations"))
	assert.Empty(t, received.Get("extra_snippets"))

	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{URL: "https://example.com/a", Title: "Example A", Snippet: "Snippet A"}, results[0])
	assert.Equal(t, "https://example.com/b", results[1].Title)
	assert.Equal(t, "Snippet B", results[1].Snippet)
}

func TestSearchProTierRequestsExtraSnippets(t *testing.T) {
	var received url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		received = r.URL.Query()
		_, _ = io.WriteString(w, `{"web":{"results":[{"url":"https://example.com/x","title":"X","extra_snippets":["  first extra ","","second extra","first extra"]}]}}`)
	})

	results, err := client.Search(context.Background(), "brand tone guidelines", SearchOptions{Tier: TierPro})
	require.NoError(t, err)

	assert.Equal(t, "10", received.Get("count"))
	assert.Equal(t, "1", received.Get("extra_snippets"))
	require.Len(t, results, 1)
	assert.Equal(t, "first extra", results[0].Snippet)
	assert.Equal(t, []string{"second extra"}, results[0].ExtraSnippets)
}

func TestSearchStandardTierDefaultCount(t *testing.T) {
	var received url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		received = r.URL.Query()
		_, _ = io.WriteString(w, `{"results":[{"url":"http://legacy.example.org","title":"Legacy shape"}]}`)
	})

	results, err := client.Search(context.Background(), "coffee roasting", SearchOptions{Tier: TierStandard})
	require.NoError(t, err)
	assert.Equal(t, "5", received.Get("count"))
	require.Len(t, results, 1)
	assert.Equal(t, "Legacy shape", results[0].Title)
}

func TestSearchBlankQueryMakesNoRequest(t *testing.T) {
	called := false
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) { called = true })

	results, err := client.Search(context.Background(), " \n ", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.False(t, called)
}

func TestSearchReturnsErrMissingAPIKey(t *testing.T) {
	client := NewClient(config.Config{BraveBaseURL: "https://api.search.brave.com/res/v1"}, nil)

	_, err := client.Search(context.Background(), "test", SearchOptions{})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestSearchReturnsRateLimitError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Reset", "1, 1419704")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited"}`)
	})

	_, err := client.Search(context.Background(), "test", SearchOptions{Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brave returned 429")

	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.RateLimited())
	assert.Equal(t, time.Second, apiErr.ResetAfter)
}

func TestClampQuery(t *testing.T) {
	assert.Equal(t, "a b", clampQuery("  a   b  "))
	assert.Equal(t, "", clampQuery("   "))

	words := strings.Repeat("w ", maxQueryWords+10)
	assert.Len(t, strings.Fields(clampQuery(words)), maxQueryWords)

	long := strings.Repeat("abcdefghi ", 45)
	clamped := clampQuery(long)
	assert.LessOrEqual(t, len(clamped), maxQueryChars)
	assert.False(t, strings.HasSuffix(clamped, " "))
	assert.True(t, strings.HasSuffix(clamped, "abcdefghi"))

	unbroken := strings.Repeat("é", maxQueryChars)
	assert.LessOrEqual(t, len(clampQuery(unbroken)), maxQueryChars)
}

func TestParseRateLimitReset(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRateLimitReset("3"))
	assert.Zero(t, parseRateLimitReset(""))
	assert.Zero(t, parseRateLimitReset("soon"))
}
