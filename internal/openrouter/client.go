// Package openrouter is the slice of the OpenRouter API the research
// pipeline needs: one streamed chat completion per planner or synthesizer
// call, and the model catalogue used to price those calls.
package openrouter

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"brandhub/backend/internal/config"
)

const maxErrorBodyBytes = 8 * 1024

var ErrMissingAPIKey = errors.New("openrouter api key is not configured")

// Client is safe for concurrent use; it holds no per-call state.
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
		apiKey:     strings.TrimSpace(cfg.OpenRouterAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.OpenRouterBaseURL), "/"),
		httpClient: httpClient,
	}
}

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is the provider's back-off hint, zero when absent.
	RetryAfter time.Duration
}

func (e StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("openrouter returned %d", e.StatusCode)
	}
	return fmt.Sprintf("openrouter returned %d: %s", e.StatusCode, e.Body)
}

func (e StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// send performs req with credentials attached and converts non-2xx replies
// into StatusError. The caller owns the returned body.
func (c Client) send(req *http.Request, accept string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return nil, StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter accepts the delta-seconds form only.
func parseRetryAfter(raw string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
