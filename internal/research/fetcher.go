package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"
)

const (
	defaultFetchTimeout   = 10 * time.Second
	defaultFetchMaxBytes  = int64(2_000_000)
	defaultFetchRedirects = 3
	fetchUserAgent        = "brandhub-research/1.0"
)

type FetcherConfig struct {
	RequestTimeout time.Duration
	MaxBytes       int64
	MaxRedirects   int
}

// ContextFetcher downloads a public page or document named by the caller and
// extracts it as planning context.
type ContextFetcher struct {
	cfg        FetcherConfig
	httpClient *http.Client
}

// NewContextFetcher builds a fetcher. A nil httpClient gets a transport that
// only dials public addresses.
func NewContextFetcher(cfg FetcherConfig, httpClient *http.Client) *ContextFetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultFetchMaxBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultFetchRedirects
	}
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = nil
		transport.DialContext = guardedDialContext(&net.Dialer{Timeout: cfg.RequestTimeout})
		httpClient = &http.Client{Transport: transport}
	}
	client := *httpClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return errors.New("too many redirects")
		}
		_, err := validateContextURL(req.URL.String())
		return err
	}
	return &ContextFetcher{cfg: cfg, httpClient: &client}
}

func (f *ContextFetcher) Fetch(ctx context.Context, rawURL string) (ContextDocument, error) {
	parsed, err := validateContextURL(rawURL)
	if err != nil {
		return ContextDocument{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return ContextDocument{}, fmt.Errorf("build context request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain,text/markdown,text/csv,application/json,application/pdf;q=0.9,*/*;q=0.1")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return ContextDocument{}, fmt.Errorf("fetch context url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return ContextDocument{}, fmt.Errorf("fetch context url: upstream status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return ContextDocument{}, fmt.Errorf("read context body: %w", err)
	}
	truncated := int64(len(payload)) > f.cfg.MaxBytes
	if truncated {
		payload = payload[:f.cfg.MaxBytes]
	}

	finalURL := parsed
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	doc, err := ExtractContext(path.Base(finalURL.Path), resp.Header.Get("Content-Type"), payload)
	if err != nil {
		return doc, err
	}
	doc.Name = finalURL.String()
	doc.Truncated = doc.Truncated || truncated
	return doc, nil
}
