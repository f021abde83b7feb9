// Package fetchclient implements the two fetch backends a worker chooses
// between: a rendering service for JS-heavy pages and a direct HTTP
// client for fast-mode/binary requests.
package fetchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Result is the common shape both fetchers return.
type Result struct {
	Content        string
	PageStatusCode int
	PageError      string
}

// Fetcher is the port worker.Pool depends on to retrieve one page.
type Fetcher interface {
	Fetch(ctx context.Context, target url.URL, waitAfterLoad time.Duration, headers map[string]string) (Result, error)
}

func classifyTimeout(err error) string {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Request timed out"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	return err.Error()
}

// RenderingFetcher posts to an external rendering service and parses
// its JSON response.
type RenderingFetcher struct {
	ServiceURL  string
	HTTPClient  *http.Client
	BaseTimeout time.Duration
}

func NewRenderingFetcher(serviceURL string, httpClient *http.Client, baseTimeout time.Duration) *RenderingFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseTimeout <= 0 {
		baseTimeout = 30 * time.Second
	}
	return &RenderingFetcher{ServiceURL: serviceURL, HTTPClient: httpClient, BaseTimeout: baseTimeout}
}

type renderRequest struct {
	URL           string            `json:"url"`
	WaitAfterLoad int64             `json:"wait_after_load"`
	Headers       map[string]string `json:"headers,omitempty"`
}

type renderResponse struct {
	Content        string `json:"content"`
	PageStatusCode int    `json:"pageStatusCode"`
	PageError      string `json:"pageError"`
}

func (f *RenderingFetcher) Fetch(ctx context.Context, target url.URL, waitAfterLoad time.Duration, headers map[string]string) (Result, error) {
	timeout := f.BaseTimeout + waitAfterLoad
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(renderRequest{
		URL:           target.String(),
		WaitAfterLoad: waitAfterLoad.Milliseconds(),
		Headers:       headers,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.ServiceURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return Result{}, errors.New(classifyTimeout(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{PageStatusCode: resp.StatusCode, PageError: resp.Status}, nil
	}

	var parsed renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, err
	}
	return Result{Content: parsed.Content, PageStatusCode: parsed.PageStatusCode, PageError: parsed.PageError}, nil
}

// DirectFetcher GETs the target directly, sharing one cookie jar across a
// worker session (fast-mode pages, or binary documents routed around the
// rendering backend).
type DirectFetcher struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewDirectFetcher(timeout time.Duration) (*DirectFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DirectFetcher{
		HTTPClient: &http.Client{Jar: jar},
		Timeout:    timeout,
	}, nil
}

func (f *DirectFetcher) Fetch(ctx context.Context, target url.URL, waitAfterLoad time.Duration, headers map[string]string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout+waitAfterLoad)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Result{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return Result{}, errors.New(classifyTimeout(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Result{PageStatusCode: resp.StatusCode, PageError: resp.Status}, nil
	}
	return Result{Content: string(raw), PageStatusCode: resp.StatusCode}, nil
}

// IsBinaryDocument reports whether target's extension indicates a binary
// document (PDF/DOC/DOCX) that must be routed to the document extractor
// instead of either fetcher.
func IsBinaryDocument(target url.URL) bool {
	path := target.Path
	for _, ext := range []string{".pdf", ".doc", ".docx"} {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}
