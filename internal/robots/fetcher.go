// Package robots fetches, caches, and evaluates robots.txt for the hosts
// a crawl touches. Parsing is delegated to github.com/temoto/robotstxt
// rather than hand-scanning robots.txt lines.
package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/rohmanhakim/crawlsvc/internal/metadata"
	"github.com/rohmanhakim/crawlsvc/internal/robots/cache"
)

// maxBodyBytes caps how much of a robots.txt response is read, guarding
// against a misbehaving server streaming an unbounded body.
const maxBodyBytes = 500 * 1024

// Client fetches and evaluates robots.txt on behalf of a single crawl.
// It caches raw robots.txt bodies (never parsed structures, since
// cache.Cache only stores strings) keyed by host, and memoizes the
// parsed ruleSet per process for the lifetime of the Client.
type Client struct {
	httpClient *http.Client
	cache      cache.Cache
	userAgent  string
	sink       metadata.MetadataSink

	mu       sync.Mutex
	ruleSets map[string]*ruleSet
}

func NewClient(httpClient *http.Client, c cache.Cache, userAgent string, sink metadata.MetadataSink) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		cache:      c,
		userAgent:  userAgent,
		sink:       sink,
		ruleSets:   make(map[string]*ruleSet),
	}
}

// Allowed reports whether u may be fetched under the host's robots.txt.
// A fetch/parse failure never blocks crawling: Allowed degrades to the
// permissive default and records the failure via MetadataSink.
func (c *Client) Allowed(ctx context.Context, u url.URL) bool {
	rs := c.ruleSetFor(ctx, u)
	d := rs.Decide(u.Path)
	return d.Allowed
}

// CrawlDelay returns the robots.txt-declared crawl delay for u's host, or
// zero if none applies.
func (c *Client) CrawlDelay(ctx context.Context, u url.URL) time.Duration {
	return c.ruleSetFor(ctx, u).CrawlDelay()
}

// Text returns the raw robots.txt body fetched for u's host, and whether
// one was actually retrievable. A host with no robots.txt, or one that
// could not be fetched/parsed, reports ("", false).
func (c *Client) Text(ctx context.Context, u url.URL) (string, bool) {
	rs := c.ruleSetFor(ctx, u)
	return rs.rawText, rs.rawText != ""
}

func (c *Client) ruleSetFor(ctx context.Context, u url.URL) *ruleSet {
	host := u.Host

	c.mu.Lock()
	if rs, ok := c.ruleSets[host]; ok {
		c.mu.Unlock()
		return rs
	}
	c.mu.Unlock()

	rs, err := c.fetchRuleSet(ctx, host)
	if err != nil {
		if c.sink != nil {
			c.sink.RecordError(time.Now(), "robots", "fetch", err.Cause, err.Error(), []metadata.Attribute{
				metadata.NewAttr(metadata.AttrHost, host),
			})
		}
		rs = emptyRuleSet(host, c.userAgent)
	}

	c.mu.Lock()
	c.ruleSets[host] = rs
	c.mu.Unlock()
	return rs
}

func (c *Client) fetchRuleSet(ctx context.Context, host string) (*ruleSet, *RobotsError) {
	body, cached := c.cache.Get(host)
	if cached {
		data, perr := robotstxt.FromBytes([]byte(body))
		if perr != nil {
			return nil, newParseError("parse", host, perr)
		}
		return newRuleSet(host, c.userAgent, data, body), nil
	}

	target := url.URL{Scheme: "https", Host: host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, newNetworkError("fetch", host, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newNetworkError("fetch", host, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newRateLimitedError("fetch", host)
	case resp.StatusCode >= 500:
		return nil, newServerError("fetch", host, resp.StatusCode)
	case resp.StatusCode >= 400:
		// No robots.txt, or access denied to it: permissive empty ruleset.
		return emptyRuleSet(host, c.userAgent), nil
	case resp.StatusCode >= 300:
		return emptyRuleSet(host, c.userAgent), nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, newNetworkError("read", host, err)
	}

	data, perr := robotstxt.FromStatusAndBytes(resp.StatusCode, raw)
	if perr != nil {
		return nil, newParseError("parse", host, perr)
	}

	c.cache.Put(host, string(raw))
	return newRuleSet(host, c.userAgent, data, string(raw)), nil
}
