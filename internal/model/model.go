// Package model defines the data types shared across the crawl service:
// the persisted crawl record, per-submission options, queued jobs, and the
// document delivered to a caller or webhook.
package model

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// CrawlStatus is the lifecycle state of a StoredCrawl.
type CrawlStatus string

const (
	StatusScraping  CrawlStatus = "scraping"
	StatusCompleted CrawlStatus = "completed"
	StatusFailed    CrawlStatus = "failed"
	StatusCancelled CrawlStatus = "cancelled"
)

// PageOptions controls how an individual page is fetched and what the
// rendering backend should return for it.
type PageOptions struct {
	onlyMainContent bool
	includeHTML     bool
	includeMarkdown bool
	useFastMode     bool
	waitAfterLoad   time.Duration
	headers         map[string]string
}

func NewPageOptions() *PageOptions {
	return &PageOptions{
		onlyMainContent: true,
		includeHTML:     false,
		includeMarkdown: true,
		useFastMode:     false,
		waitAfterLoad:   0,
		headers:         map[string]string{},
	}
}

func (p *PageOptions) WithOnlyMainContent(v bool) *PageOptions { p.onlyMainContent = v; return p }
func (p *PageOptions) WithIncludeHTML(v bool) *PageOptions     { p.includeHTML = v; return p }
func (p *PageOptions) WithIncludeMarkdown(v bool) *PageOptions { p.includeMarkdown = v; return p }
func (p *PageOptions) WithUseFastMode(v bool) *PageOptions     { p.useFastMode = v; return p }
func (p *PageOptions) WithWaitAfterLoad(d time.Duration) *PageOptions {
	p.waitAfterLoad = d
	return p
}
func (p *PageOptions) WithHeaders(h map[string]string) *PageOptions {
	if h == nil {
		h = map[string]string{}
	}
	p.headers = h
	return p
}

func (p PageOptions) OnlyMainContent() bool        { return p.onlyMainContent }
func (p PageOptions) IncludeHTML() bool            { return p.includeHTML }
func (p PageOptions) IncludeMarkdown() bool        { return p.includeMarkdown }
func (p PageOptions) UseFastMode() bool            { return p.useFastMode }
func (p PageOptions) WaitAfterLoad() time.Duration { return p.waitAfterLoad }
func (p PageOptions) Headers() map[string]string {
	out := make(map[string]string, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out
}

// CrawlerOptions carries the policy a crawl is bound to, normalized once at
// submission time. Regex fields are stored pre-compiled so every later
// consumer (crawl state machine, URL policy engine) reuses the same
// validated pattern instead of re-parsing caller-supplied strings.
type CrawlerOptions struct {
	maxDepth           int
	maxCrawledLinks    int
	limit              int
	includePatterns    []*regexp.Regexp
	excludePatterns    []*regexp.Regexp
	allowExternalLinks bool
	ignoreSitemap      bool
	returnOnlyURLs     bool
	pageOptions        PageOptions
}

// NewCrawlerOptions returns documented defaults.
func NewCrawlerOptions() *CrawlerOptions {
	return &CrawlerOptions{
		maxDepth:           10,
		maxCrawledLinks:    1000,
		limit:              10000,
		includePatterns:    nil,
		excludePatterns:    nil,
		allowExternalLinks: false,
		ignoreSitemap:      true,
		returnOnlyURLs:     false,
		pageOptions:        *NewPageOptions(),
	}
}

func (c *CrawlerOptions) WithMaxDepth(d int) *CrawlerOptions        { c.maxDepth = d; return c }
func (c *CrawlerOptions) WithMaxCrawledLinks(n int) *CrawlerOptions { c.maxCrawledLinks = n; return c }
func (c *CrawlerOptions) WithLimit(l int) *CrawlerOptions           { c.limit = l; return c }
func (c *CrawlerOptions) WithAllowExternalLinks(v bool) *CrawlerOptions {
	c.allowExternalLinks = v
	return c
}
func (c *CrawlerOptions) WithIgnoreSitemap(v bool) *CrawlerOptions { c.ignoreSitemap = v; return c }
func (c *CrawlerOptions) WithReturnOnlyURLs(v bool) *CrawlerOptions {
	c.returnOnlyURLs = v
	return c
}
func (c *CrawlerOptions) WithPageOptions(p PageOptions) *CrawlerOptions {
	c.pageOptions = p
	return c
}

// WithIncludePatterns compiles and stores path-match include patterns.
// Mixed string/array pattern normalization happens at the caller boundary
// before this is called; by the time CrawlerOptions exists, patterns are
// already a []string.
func (c *CrawlerOptions) WithIncludePatterns(patterns []string) (*CrawlerOptions, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}
	c.includePatterns = compiled
	return c, nil
}

func (c *CrawlerOptions) WithExcludePatterns(patterns []string) (*CrawlerOptions, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, fmt.Errorf("exclude pattern: %w", err)
	}
	c.excludePatterns = compiled
	return c, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func (c *CrawlerOptions) Build() (CrawlerOptions, error) {
	if c.maxDepth < 0 {
		return CrawlerOptions{}, fmt.Errorf("maxDepth must be >= 0")
	}
	if c.limit < 0 {
		return CrawlerOptions{}, fmt.Errorf("limit must be >= 0")
	}
	return *c, nil
}

func (c CrawlerOptions) MaxDepth() int                   { return c.maxDepth }
func (c CrawlerOptions) MaxCrawledLinks() int             { return c.maxCrawledLinks }
func (c CrawlerOptions) Limit() int                       { return c.limit }
func (c CrawlerOptions) AllowExternalLinks() bool         { return c.allowExternalLinks }
func (c CrawlerOptions) IgnoreSitemap() bool              { return c.ignoreSitemap }
func (c CrawlerOptions) ReturnOnlyURLs() bool             { return c.returnOnlyURLs }
func (c CrawlerOptions) PageOptions() PageOptions         { return c.pageOptions }
func (c CrawlerOptions) IncludePatterns() []*regexp.Regexp { return c.includePatterns }
func (c CrawlerOptions) ExcludePatterns() []*regexp.Regexp { return c.excludePatterns }

// StoredCrawl is the durable, kvstore-persisted record of one crawl.
type StoredCrawl struct {
	ID         string
	Origin     url.URL
	Options    CrawlerOptions
	Plan       string
	TenantID   string
	WebhookURL string
	Status     CrawlStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Completed  int
	Total      int
	// Robots is the seed host's robots.txt text if it was retrievable at
	// submission time, else empty.
	Robots string
}

// Job is one unit of work in the priority queue: fetch a single URL under a
// crawl. Sitemapped marks a job as sourced directly from the sitemap
// rather than from link discovery; discovery only ever runs for
// non-sitemapped jobs.
type Job struct {
	ID          string
	CrawlID     string
	URL         url.URL
	Depth       int
	Priority    int
	Mode        JobMode
	Sitemapped  bool
	EnqueuedAt  time.Time
	SitemapMeta map[string]string
}

// JobMode is the job's runtime mode. "single_urls" is the only runtime
// value — the "crawl" submission mode expands into many single_urls jobs
// at admission time rather than tagging jobs with a distinct mode.
type JobMode string

const ModeSingleURL JobMode = "single_urls"

// Document is the structured artifact produced for one successfully fetched
// page, delivered inline or via webhook.
type Document struct {
	URL        string
	Markdown   string
	HTML       string
	StatusCode int
	Error      string
	FetchedAt  time.Time
	Metadata   map[string]string
}
