// Package coordinator implements crawl submission: request validation,
// crawl id allocation, a best-effort robots fetch, StoredCrawl
// persistence, and seed/sitemap job admission. It returns as soon as the
// initial jobs are enqueued — the worker pool does the rest.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rohmanhakim/crawlsvc/internal/kvstore"
	"github.com/rohmanhakim/crawlsvc/internal/metadata"
	"github.com/rohmanhakim/crawlsvc/internal/model"
	"github.com/rohmanhakim/crawlsvc/internal/queue"
	"github.com/rohmanhakim/crawlsvc/internal/robots"
	"github.com/rohmanhakim/crawlsvc/internal/urlpolicy"
)

const maxSitemapFanout = 1000

// Request is the submission payload accepted by Submit, mirroring the
// POST /v1/crawl request body.
type Request struct {
	URL        string
	TenantID   string
	Plan       string
	WebhookURL string
	Options    *model.CrawlerOptions
}

type Coordinator struct {
	store      kvstore.Store
	queue      queue.Queue
	policy     *queue.PriorityPolicy
	robots     *robots.Client
	httpClient *http.Client
	sink       metadata.MetadataSink
	scheme     string // "https" unless running in local mode
}

func New(store kvstore.Store, q queue.Queue, policy *queue.PriorityPolicy, robotsClient *robots.Client, httpClient *http.Client, sink metadata.MetadataSink, localMode bool) *Coordinator {
	scheme := "https"
	if localMode {
		scheme = "http"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Coordinator{
		store:      store,
		queue:      q,
		policy:     policy,
		robots:     robotsClient,
		httpClient: httpClient,
		sink:       sink,
		scheme:     scheme,
	}
}

// Submit validates req, persists a new StoredCrawl, seeds the queue, and
// returns the crawl id and its resource URL. Robots/sitemap failures never
// fail the submission; only validation and persistence failures do.
func (c *Coordinator) Submit(ctx context.Context, req Request) (crawlID string, resourceURL string, err error) {
	origin, err := url.Parse(req.URL)
	if err != nil || !origin.IsAbs() || (origin.Scheme != "http" && origin.Scheme != "https") {
		return "", "", fmt.Errorf("originUrl must be an absolute http(s) URL")
	}

	opts := req.Options
	if opts == nil {
		opts = model.NewCrawlerOptions()
	}
	built, err := opts.Build()
	if err != nil {
		return "", "", fmt.Errorf("invalid crawler options: %w", err)
	}

	id := uuid.New().String()
	now := time.Now()

	// Best-effort robots fetch: absence of a retrievable robots.txt just
	// means no policy was retrieved, never a submission failure.
	var robotsText string
	if c.robots != nil {
		func() {
			defer func() {
				if r := recover(); r != nil && c.sink != nil {
					c.sink.RecordError(now, "coordinator", "robots_fetch", metadata.CauseNetworkFailure, fmt.Sprintf("%v", r), nil)
				}
			}()
			robotsText, _ = c.robots.Text(ctx, *origin)
		}()
	}

	crawl := model.StoredCrawl{
		ID:         id,
		Origin:     *origin,
		Options:    built,
		Plan:       req.Plan,
		TenantID:   req.TenantID,
		WebhookURL: req.WebhookURL,
		Status:     model.StatusScraping,
		CreatedAt:  now,
		UpdatedAt:  now,
		Robots:     robotsText,
	}
	if err := c.store.PutCrawl(ctx, crawl); err != nil {
		return "", "", fmt.Errorf("persist crawl: %w", err)
	}

	if err := c.admit(ctx, crawl); err != nil {
		if c.sink != nil {
			c.sink.RecordError(time.Now(), "coordinator", "admit", metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{
				metadata.NewAttr(metadata.AttrCrawlID, id),
			})
		}
	}

	resourceURL = fmt.Sprintf("%s://%s/v1/crawl/%s", c.scheme, origin.Host, id)
	return id, resourceURL, nil
}

func (c *Coordinator) admit(ctx context.Context, crawl model.StoredCrawl) error {
	if crawl.Options.IgnoreSitemap() {
		return c.admitSeed(ctx, crawl)
	}

	entries := robots.TryGetSitemap(ctx, c.httpClient, crawl.Origin)
	if len(entries) == 0 {
		return c.admitSeed(ctx, crawl)
	}

	basePriority := queue.PrioritySitemapOrLinked
	if len(entries) > maxSitemapFanout {
		basePriority = queue.PriorityDemotedBase
	}

	keys := make([]string, 0, len(entries))
	parsed := make([]url.URL, 0, len(entries))
	matched := make([]robots.SitemapEntry, 0, len(entries))
	for _, e := range entries {
		u, err := url.Parse(e.Loc)
		if err != nil || !u.IsAbs() {
			continue
		}
		parsed = append(parsed, *u)
		keys = append(keys, urlpolicy.Normalize(*u))
		matched = append(matched, e)
	}
	if len(parsed) == 0 {
		return c.admitSeed(ctx, crawl)
	}

	acquired, err := c.store.LockURLsBulk(ctx, crawl.ID, keys)
	if err != nil {
		return err
	}
	acquiredSet := make(map[string]struct{}, len(acquired))
	for _, k := range acquired {
		acquiredSet[k] = struct{}{}
	}

	base := time.Now()
	jobs := make([]model.Job, 0, len(acquired))
	for i, u := range parsed {
		if _, ok := acquiredSet[keys[i]]; !ok {
			continue
		}
		jobs = append(jobs, model.Job{
			ID:          uuid.New().String(),
			CrawlID:     crawl.ID,
			URL:         u,
			Depth:       0,
			Priority:    c.policy.Resolve(basePriority, crawl.Plan, crawl.TenantID),
			Mode:        model.ModeSingleURL,
			Sitemapped:  true,
			EnqueuedAt:  base.Add(time.Duration(i)),
			SitemapMeta: sitemapMetaFor(matched[i]),
		})
	}
	if len(jobs) == 0 {
		return c.admitSeed(ctx, crawl)
	}
	for _, j := range jobs {
		if err := c.store.AddJobMember(ctx, crawl.ID, j.ID); err != nil && c.sink != nil {
			c.sink.RecordError(time.Now(), "coordinator", "admit", metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{
				metadata.NewAttr(metadata.AttrCrawlID, crawl.ID),
			})
		}
	}
	if err := c.store.IncrementCrawlTotal(ctx, crawl.ID, len(jobs)); err != nil {
		return err
	}
	c.queue.EnqueueBulk(jobs)
	return nil
}

func (c *Coordinator) admitSeed(ctx context.Context, crawl model.StoredCrawl) error {
	key := urlpolicy.Normalize(crawl.Origin)
	acquired, err := c.store.LockURL(ctx, crawl.ID, key)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	job := model.Job{
		ID:         uuid.New().String(),
		CrawlID:    crawl.ID,
		URL:        crawl.Origin,
		Depth:      0,
		Priority:   c.policy.Resolve(queue.PrioritySeed, crawl.Plan, crawl.TenantID),
		Mode:       model.ModeSingleURL,
		Sitemapped: false,
		EnqueuedAt: time.Now(),
	}
	if err := c.store.AddJobMember(ctx, crawl.ID, job.ID); err != nil && c.sink != nil {
		c.sink.RecordError(time.Now(), "coordinator", "admitSeed", metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{
			metadata.NewAttr(metadata.AttrCrawlID, crawl.ID),
		})
	}
	if err := c.store.IncrementCrawlTotal(ctx, crawl.ID, 1); err != nil {
		return err
	}
	c.queue.Enqueue(job)
	return nil
}

// sitemapMetaFor carries a sitemap entry's optional hints onto the Job so
// the worker can attach them to the emitted Document without re-fetching
// or re-parsing the sitemap.
func sitemapMetaFor(e robots.SitemapEntry) map[string]string {
	meta := make(map[string]string, 3)
	if e.LastMod != "" {
		meta["sitemap_lastmod"] = e.LastMod
	}
	if e.ChangeFreq != "" {
		meta["sitemap_changefreq"] = e.ChangeFreq
	}
	if e.Priority != "" {
		meta["sitemap_priority"] = e.Priority
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
