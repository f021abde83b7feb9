package crawlstate

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rohmanhakim/crawlsvc/internal/kvstore"
	"github.com/rohmanhakim/crawlsvc/internal/model"
	"github.com/rohmanhakim/crawlsvc/internal/queue"
	"github.com/rohmanhakim/crawlsvc/internal/urlpolicy"
)

// Discover runs the discovery/admission pipeline against one
// fetched page's HTML and returns the jobs the worker should hand to
// queue.EnqueueBulk, in source document order. enqueuedSoFar is the
// crawl's current total (for the remaining-budget check in step 7); the
// caller is responsible for updating that counter as the returned jobs are
// enqueued.
func Discover(
	ctx context.Context,
	store kvstore.Store,
	policy *queue.PriorityPolicy,
	crawl model.StoredCrawl,
	pageURL url.URL,
	html string,
	depth int,
	enqueuedSoFar int,
) ([]model.Job, error) {
	budget := crawl.Options.Limit()
	if crawl.Options.MaxCrawledLinks() < budget {
		budget = crawl.Options.MaxCrawledLinks()
	}
	remaining := budget - enqueuedSoFar
	if remaining <= 0 {
		return nil, nil
	}

	seedHost := crawl.Origin.Hostname()
	adjustedMaxDepth := urlpolicy.AdjustedMaxDepth(crawl.Origin, crawl.Options.MaxDepth())

	var candidates []url.URL
	var normalizedKeys []string
	seen := make(map[string]struct{})

	for _, href := range ExtractLinks(html) {
		resolved, err := urlpolicy.ResolveLink(pageURL, href)
		if err != nil {
			continue
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}

		// Step 2: depth ceiling.
		if urlpolicy.URLDepth(resolved) > adjustedMaxDepth {
			continue
		}

		// Step 3: external-link policy.
		if !crawl.Options.AllowExternalLinks() && resolved.Hostname() != seedHost {
			continue
		}

		// Steps 4-5: include/exclude.
		if !urlpolicy.MatchesIncludeExclude(resolved, crawl.Options.IncludePatterns(), crawl.Options.ExcludePatterns()) {
			continue
		}

		// ExtractLinks may repeat the same href multiple times on one page;
		// dedupe before the budget cap so duplicates never crowd out
		// genuinely new links.
		key := urlpolicy.Normalize(resolved)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, resolved)
		normalizedKeys = append(normalizedKeys, key)

		if len(candidates) >= remaining {
			break
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	// Step 6+7: the lock set doubles as both the "already seen" check and
	// the reservation — LockURL is an atomic set-if-absent, so a losing
	// racer naturally falls out of the acquired set instead of being
	// double-enqueued.
	acquired, err := store.LockURLsBulk(ctx, crawl.ID, normalizedKeys)
	if err != nil {
		return nil, err
	}
	acquiredSet := make(map[string]struct{}, len(acquired))
	for _, k := range acquired {
		acquiredSet[k] = struct{}{}
	}

	// EnqueuedAt increments by one nanosecond per candidate (rather than a
	// shared timestamp) so the queue's (priority, enqueuedAt) ordering
	// preserves document order as the tie-break among same-priority jobs.
	base := time.Now()
	jobs := make([]model.Job, 0, len(acquired))
	for i, u := range candidates {
		if _, ok := acquiredSet[normalizedKeys[i]]; !ok {
			continue
		}
		priority := policy.Resolve(queue.PrioritySitemapOrLinked, crawl.Plan, crawl.TenantID)
		jobs = append(jobs, model.Job{
			ID:         uuid.New().String(),
			CrawlID:    crawl.ID,
			URL:        u,
			Depth:      depth + 1,
			Priority:   priority,
			Mode:       model.ModeSingleURL,
			Sitemapped: false,
			EnqueuedAt: base.Add(time.Duration(i)),
		})
	}
	return jobs, nil
}
