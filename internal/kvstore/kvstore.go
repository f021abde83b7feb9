// Package kvstore is the durable state adapter for crawl records, the URL
// lock set, the job membership set, and the rendering-result cache. The
// production adapter is backed by badger/badgerhold; an in-memory adapter
// backs unit tests across the rest of the service.
package kvstore

import (
	"context"
	"time"

	"github.com/rohmanhakim/crawlsvc/internal/model"
)

// Store is the port every coordinator/worker/crawlstate component depends
// on. Keeping it as an interface (rather than a global singleton, per the
// design note on avoiding global mutable state) lets tests substitute
// memStore without touching production wiring.
type Store interface {
	PutCrawl(ctx context.Context, c model.StoredCrawl) error
	GetCrawl(ctx context.Context, id string) (model.StoredCrawl, bool, error)
	UpdateCrawlStatus(ctx context.Context, id string, status model.CrawlStatus) error
	IncrementCrawlCompleted(ctx context.Context, id string) error
	// IncrementCrawlTotal grows a crawl's Total counter by delta as
	// admission enqueues more jobs, so Progress.Total reflects work
	// discovered so far rather than only the initial seed/sitemap count.
	IncrementCrawlTotal(ctx context.Context, id string, delta int) error
	DeleteCrawl(ctx context.Context, id string) error

	// LockURL performs an atomic "set if absent": it returns true only for
	// the caller that first locks normalizedURL within crawlID, so two
	// workers racing to admit the same discovered link never both enqueue
	// it.
	LockURL(ctx context.Context, crawlID, normalizedURL string) (acquired bool, err error)
	LockURLsBulk(ctx context.Context, crawlID string, normalizedURLs []string) (acquired []string, err error)
	LockedCount(ctx context.Context, crawlID string) (int, error)

	AddJobMember(ctx context.Context, crawlID, jobID string) error
	RemoveJobMember(ctx context.Context, crawlID, jobID string) error
	JobMemberCount(ctx context.Context, crawlID string) (int, error)

	CacheDocument(ctx context.Context, normalizedURL string, doc model.Document, ttl time.Duration) error
	GetCachedDocument(ctx context.Context, normalizedURL string) (model.Document, bool, error)
}

// KeyCrawl, KeyLock, KeyJobMember and KeyCache define the persisted-state
// key layout: crawl:<id>, lock:<crawlID>:<url>, job:<crawlID>:<jobID>,
// web-scraper-cache:<url>.
func KeyCrawl(id string) string { return "crawl:" + id }

func KeyLock(crawlID, normalizedURL string) string {
	return "lock:" + crawlID + ":" + normalizedURL
}

func KeyJobMember(crawlID, jobID string) string {
	return "job:" + crawlID + ":" + jobID
}

func KeyCache(normalizedURL string) string {
	return "web-scraper-cache:" + normalizedURL
}
