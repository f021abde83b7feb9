// Package worker implements the dequeue -> fetch -> discover -> emit
// pipeline running atop the priority queue. Jobs execute concurrently,
// bounded by one weighted semaphore shared by the whole pool; the
// semaphore is not partitioned per crawl.
package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rohmanhakim/crawlsvc/internal/crawlstate"
	"github.com/rohmanhakim/crawlsvc/internal/external"
	"github.com/rohmanhakim/crawlsvc/internal/fetchclient"
	"github.com/rohmanhakim/crawlsvc/internal/kvstore"
	"github.com/rohmanhakim/crawlsvc/internal/metadata"
	"github.com/rohmanhakim/crawlsvc/internal/model"
	"github.com/rohmanhakim/crawlsvc/internal/queue"
	"github.com/rohmanhakim/crawlsvc/internal/storage"
	"github.com/rohmanhakim/crawlsvc/internal/webhook"
	"github.com/rohmanhakim/crawlsvc/pkg/failure"
	"github.com/rohmanhakim/crawlsvc/pkg/hashutil"
	"github.com/rohmanhakim/crawlsvc/pkg/limiter"
	"github.com/rohmanhakim/crawlsvc/pkg/retry"
	"github.com/rohmanhakim/crawlsvc/pkg/timeutil"
)

const defaultConcurrentRequests = 20

// Progress is one {current, total, status, currentDocumentUrl,
// currentDocument} update, reported per job.
type Progress struct {
	CrawlID            string
	Current            int
	Total              int
	Status             model.CrawlStatus
	CurrentDocumentURL string
	CurrentDocument    model.Document
}

// ProgressAggregator receives per-job progress updates. Implementations
// own their own fan-in (per-crawl channels, websocket push, etc.); the
// pool only ever sends.
type ProgressAggregator interface {
	Report(p Progress)
}

type Pool struct {
	queue       queue.Queue
	store       kvstore.Store
	policy      *queue.PriorityPolicy
	renderer    fetchclient.Fetcher
	direct      fetchclient.Fetcher
	rateLimiter limiter.RateLimiter
	progress    ProgressAggregator
	webhook     *webhook.Dispatcher
	sink        metadata.MetadataSink
	markdown    external.MarkdownConverter
	extractor   external.DocumentExtractor
	localSink   storage.Sink
	localDir    string
	localHash   hashutil.HashAlgo
	sem         *semaphore.Weighted
	retryParam  retry.RetryParam
	wg          sync.WaitGroup
}

type Options struct {
	ConcurrentRequests int
	RetryParam         retry.RetryParam
}

func NewPool(
	q queue.Queue,
	store kvstore.Store,
	policy *queue.PriorityPolicy,
	renderer fetchclient.Fetcher,
	direct fetchclient.Fetcher,
	rateLimiter limiter.RateLimiter,
	progress ProgressAggregator,
	dispatcher *webhook.Dispatcher,
	sink metadata.MetadataSink,
	opts Options,
) *Pool {
	n := opts.ConcurrentRequests
	if n <= 0 {
		n = defaultConcurrentRequests
	}
	retryParam := opts.RetryParam
	if retryParam.MaxAttempts == 0 {
		retryParam = retry.NewRetryParam(
			500*time.Millisecond,
			250*time.Millisecond,
			time.Now().UnixNano(),
			3,
			timeutil.NewBackoffParam(time.Second, 2.0, 30*time.Second),
		)
	}
	return &Pool{
		queue:       q,
		store:       store,
		policy:      policy,
		renderer:    renderer,
		direct:      direct,
		rateLimiter: rateLimiter,
		progress:    progress,
		webhook:     dispatcher,
		sink:        sink,
		markdown:    external.NewHTMLToMarkdownConverter(),
		sem:         semaphore.NewWeighted(int64(n)),
		retryParam:  retryParam,
	}
}

// WithMarkdownConverter overrides the default HTMLToMarkdownConverter,
// e.g. with a fake in tests.
func (p *Pool) WithMarkdownConverter(c external.MarkdownConverter) *Pool {
	p.markdown = c
	return p
}

// WithDocumentExtractor wires a DocumentExtractor so binary documents
// (PDF/DOC/DOCX) get routed to it instead of being treated as raw page
// content. No implementation ships with this service; a caller may plug
// one in, and until then binary jobs just carry their raw fetched bytes.
func (p *Pool) WithDocumentExtractor(e external.DocumentExtractor) *Pool {
	p.extractor = e
	return p
}

// WithLocalSink mirrors every emitted Document to outputDir as a
// best-effort on-disk artifact cache, useful for local debugging runs
// with no rendering/webhook consumer attached. A zero-value outputDir
// disables it.
func (p *Pool) WithLocalSink(sink storage.Sink, outputDir string, hashAlgo hashutil.HashAlgo) *Pool {
	p.localSink = sink
	p.localDir = outputDir
	p.localHash = hashAlgo
	return p
}

// Run dequeues jobs until ctx is cancelled, dispatching each one onto the
// weighted semaphore so at most ConcurrentRequests fetches are in flight
// at a time across the whole pool.
func (p *Pool) Run(ctx context.Context) {
	for {
		job, ok := p.queue.Dequeue(ctx)
		if !ok {
			p.wg.Wait()
			return
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.wg.Wait()
			return
		}

		p.wg.Add(1)
		go func(j model.Job) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			p.process(ctx, j)
		}(job)
	}
}

func (p *Pool) process(ctx context.Context, job model.Job) {
	crawl, found, err := p.store.GetCrawl(ctx, job.CrawlID)
	if err != nil || !found {
		return
	}

	if p.policy != nil {
		p.policy.IncrementLoad(crawl.TenantID)
		defer p.policy.DecrementLoad(crawl.TenantID)
	}

	fetcher := p.chooseFetcher(job, crawl.Options.PageOptions())

	host := job.URL.Hostname()
	if p.rateLimiter != nil {
		if delay := p.rateLimiter.ResolveDelay(host); delay > 0 {
			time.Sleep(delay)
		}
	}

	result := retry.Retry(p.retryParam, func() (fetchclient.Result, failure.ClassifiedError) {
		timeout := crawl.Options.PageOptions().WaitAfterLoad() + 30*time.Second
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, err := fetcher.Fetch(fetchCtx, job.URL, crawl.Options.PageOptions().WaitAfterLoad(), crawl.Options.PageOptions().Headers())
		if p.rateLimiter != nil {
			p.rateLimiter.MarkLastFetchAsNow(host)
		}
		if err != nil {
			if p.rateLimiter != nil {
				p.rateLimiter.Backoff(host)
			}
			return fetchclient.Result{}, newFetchError(err)
		}
		if res.PageStatusCode >= 500 {
			if p.rateLimiter != nil {
				p.rateLimiter.Backoff(host)
			}
			return res, newFetchError(statusAsError(res.PageStatusCode))
		}
		if p.rateLimiter != nil {
			p.rateLimiter.ResetBackoff(host)
		}
		return res, nil
	})

	doc := model.Document{
		URL:        job.URL.String(),
		StatusCode: result.Value().PageStatusCode,
		Error:      result.Value().PageError,
		FetchedAt:  time.Now(),
	}
	if result.Err() == nil {
		doc.HTML = result.Value().Content
	} else if doc.Error == "" {
		doc.Error = result.Err().Error()
	}

	isBinary := fetchclient.IsBinaryDocument(job.URL)
	if isBinary && doc.Error == "" && p.extractor != nil {
		if text, err := p.extractor.Extract(ctx, []byte(doc.HTML), ""); err == nil {
			doc.Markdown = text
			doc.HTML = ""
		} else if p.sink != nil {
			p.sink.RecordError(time.Now(), "worker", "document_extract", metadata.CauseContentInvalid, err.Error(), nil)
		}
	}

	pageOpts := crawl.Options.PageOptions()
	fetchedHTML := doc.HTML
	if !isBinary && doc.Error == "" && fetchedHTML != "" {
		fetchedHTML = crawlstate.RewriteAbsolutePaths(fetchedHTML, job.URL)
		if pageOpts.IncludeMarkdown() && p.markdown != nil {
			if md, err := p.markdown.Convert(ctx, fetchedHTML); err == nil {
				doc.Markdown = md
			} else if p.sink != nil {
				p.sink.RecordError(time.Now(), "worker", "markdown_convert", metadata.CauseContentInvalid, err.Error(), nil)
			}
		}
		doc.HTML = fetchedHTML
		if !pageOpts.IncludeHTML() {
			doc.HTML = ""
		}
	}
	if len(job.SitemapMeta) > 0 {
		doc.Metadata = job.SitemapMeta
	}

	if p.localSink != nil && p.localDir != "" && doc.Error == "" {
		if _, writeErr := p.localSink.Write(p.localDir, doc, p.localHash); writeErr != nil && p.sink != nil {
			p.sink.RecordError(time.Now(), "worker", "local_sink_write", metadata.CauseStorageFailure, writeErr.Error(), nil)
		}
	}

	if err := p.store.IncrementCrawlCompleted(ctx, job.CrawlID); err != nil && p.sink != nil {
		p.sink.RecordError(time.Now(), "worker", "increment_completed", metadata.CauseStorageFailure, err.Error(), nil)
	}
	if err := p.store.RemoveJobMember(ctx, job.CrawlID, job.ID); err != nil && p.sink != nil {
		p.sink.RecordError(time.Now(), "worker", "remove_job_member", metadata.CauseStorageFailure, err.Error(), nil)
	}

	updated, _, _ := p.store.GetCrawl(ctx, job.CrawlID)
	if p.progress != nil {
		p.progress.Report(Progress{
			CrawlID:            job.CrawlID,
			Current:            updated.Completed,
			Total:              updated.Total,
			Status:             updated.Status,
			CurrentDocumentURL: doc.URL,
			CurrentDocument:    doc,
		})
	}

	if p.webhook != nil && crawl.WebhookURL != "" {
		webhookContent := doc.Markdown
		if webhookContent == "" {
			webhookContent = fetchedHTML
		}
		p.webhook.Deliver(ctx, crawl.WebhookURL, webhook.Payload{
			CrawlID: job.CrawlID,
			JobID:   job.ID,
			URL:     doc.URL,
			Content: webhookContent,
		})
	}

	if !job.Sitemapped && doc.Error == "" {
		children, err := crawlstate.Discover(ctx, p.store, p.policy, crawl, job.URL, fetchedHTML, job.Depth, updated.Total)
		if err != nil {
			if p.sink != nil {
				p.sink.RecordError(time.Now(), "worker", "discover", metadata.CauseInvariantViolation, err.Error(), nil)
			}
			return
		}
		if len(children) > 0 {
			for _, child := range children {
				if err := p.store.AddJobMember(ctx, child.CrawlID, child.ID); err != nil && p.sink != nil {
					p.sink.RecordError(time.Now(), "worker", "add_job_member", metadata.CauseStorageFailure, err.Error(), nil)
				}
			}
			if err := p.store.IncrementCrawlTotal(ctx, job.CrawlID, len(children)); err != nil && p.sink != nil {
				p.sink.RecordError(time.Now(), "worker", "increment_total", metadata.CauseStorageFailure, err.Error(), nil)
			}
			p.queue.EnqueueBulk(children)
		}
	}
}

func (p *Pool) chooseFetcher(job model.Job, pageOpts model.PageOptions) fetchclient.Fetcher {
	if pageOpts.UseFastMode() || fetchclient.IsBinaryDocument(job.URL) {
		return p.direct
	}
	if p.renderer == nil {
		return p.direct
	}
	return p.renderer
}

func statusAsError(code int) error {
	return &statusErr{code: code}
}

type statusErr struct{ code int }

func (e *statusErr) Error() string { return "upstream status " + strconv.Itoa(e.code) }
