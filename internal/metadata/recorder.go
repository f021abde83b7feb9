package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
)

// Recorder is the production MetadataSink, backed by arbor's structured
// logger. Every record carries the crawl identifier it was given at
// construction so log lines can be correlated per crawl without a global
// logging context.
type Recorder struct {
	logger  arbor.ILogger
	crawlID string
}

func NewRecorder(logger arbor.ILogger, crawlID string) *Recorder {
	return &Recorder{logger: logger, crawlID: crawlID}
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int, crawlDepth int) {
	r.logger.Info().
		Str("crawl_id", r.crawlID).
		Str("url", fetchURL).
		Str("http_status", strconv.Itoa(httpStatus)).
		Str("duration_ms", strconv.FormatInt(duration.Milliseconds(), 10)).
		Str("retry_count", strconv.Itoa(retryCount)).
		Str("depth", strconv.Itoa(crawlDepth)).
		Msg("page fetched")
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute) {
	event := r.logger.Warn().
		Str("crawl_id", r.crawlID).
		Str("package", packageName).
		Str("action", action).
		Str("cause", causeLabel(cause)).
		Str("observed_at", observedAt.Format(time.RFC3339))
	for _, a := range attrs {
		event = event.Str(string(a.Key), a.Value)
	}
	event.Msg(details)
}

func (r *Recorder) RecordCrawlCompleted(crawlID string, stats CrawlStats) {
	r.logger.Info().
		Str("crawl_id", crawlID).
		Str("total_pages", strconv.Itoa(stats.TotalPages)).
		Str("total_errors", strconv.Itoa(stats.TotalErrors)).
		Str("duration_ms", strconv.FormatInt(stats.DurationMs, 10)).
		Msg("crawl completed")
}

func causeLabel(c ErrorCause) string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}
