package worker

import (
	"fmt"

	"github.com/rohmanhakim/crawlsvc/pkg/failure"
)

// fetchError wraps a transport error returned by a fetcher, or a 5xx
// status, and is always retryable. A 4xx or other non-5xx status is not
// wrapped: it is not retried, and the caller still emits a Document with
// pageError set so the crawl can make progress. A fetcher error caused by
// a malformed response is not told apart from a network error and is
// retried like one.
type fetchError struct {
	err       error
	retryable bool
}

func newFetchError(err error) *fetchError {
	return &fetchError{err: err, retryable: true}
}

func (e *fetchError) Error() string { return fmt.Sprintf("fetch failed: %v", e.err) }

func (e *fetchError) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *fetchError) IsRetryable() bool { return e.retryable }
