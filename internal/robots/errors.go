package robots

import (
	"fmt"

	"github.com/rohmanhakim/crawlsvc/internal/metadata"
	"github.com/rohmanhakim/crawlsvc/pkg/failure"
)

// RobotsError classifies a robots.txt fetch/parse failure for retry
// control flow. Cause is carried separately for metadata.MetadataSink —
// it must never be inspected to decide retryability.
type RobotsError struct {
	Op       string
	Host     string
	Status   int
	Cause    metadata.ErrorCause
	severity failure.Severity
	err      error
}

func (e *RobotsError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("robots: %s %s: %v", e.Op, e.Host, e.err)
	}
	return fmt.Sprintf("robots: %s %s: status %d", e.Op, e.Host, e.Status)
}

func (e *RobotsError) Unwrap() error { return e.err }

func (e *RobotsError) Severity() failure.Severity { return e.severity }

// IsRetryable lets pkg/retry.Retry duck-type this into its retryable path.
func (e *RobotsError) IsRetryable() bool {
	return e.severity == failure.SeverityRecoverable
}

func newNetworkError(op, host string, err error) *RobotsError {
	return &RobotsError{Op: op, Host: host, Cause: metadata.CauseNetworkFailure, severity: failure.SeverityRecoverable, err: err}
}

func newServerError(op, host string, status int) *RobotsError {
	return &RobotsError{Op: op, Host: host, Status: status, Cause: metadata.CauseNetworkFailure, severity: failure.SeverityRecoverable}
}

func newRateLimitedError(op, host string) *RobotsError {
	return &RobotsError{Op: op, Host: host, Status: 429, Cause: metadata.CausePolicyDisallow, severity: failure.SeverityRecoverable}
}

func newParseError(op, host string, err error) *RobotsError {
	return &RobotsError{Op: op, Host: host, Cause: metadata.CauseContentInvalid, severity: failure.SeverityFatal, err: err}
}
