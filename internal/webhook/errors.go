package webhook

import (
	"fmt"

	"github.com/rohmanhakim/crawlsvc/pkg/failure"
)

type deliveryError struct {
	err       error
	retryable bool
}

func newDeliveryError(err error, retryable bool) *deliveryError {
	return &deliveryError{err: err, retryable: retryable}
}

func (e *deliveryError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("webhook delivery failed: %v", e.err)
	}
	return "webhook delivery failed: non-2xx response"
}

func (e *deliveryError) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *deliveryError) IsRetryable() bool { return e.retryable }
