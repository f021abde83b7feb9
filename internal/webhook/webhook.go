// Package webhook delivers one POST per emitted document to a crawl's
// configured webhook URL(s), at-least-once, with bounded retry/backoff.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rohmanhakim/crawlsvc/internal/metadata"
	"github.com/rohmanhakim/crawlsvc/pkg/failure"
	"github.com/rohmanhakim/crawlsvc/pkg/retry"
	"github.com/rohmanhakim/crawlsvc/pkg/timeutil"
)

// Payload is the body delivered to a webhook.
type Payload struct {
	CrawlID         string `json:"crawlId"`
	JobID           string `json:"jobId"`
	URL             string `json:"url"`
	Content         string `json:"content"`
	HTML            string `json:"html,omitempty"`
	Markdown        string `json:"markdown,omitempty"`
	WebhookMetadata any    `json:"webhookMetadata,omitempty"`
}

type Dispatcher struct {
	httpClient *http.Client
	retryParam retry.RetryParam
	sink       metadata.MetadataSink
}

func NewDispatcher(httpClient *http.Client, sink metadata.MetadataSink) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Dispatcher{
		httpClient: httpClient,
		sink:       sink,
		retryParam: retry.NewRetryParam(
			500*time.Millisecond,
			200*time.Millisecond,
			time.Now().UnixNano(),
			3,
			timeutil.NewBackoffParam(time.Second, 2.0, 20*time.Second),
		),
	}
}

// Deliver posts payload to target, retrying transient failures. The
// returned error is only the terminal failure after retries exhaust — the
// caller is expected to log it and move on, never to block crawl progress
// on webhook delivery.
func (d *Dispatcher) Deliver(ctx context.Context, target string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	result := retry.Retry(d.retryParam, func() (struct{}, failure.ClassifiedError) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, newDeliveryError(err, false)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return struct{}{}, newDeliveryError(err, true)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return struct{}{}, newDeliveryError(nil, true)
		}
		if resp.StatusCode >= 400 {
			return struct{}{}, newDeliveryError(nil, false)
		}
		return struct{}{}, nil
	})

	if result.Err() != nil && d.sink != nil {
		d.sink.RecordError(time.Now(), "webhook", "deliver", metadata.CauseNetworkFailure, result.Err().Error(), []metadata.Attribute{
			metadata.NewAttr(metadata.AttrCrawlID, payload.CrawlID),
			metadata.NewAttr(metadata.AttrJobID, payload.JobID),
		})
	}
	if result.Err() == nil {
		return nil
	}
	return result.Err()
}
