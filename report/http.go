package report

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// DetectionsPath is the collector endpoint records are posted to.
const DetectionsPath = "/api/detections"

// ErrUnexpectedStatus is returned when the collector answers with anything but 200.
var ErrUnexpectedStatus = errors.New("unexpected collector status")

// HTTPSink posts records to the collector backend. It never retries; a failed
// report is left for the next cycle. Logging the outcome is the caller's job.
type HTTPSink struct {
	client *resty.Client
}

// NewHTTPSink creates a collector client.
//
// Arguments:
//   - baseURL: The collector base URL, e.g. http://localhost:8080.
//   - timeout: The per-request timeout.
//
// Returns:
//   - *HTTPSink: The sink.
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPSink{client: client}
}

// Send posts the record's payload.
func (s *HTTPSink) Send(ctx context.Context, rec Record) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(rec.Payload()).
		Post(DetectionsPath)
	if err != nil {
		return errors.Wrapf(err, "error posting detections for %s", rec.Source)
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.Wrapf(ErrUnexpectedStatus, "%s: status %d: %s", rec.Source, resp.StatusCode(), truncate(resp.String(), 256))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
