// Package sink delivers chunks of tracking events to the downstream
// ingestion API.
package sink

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/eventrelay/eventrelay/pkg/clients"
	"github.com/eventrelay/eventrelay/pkg/errors"
	"github.com/eventrelay/eventrelay/pkg/events"
	"github.com/eventrelay/eventrelay/pkg/json"
)

// Config configures the delivery client.
type Config struct {
	// Endpoint is the full batch ingestion URL
	Endpoint string
	// Retry overrides the transport retry policy; nil uses the default
	Retry *clients.RetryPolicy
}

// Client posts event chunks to the ingestion endpoint.
type Client struct {
	cfg    Config
	http   *clients.HTTPClient
	retry  *clients.RetryPolicy
	logger *zap.Logger
}

// payload is the sink's wire envelope.
type payload struct {
	Batch []events.TrackingEvent `json:"batch"`
}

// New creates a delivery client.
func New(cfg Config, httpClient *clients.HTTPClient, logger *zap.Logger) *Client {
	retry := cfg.Retry
	if retry == nil {
		retry = clients.TransportRetryPolicy()
	}

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		retry:  retry,
		logger: logger.With(zap.String("component", "sink")),
	}
}

// Deliver serializes one chunk and posts it, authenticating with the write
// key as Basic auth username and an empty password. Transport failures and
// transient statuses (429/5xx) are retried with exponential backoff; once
// the retry budget is exhausted the chunk fails with delivery_unavailable.
// Any other non-200 response is terminal for the run and fails with
// delivery_rejected carrying the status and body. A nil return means the
// sink accepted the chunk; the caller must treat that as final.
func (c *Client) Deliver(ctx context.Context, chunk []events.TrackingEvent, writeKey string) error {
	body, err := json.Marshal(payload{Batch: chunk})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to serialize chunk")
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(writeKey+":")),
	}

	c.logger.Debug("delivering chunk",
		zap.Int("events", len(chunk)),
		zap.Int("bytes", len(body)))

	err = c.retry.ExecuteWithCondition(ctx, func() error {
		resp, err := c.http.Post(ctx, c.cfg.Endpoint, bytes.NewReader(body), headers)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "delivery request failed")
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

		if resp.StatusCode == http.StatusOK {
			c.logger.Debug("sink response", zap.ByteString("body", respBody))
			return nil
		}

		if clients.RetryableStatus(resp.StatusCode) {
			return clients.StatusError(resp.StatusCode)
		}

		return errors.Newf(errors.ErrorTypeDeliveryRejected,
			"sink rejected chunk: status %d: %s", resp.StatusCode, string(respBody)).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(respBody))
	}, errors.IsRetryable)

	if err == nil {
		return nil
	}
	if errors.IsType(err, errors.ErrorTypeDeliveryRejected) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeDeliveryUnavailable, "delivery retries exhausted")
}
