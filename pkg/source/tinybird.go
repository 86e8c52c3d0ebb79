// Package source reads newly-arrived rows from the analytics query
// endpoint. The endpoint is a paged read-only provider: one bounded read
// per run, rows strictly newer than the watermark, ordered ascending by
// timestamp. The ordering is the endpoint's documented contract; watermark
// advancement depends on it.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/eventrelay/eventrelay/pkg/clients"
	"github.com/eventrelay/eventrelay/pkg/errors"
	"github.com/eventrelay/eventrelay/pkg/events"
	"github.com/eventrelay/eventrelay/pkg/json"
)

// Config configures the source client.
type Config struct {
	// APIRoot is the query API host, e.g. "api.tinybird.co"
	APIRoot string
	// Endpoint is the published pipe to read
	Endpoint string
	// RowLimit caps a single read
	RowLimit int
	// Retry overrides the transport retry policy; nil uses the default
	Retry *clients.RetryPolicy

	// BaseURL overrides the https://<APIRoot> prefix; used by tests
	BaseURL string
}

// Client fetches rows from the query endpoint.
type Client struct {
	cfg    Config
	http   *clients.HTTPClient
	retry  *clients.RetryPolicy
	logger *zap.Logger
}

// envelope is the query API's response shape. Data is a pointer so a
// response without the field is distinguishable from an empty result.
type envelope struct {
	Data  *[]events.RawRow `json:"data"`
	Error string           `json:"error"`
}

// New creates a source client.
func New(cfg Config, httpClient *clients.HTTPClient, logger *zap.Logger) *Client {
	retry := cfg.Retry
	if retry == nil {
		retry = clients.TransportRetryPolicy()
	}

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		retry:  retry,
		logger: logger.With(zap.String("component", "source")),
	}
}

// Fetch issues one bounded read: rows with timestamp strictly greater than
// lastTS, capped at the configured row limit. An empty result is a valid
// terminal state, not an error. Transport failures are retried by the
// shared policy and surface as source_unreachable once exhausted; malformed
// or non-success responses surface as source_protocol.
func (c *Client) Fetch(ctx context.Context, lastTS, token string) ([]events.RawRow, error) {
	endpoint := c.endpointURL()

	params := url.Values{}
	params.Set("last_ts", lastTS)
	params.Set("row_limit", strconv.Itoa(c.cfg.RowLimit))
	params.Set("token", token)

	c.logger.Info("fetching rows",
		zap.String("endpoint", endpoint),
		zap.String("last_ts", lastTS),
		zap.Int("row_limit", c.cfg.RowLimit))

	var resp *http.Response
	err := c.retry.ExecuteWithCondition(ctx, func() error {
		r, err := c.http.Get(ctx, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "source request failed")
		}
		if clients.RetryableStatus(r.StatusCode) {
			drain(r)
			return clients.StatusError(r.StatusCode)
		}
		resp = r
		return nil
	}, errors.IsRetryable)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnreachable, "source endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnreachable, "failed to read source response")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceProtocol, "source response is not valid JSON")
	}

	if resp.StatusCode != http.StatusOK {
		msg := env.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, errors.Newf(errors.ErrorTypeSourceProtocol,
			"source returned status %d: %s", resp.StatusCode, msg).
			WithDetail("status", resp.StatusCode)
	}

	if env.Data == nil {
		return nil, errors.New(errors.ErrorTypeSourceProtocol, "source response is missing the data envelope")
	}

	rows := *env.Data
	c.logger.Info("received rows", zap.Int("count", len(rows)))
	return rows, nil
}

// endpointURL builds the pipe URL; the token travels as a query parameter
// and is never logged.
func (c *Client) endpointURL() string {
	if c.cfg.BaseURL != "" {
		return fmt.Sprintf("%s/v0/pipes/%s.json", c.cfg.BaseURL, c.cfg.Endpoint)
	}
	return fmt.Sprintf("https://%s/v0/pipes/%s.json", c.cfg.APIRoot, c.cfg.Endpoint)
}

// drain discards and closes a response body so the connection can be reused.
func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4096))
	_ = r.Body.Close()
}
