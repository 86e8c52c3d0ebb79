package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventrelay/eventrelay/pkg/clients"
	"github.com/eventrelay/eventrelay/pkg/errors"
)

func fastRetry() *clients.RetryPolicy {
	return &clients.RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
	}
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	httpClient := clients.NewHTTPClient(clients.DefaultHTTPConfig(), zap.NewNop())
	t.Cleanup(func() { _ = httpClient.Close() })
	return New(Config{
		Endpoint: "user_events_export",
		RowLimit: 5000,
		Retry:    fastRetry(),
		BaseURL:  baseURL,
	}, httpClient, zap.NewNop())
}

func TestFetchSendsQueryParameters(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"last_ts":   r.URL.Query().Get("last_ts"),
			"row_limit": r.URL.Query().Get("row_limit"),
			"token":     r.URL.Query().Get("token"),
		}
		_, _ = w.Write([]byte(`{"data":[{"user_id":"u1","event":"signup","timestamp":100}]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	rows, err := c.Fetch(context.Background(), "1700000000", "tb-token")
	require.NoError(t, err)

	assert.Equal(t, "/v0/pipes/user_events_export.json", gotPath)
	assert.Equal(t, "1700000000", gotQuery["last_ts"])
	assert.Equal(t, "5000", gotQuery["row_limit"])
	assert.Equal(t, "tb-token", gotQuery["token"])

	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0]["user_id"])
}

func TestFetchEmptyDataIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	rows, err := c.Fetch(context.Background(), "0", "tok")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFetchMissingDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":[]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), "0", "tok")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
}

func TestFetchInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), "0", "tok")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
}

func TestFetchCarriesEndpointErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"token has no read scope"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), "0", "tok")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
	assert.Contains(t, err.Error(), "token has no read scope")
	assert.Equal(t, http.StatusForbidden, errors.Detail(err, "status"))
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"user_id":"u1","event":"e","timestamp":1}]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	rows, err := c.Fetch(context.Background(), "0", "tok")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := testClient(t, srv.URL)
	c.retry = &clients.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond}

	_, err := c.Fetch(context.Background(), "0", "tok")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceUnreachable))
}
