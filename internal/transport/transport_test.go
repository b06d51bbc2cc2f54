package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{ token string }

func (s *staticTokens) Token() string { return s.token }

// failingRoundTripper fails the first n attempts with a connection-style error
// and then delegates to the real transport.
type failingRoundTripper struct {
	failures int32
	calls    int32
	next     http.RoundTripper
}

func (f *failingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	call := atomic.AddInt32(&f.calls, 1)
	if call <= atomic.LoadInt32(&f.failures) {
		return nil, errors.New("connection reset by peer")
	}
	return f.next.RoundTrip(req)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	if tokens == nil {
		tokens = &staticTokens{}
	}
	return New(srv.URL, tokens, opts...), srv
}

func TestDoRetriesTransportFailures(t *testing.T) {
	var hits int32
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"ok":true}`))
	}, nil)

	rt := &failingRoundTripper{failures: 2, next: http.DefaultTransport}
	client.http = &http.Client{Transport: rt}
	client.retryDelay = time.Millisecond
	_ = srv

	resp, err := client.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.EqualValues(t, 3, atomic.LoadInt32(&rt.calls), "two failures plus the successful attempt")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestDoGivesUpAfterRetryBound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	rt := &failingRoundTripper{failures: 100, next: http.DefaultTransport}
	client.http = &http.Client{Transport: rt}
	client.retryDelay = time.Millisecond

	_, err := client.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.Error(t, err)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.EqualValues(t, 3, atomic.LoadInt32(&rt.calls), "initial attempt plus two retries")
}

func TestWithoutRetryMakesSingleAttempt(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	rt := &failingRoundTripper{failures: 100, next: http.DefaultTransport}
	client.http = &http.Client{Transport: rt}

	_, err := client.Do(context.Background(), http.MethodPost, "/auth/refresh", nil, WithoutRetry())
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&rt.calls))
}

func TestDoDoesNotRetryHTTPErrors(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	resp, err := client.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err, "HTTP-level failures are the caller's problem, not the transport's")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestDoTimesOutWithoutRetry(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(200 * time.Millisecond)
	}, nil, WithTimeout(20*time.Millisecond))
	client.retryDelay = time.Millisecond

	_, err := client.Do(context.Background(), http.MethodPut, "/documents/x", map[string]string{"title": "t"})
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "a timed-out write must not be repeated")
}

func TestDoStopsWhenCallerCancels(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	rt := &failingRoundTripper{failures: 100, next: http.DefaultTransport}
	client.http = &http.Client{Transport: rt}
	client.retryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Do(ctx, http.MethodGet, "/ping", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, atomic.LoadInt32(&rt.calls), int32(2))
}

func TestDoAttachesHeadersAndReadsTokenAtCallTime(t *testing.T) {
	var gotAuth, gotContentType string
	tokens := &staticTokens{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
	}, tokens)

	// Token set after the client was constructed: it must still be picked up,
	// because the transport reads it per request.
	tokens.token = "fresh-token"
	_, err := client.Do(context.Background(), http.MethodPost, "/documents", map[string]string{"title": "t"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh-token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestDoOmitsAuthorizationWithoutToken(t *testing.T) {
	var sawAuth bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
	}, nil)

	_, err := client.Do(context.Background(), http.MethodGet, "/documents", nil)
	require.NoError(t, err)
	assert.False(t, sawAuth)
}
