package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateTextKeepsRunesIntact(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 100))
	assert.Equal(t, "ab", truncateText("abcdef", 2))
	assert.Equal(t, "日", truncateText("日本語", 4))
}

func TestParseResultDate(t *testing.T) {
	got := parseResultDate("Mar 14, 2024")
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, time.March, got.Month())

	assert.Nil(t, parseResultDate(""))
	assert.Nil(t, parseResultDate("3 days ago"))
}

func TestSearchWithSerpAPIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("key", time.Second)
	// Point the client at the stub by rewriting the request host.
	c.httpClient.Transport = rewriteHost(srv)

	_, err := c.Search(context.Background(), "query", 5)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestSearchWithSerpAPIParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "" {
			w.Write([]byte(`{"organic_results":[{"title":"T","link":"https://unreachable.invalid/x","snippet":"S","date":"Mar 14, 2024"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("key", time.Second)
	c.httpClient.Transport = rewriteHost(srv)

	results, err := c.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "T", results[0].Title)
	assert.NotNil(t, results[0].PublishedAt)
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("key", time.Second)
	_, err := c.Search(ctx, "query", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

// rewriteHost redirects every outbound request to the test server.
func rewriteHost(srv *httptest.Server) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		target := srv.URL + "?" + req.URL.RawQuery
		redirected, err := http.NewRequestWithContext(req.Context(), req.Method, target, nil)
		if err != nil {
			return nil, err
		}
		return http.DefaultTransport.RoundTrip(redirected)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
