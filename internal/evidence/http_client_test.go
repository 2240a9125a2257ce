package evidence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient(ClientConfig{})
	require.Error(t, err)
}

func TestSearchSendsQueryParams(t *testing.T) {
	var got url.Values
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		got = r.URL.Query()
		json.NewEncoder(w).Encode(searchResponse{Results: []Snippet{
			{SessionPath: "/sessions/a.md", Text: "migration succeeded", Score: 0.9},
		}})
	})

	snippets, err := c.Search(context.Background(), Query{
		Text:      "migrations sequentially",
		Limit:     7,
		Days:      30,
		Agent:     "cli",
		Workspace: "repo",
	})
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "migration succeeded", snippets[0].Text)

	assert.Equal(t, "migrations sequentially", got.Get("q"))
	assert.Equal(t, "7", got.Get("limit"))
	assert.Equal(t, "30", got.Get("days"))
	assert.Equal(t, "cli", got.Get("agent"))
	assert.Equal(t, "repo", got.Get("workspace"))
}

func TestSearchDefaultsLimitAndOmitsEmptyFilters(t *testing.T) {
	var got url.Values
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode(searchResponse{Results: []Snippet{{Text: "x"}}})
	})

	_, err := c.Search(context.Background(), Query{Text: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "20", got.Get("limit"))
	assert.False(t, got.Has("days"))
	assert.False(t, got.Has("agent"))
	assert.False(t, got.Has("workspace"))
}

func TestSearchIndexMissing(t *testing.T) {
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{Error: "no index", Code: "index_missing"})
	})

	_, err := c.Search(context.Background(), Query{Text: "anything"})
	require.ErrorIs(t, err, ErrIndexMissing)
}

func TestSearchPlainNotFound(t *testing.T) {
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Search(context.Background(), Query{Text: "anything"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSearchEmptyResultsIsNotFound(t *testing.T) {
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Results: nil})
	})

	_, err := c.Search(context.Background(), Query{Text: "anything"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSearchGatewayTimeout(t *testing.T) {
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	})

	_, err := c.Search(context.Background(), Query{Text: "anything"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestSearchContextDeadlineMapsToTimeout(t *testing.T) {
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Search(ctx, Query{Text: "anything"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestSearchServerErrorSurfacesStatus(t *testing.T) {
	c := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Search(context.Background(), Query{Text: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search error (500)")
}
