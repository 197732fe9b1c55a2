package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "fintech news", r.URL.Query().Get("q"))
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		assert.Equal(t, "10", r.URL.Query().Get("num"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic_results":[
			{"position":1,"title":"Fintech rises","link":"https://example.com/a","snippet":"..."},
			{"position":2,"title":"Banks respond","link":"https://example.com/b","snippet":"..."}
		]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Search(context.Background(), SearchRequest{Query: "fintech news"})

	require.NoError(t, err)
	require.Len(t, got.OrganicResults, 2)
	assert.Equal(t, "https://example.com/a", got.OrganicResults[0].Link)
}

func TestSearch_EmptyQuery(t *testing.T) {
	t.Parallel()

	client := NewClient("test-key")
	_, err := client.Search(context.Background(), SearchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query cannot be empty")
}

func TestSearch_MissingKey(t *testing.T) {
	t.Parallel()

	client := NewClient("")
	_, err := client.Search(context.Background(), SearchRequest{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key not configured")
}

func TestSearch_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), SearchRequest{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}
