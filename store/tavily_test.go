package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearch(t *testing.T) {
	var gotPath string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{
			"results": [
				{"title": "Quantum leap", "url": "https://news.example.com/quantum", "content": "Researchers announced a new qubit record.", "score": 0.91, "published_date": "2026-08-20"},
				{"title": "Background", "url": "https://en.wikipedia.org/wiki/Qubit", "content": "A qubit is a unit of quantum information.", "score": 0.64, "published_date": "2026-08-01T12:00:00Z"}
			]
		}`)
	}))
	defer srv.Close()

	s, err := NewTavilySearcher(TavilyConfig{BaseURL: srv.URL, APIKey: "tvly-test"})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "latest quantum computing news", 5)
	require.NoError(t, err)

	assert.Equal(t, "/search", gotPath)
	assert.Equal(t, "tvly-test", gotReq["api_key"])
	assert.Equal(t, "latest quantum computing news", gotReq["query"])
	assert.Equal(t, float64(5), gotReq["max_results"])
	assert.Equal(t, "basic", gotReq["search_depth"])

	require.Len(t, results, 2)
	assert.Equal(t, "Quantum leap", results[0].Title)
	assert.Equal(t, "https://news.example.com/quantum", results[0].URL)
	assert.InDelta(t, 0.91, results[0].Score, 1e-9)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), results[0].PublishedAt)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), results[1].PublishedAt)
}

func TestTavilySearchCapsMaxResults(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer srv.Close()

	s, err := NewTavilySearcher(TavilyConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "q", 100)
	require.NoError(t, err)
	assert.Equal(t, float64(20), gotReq["max_results"])
}

func TestTavilySearchZeroResultsRequested(t *testing.T) {
	s, err := NewTavilySearcher(TavilyConfig{BaseURL: "http://localhost", APIKey: "k"})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTavilySearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, err := NewTavilySearcher(TavilyConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestTavilyRequiresAPIKey(t *testing.T) {
	_, err := NewTavilySearcher(TavilyConfig{})
	require.Error(t, err)
}

func TestParsePublished(t *testing.T) {
	assert.True(t, parsePublished("").IsZero())
	assert.True(t, parsePublished("not a date").IsZero())
	assert.False(t, parsePublished("2026-08-20").IsZero())
	assert.False(t, parsePublished("2026-08-20T10:30:00Z").IsZero())
}
