package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/LJTian/Topline/internal/classify"
)

func articlesPage(start, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, map[string]any{
			"source":      map[string]any{"id": nil, "name": "Wire"},
			"title":       fmt.Sprintf("Headline %d", i),
			"description": "government minister speaks",
			"url":         fmt.Sprintf("https://wire.example.com/%d", i),
			"urlToImage":  "https://wire.example.com/img.jpg",
			"publishedAt": "2024-05-10T09:00:00Z",
		})
	}
	return out
}

func newTestHeadlineFetcher(base string, pageSize, maxPages int) *HeadlineFetcher {
	log, _ := test.NewNullLogger()
	return NewHeadlineFetcher("headlines", HeadlineConfig{
		BaseURL:       base,
		APIKey:        "k",
		Country:       "il",
		PageSize:      pageSize,
		MaxPages:      maxPages,
		RecencyWindow: 72 * time.Hour,
		HTTP:          HTTPOptions{Timeout: time.Second, Retry: DefaultRetry(2, time.Millisecond)},
		Log:           log,
		Now:           func() time.Time { return testNow },
	})
}

func TestHeadlineFetcherPaginatesUntilShortPage(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pages.Add(1)
		if q.Get("apiKey") != "k" || q.Get("country") != "il" || q.Get("pageSize") != "2" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("from") != "2024-05-07T12:00:00Z" {
			t.Errorf("unexpected from: %q", q.Get("from"))
		}
		page, _ := strconv.Atoi(q.Get("page"))
		n := 2
		if page == 2 {
			n = 1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "articles": articlesPage(page*10, n)})
	}))
	defer srv.Close()

	items, err := newTestHeadlineFetcher(srv.URL, 2, 5).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if pages.Load() != 2 {
		t.Fatalf("expected to stop after the short page, requested %d pages", pages.Load())
	}
	it := items[0]
	if it.Source != "Wire" || it.Category != classify.Politics || it.PublishedAt == nil {
		t.Fatalf("unexpected item: %+v", it)
	}
}

func TestHeadlineFetcherStopsAtMaxPages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "articles": articlesPage(int(hits.Load())*10, 2)})
	}))
	defer srv.Close()

	items, err := newTestHeadlineFetcher(srv.URL, 2, 3).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 6 || hits.Load() != 3 {
		t.Fatalf("expected 6 items over 3 pages, got %d items %d hits", len(items), hits.Load())
	}
}

func TestHeadlineFetcherPageFailureReturnsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "articles": articlesPage(0, 2)})
	}))
	defer srv.Close()

	items, err := newTestHeadlineFetcher(srv.URL, 2, 3).Fetch(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list on failure, got %d", len(items))
	}
	if KindOf(err) != KindPermanent {
		t.Fatalf("401 should be permanent, got %q", KindOf(err))
	}
}

func TestHeadlineFetcherAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "code": "apiKeyInvalid", "message": "bad key"})
	}))
	defer srv.Close()

	_, err := newTestHeadlineFetcher(srv.URL, 2, 1).Fetch(context.Background())
	if KindOf(err) != KindPermanent {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestHeadlineFetcherOmitsFromWithoutWindow(t *testing.T) {
	h := newTestHeadlineFetcher("https://api.example.com/top", 10, 1)
	h.cfg.RecencyWindow = 0
	u := h.pageURL(1)
	if want := "https://api.example.com/top?apiKey=k&country=il&page=1&pageSize=10"; u != want {
		t.Fatalf("pageURL = %q, want %q", u, want)
	}
}
