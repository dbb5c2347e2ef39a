package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/LJTian/Topline/internal/classify"
	"github.com/LJTian/Topline/internal/registry"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
<title>Test</title>
<item>
  <title>Election results announced</title>
  <link>https://news.example.com/a1</link>
  <description><![CDATA[<p>The <b>vote</b>   count</p>]]></description>
  <pubDate>Fri, 10 May 2024 10:00:00 +0000</pubDate>
  <media:content url="https://img.example.com/a1.jpg" medium="image"/>
</item>
<item>
  <title>Old item</title>
  <link>https://news.example.com/old</link>
  <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
</item>
<item>
  <title>Undated</title>
  <link>https://news.example.com/a3</link>
  <enclosure url="https://img.example.com/a3.jpg" type="image/jpeg" length="1"/>
</item>
<item>
  <title>Market rally</title>
  <link>https://news.example.com/a4</link>
  <description><![CDATA[Shares up <img src="https://img.example.com/a4.jpg">]]></description>
  <pubDate>Fri, 10 May 2024 11:00:00 +0000</pubDate>
</item>
</channel>
</rss>`

type fakePages struct {
	pages map[string]string
	calls atomic.Int32
}

func (f *fakePages) Get(_ context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	html, ok := f.pages[url]
	if !ok {
		return nil, &FetchError{Source: url, Kind: KindPermanent, Err: errors.New("not found")}
	}
	return []byte(html), nil
}

func newTestFeedFetcher(url string, pages PageGetter) *FeedFetcher {
	log, _ := test.NewNullLogger()
	return NewFeedFetcher("feed:test", FeedConfig{
		Source: registry.Source{
			Key:         "test",
			DisplayName: "Test News",
			Selectors:   registry.Selectors{Content: ".art_body", Author: ".author"},
		},
		URL:           url,
		MaxEntries:    30,
		EnrichCount:   2,
		RecencyWindow: 72 * time.Hour,
		HTTP:          HTTPOptions{Timeout: time.Second, Retry: DefaultRetry(3, time.Millisecond)},
		Pages:         pages,
		Log:           log,
		Now:           func() time.Time { return testNow },
	})
}

func TestFeedFetcherSortsFiltersAndEnriches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeed)
	}))
	defer srv.Close()

	pages := &fakePages{pages: map[string]string{
		"https://news.example.com/a4": `<html><head><meta property="og:image" content="https://img.example.com/og4.jpg"></head>
<body><div class="art_body">Full market story about the stock exchange</div><span class="author">Noa</span></body></html>`,
	}}

	items, err := newTestFeedFetcher(srv.URL, pages).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items (old entry filtered), got %d", len(items))
	}

	wantOrder := []string{
		"https://news.example.com/a4",
		"https://news.example.com/a1",
		"https://news.example.com/a3",
	}
	for i, u := range wantOrder {
		if items[i].URL != u {
			t.Fatalf("item %d url = %q, want %q", i, items[i].URL, u)
		}
	}

	a4, a1, a3 := items[0], items[1], items[2]
	if a4.Content != "Full market story about the stock exchange" {
		t.Fatalf("enriched content not applied: %q", a4.Content)
	}
	if a4.ImageURL != "https://img.example.com/og4.jpg" || a4.Author != "Noa" {
		t.Fatalf("enriched image/author not applied: %+v", a4)
	}
	if a4.Category != classify.Business {
		t.Fatalf("a4 category = %q, want business", a4.Category)
	}

	if a1.Content != "The vote count" {
		t.Fatalf("summary should be stripped and collapsed: %q", a1.Content)
	}
	if a1.ImageURL != "https://img.example.com/a1.jpg" {
		t.Fatalf("expected media:content image, got %q", a1.ImageURL)
	}
	if a1.Category != classify.Politics {
		t.Fatalf("a1 category = %q, want politics", a1.Category)
	}
	if a1.Source != "Test News" {
		t.Fatalf("source should be display name, got %q", a1.Source)
	}

	if a3.PublishedAt != nil {
		t.Fatalf("undated entry should have nil PublishedAt")
	}
	if a3.ImageURL != "https://img.example.com/a3.jpg" {
		t.Fatalf("expected enclosure image, got %q", a3.ImageURL)
	}
	if got := pages.calls.Load(); got != 2 {
		t.Fatalf("expected 2 page fetches, got %d", got)
	}
}

func TestFeedFetcherRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, testFeed)
	}))
	defer srv.Close()

	items, err := newTestFeedFetcher(srv.URL, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 3 || hits.Load() != 3 {
		t.Fatalf("expected success on third attempt, items=%d hits=%d", len(items), hits.Load())
	}
}

func TestFeedFetcherNotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	items, err := newTestFeedFetcher(srv.URL, nil).Fetch(context.Background())
	if err == nil || len(items) != 0 {
		t.Fatalf("expected error and no items, got %d items err=%v", len(items), err)
	}
	if KindOf(err) != KindPermanent {
		t.Fatalf("kind = %q, want permanent", KindOf(err))
	}
	if hits.Load() != 1 {
		t.Fatalf("404 should not be retried, hits=%d", hits.Load())
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
}

func TestFeedFetcherTooManyRequestsIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	items, err := newTestFeedFetcher(srv.URL, nil).Fetch(context.Background())
	if err == nil || len(items) != 0 {
		t.Fatalf("expected error and no items, got %d items err=%v", len(items), err)
	}
	if KindOf(err) != KindPermanent {
		t.Fatalf("kind = %q, want permanent", KindOf(err))
	}
	if hits.Load() != 1 {
		t.Fatalf("429 should not be retried, hits=%d", hits.Load())
	}
}

func TestFeedFetcherIgnoresTopicHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><title>Weather is mild today</title><link>https://news.example.com/w</link>
<description>Clouds</description><pubDate>Fri, 10 May 2024 10:00:00 +0000</pubDate></item>
</channel></rss>`)
	}))
	defer srv.Close()

	f := newTestFeedFetcher(srv.URL, nil)
	f.cfg.Source.TopicHint = "business"
	items, err := f.Fetch(context.Background())
	if err != nil || len(items) != 1 {
		t.Fatalf("Fetch = %d items, err=%v", len(items), err)
	}
	if items[0].Category != classify.General {
		t.Fatalf("category = %q, want general", items[0].Category)
	}
}

func TestFeedFetcherParseErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer srv.Close()

	_, err := newTestFeedFetcher(srv.URL, nil).Fetch(context.Background())
	if KindOf(err) != KindPermanent {
		t.Fatalf("expected permanent parse error, got %v", err)
	}
}

func TestFeedFetcherDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestFeedFetcher(srv.URL, nil).Fetch(ctx)
	if KindOf(err) != KindDeadline {
		t.Fatalf("expected deadline kind, got %v", err)
	}
}

func TestFeedImageFallbacks(t *testing.T) {
	feed := `<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/"><channel>
<item><title>t1</title><link>https://x/1</link><media:thumbnail url="https://img/thumb.jpg"/></item>
<item><title>t2</title><link>https://x/2</link><enclosure url="https://img/audio.mp3" type="audio/mpeg"/><description><![CDATA[<img src="https://img/inline.jpg">]]></description></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	f := newTestFeedFetcher(srv.URL, nil)
	f.cfg.RecencyWindow = 0
	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ImageURL != "https://img/thumb.jpg" {
		t.Fatalf("expected thumbnail, got %q", items[0].ImageURL)
	}
	if items[1].ImageURL != "https://img/inline.jpg" {
		t.Fatalf("non-image enclosure should be skipped, got %q", items[1].ImageURL)
	}
}

func TestSelectEntriesCapsBeforeWindow(t *testing.T) {
	newer := testNow.Add(-time.Hour)
	older := testNow.Add(-100 * time.Hour)
	in := []*gofeed.Item{
		{Title: "old", PublishedParsed: &older},
		{Title: "new", PublishedParsed: &newer},
		{Title: "undated"},
	}
	out := selectEntries(in, 2, 72*time.Hour, testNow)
	if len(out) != 1 || out[0].Title != "new" {
		t.Fatalf("expected only the newest entry after cap and window, got %d", len(out))
	}
}
