package processor

import (
	"testing"
	"time"

	"github.com/LJTian/Topline/internal/collector"
)

func at(h int) *time.Time {
	t := time.Date(2024, 5, 10, h, 0, 0, 0, time.UTC)
	return &t
}

func TestHashURLDeterministicAndDistinct(t *testing.T) {
	url1 := "https://example.com/a"
	url2 := "https://example.com/b"

	h1a := HashURL(url1)
	h1b := HashURL(url1)
	h2 := HashURL(url2)

	if h1a != h1b {
		t.Fatalf("HashURL not deterministic: %q vs %q", h1a, h1b)
	}
	if h1a == h2 {
		t.Fatalf("HashURL should differ for different URLs: %q", h1a)
	}
	if len(h1a) != 40 {
		t.Fatalf("HashURL length = %d, want 40", len(h1a))
	}
}

func TestDedupFirstOccurrenceWins(t *testing.T) {
	items := []collector.NewsItem{
		{Title: "from A", URL: "https://example.com/1", Source: "A"},
		{Title: "no url", URL: ""},
		{Title: "from B", URL: "https://example.com/1", Source: "B"},
		{Title: "  other  ", URL: "https://example.com/2"},
		{Title: "blank url", URL: "   "},
	}

	out := Dedup(items)
	if len(out) != 2 {
		t.Fatalf("expected 2 items after dedupe, got %d", len(out))
	}
	if out[0].Source != "A" {
		t.Fatalf("first occurrence should win, got source %q", out[0].Source)
	}
	if out[1].Title != "other" {
		t.Fatalf("title should be trimmed: %q", out[1].Title)
	}
}

func TestSortByRecencyStableWithUndatedLast(t *testing.T) {
	items := []collector.NewsItem{
		{URL: "u1"},
		{URL: "d9", PublishedAt: at(9)},
		{URL: "u2"},
		{URL: "d11a", PublishedAt: at(11)},
		{URL: "d11b", PublishedAt: at(11)},
		{URL: "d10", PublishedAt: at(10)},
	}
	SortByRecency(items)

	want := []string{"d11a", "d11b", "d10", "d9", "u1", "u2"}
	for i, u := range want {
		if items[i].URL != u {
			t.Fatalf("position %d = %q, want %q", i, items[i].URL, u)
		}
	}
}

func TestSimpleProcessorCaps(t *testing.T) {
	p := NewSimpleProcessor(2)
	items := []collector.NewsItem{
		{URL: "a", PublishedAt: at(1)},
		{URL: "b", PublishedAt: at(3)},
		{URL: "c", PublishedAt: at(2)},
		{URL: "b", PublishedAt: at(5)},
	}

	out := p.Process(items)
	if len(out) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(out))
	}
	if out[0].URL != "b" || out[1].URL != "c" {
		t.Fatalf("unexpected order: %q, %q", out[0].URL, out[1].URL)
	}
	if !out[0].PublishedAt.Equal(*at(3)) {
		t.Fatalf("duplicate should not replace the first occurrence")
	}
	if items[0].URL != "a" || items[1].URL != "b" {
		t.Fatalf("input slice should not be reordered")
	}
}

func TestSimpleProcessorUncapped(t *testing.T) {
	out := NewSimpleProcessor(0).Process([]collector.NewsItem{{URL: "a"}, {URL: "b"}, {URL: "c"}})
	if len(out) != 3 {
		t.Fatalf("expected 3 items, got %d", len(out))
	}
}
