package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LJTian/Topline/internal/classify"
	"github.com/LJTian/Topline/internal/collector"
	"github.com/LJTian/Topline/internal/processor"
)

func TestTruncateRunesDB(t *testing.T) {
	if got := truncateRunesDB("  שלום עולם  ", 4); got != "שלום" {
		t.Fatalf("truncateRunesDB = %q", got)
	}
	if got := truncateRunesDB("short", 10); got != "short" {
		t.Fatalf("truncateRunesDB should keep short strings: %q", got)
	}
	if truncateRunesDB("x", 0) != "" {
		t.Fatalf("limit 0 should give empty string")
	}
}

func TestArticleFromItem(t *testing.T) {
	pub := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	seen := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	it := collector.NewsItem{
		Title:       "Title\xff",
		URL:         "https://example.com/a",
		Source:      "Ynet",
		Category:    classify.Politics,
		PublishedAt: &pub,
	}

	a := articleFromItem(it, seen)
	if a.ID != processor.HashURL(it.URL) {
		t.Fatalf("ID should be the URL hash")
	}
	if a.Title != "Title\uFFFD" {
		t.Fatalf("invalid UTF-8 should be replaced: %q", a.Title)
	}
	if a.Category != "politics" || a.PublishedAt == nil || !a.PublishedAt.Equal(pub) {
		t.Fatalf("unexpected article: %+v", a)
	}
	if a.ExtraData["last_seen_at"] != "2024-05-10T12:00:00Z" {
		t.Fatalf("unexpected extra data: %v", a.ExtraData)
	}
}

func TestSnapshotEncodeDecode(t *testing.T) {
	at := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	items := []collector.NewsItem{{Title: "a", URL: "https://a", Category: classify.Sports}}

	bs, err := encodeSnapshot(items, at)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	got, gotAt, err := decodeSnapshot(bs)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 1 || got[0].Category != classify.Sports || !gotAt.Equal(at) {
		t.Fatalf("unexpected snapshot: %+v %v", got, gotAt)
	}
	if _, _, err := decodeSnapshot([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestStoreWithoutBackends(t *testing.T) {
	s := &Store{}
	if err := s.SaveBatch(context.Background(), []collector.NewsItem{{URL: "https://a"}}); err != nil {
		t.Fatalf("SaveBatch without database should be a no-op, got %v", err)
	}
	if _, err := s.Increment(context.Background(), "https://a", ActionView); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("expected ErrNoDatabase, got %v", err)
	}

	var snaps *Snapshots
	if _, _, err := snaps.Load(context.Background(), "news"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if err := NewSnapshots(nil).Save(context.Background(), "news", nil, time.Now()); err != nil {
		t.Fatalf("Save without redis should be a no-op, got %v", err)
	}
}

func TestParseAction(t *testing.T) {
	if a, err := ParseAction("share"); err != nil || a != ActionShare {
		t.Fatalf("ParseAction(share) = %q, %v", a, err)
	}
	if _, err := ParseAction("like"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestEngagementScore(t *testing.T) {
	if got := EngagementScore(10, 2, 1); got != 17 {
		t.Fatalf("EngagementScore(10, 2, 1) = %d, want 17", got)
	}
	if a, err := ParseAction("comment"); err != nil || a != ActionComment {
		t.Fatalf("ParseAction(comment) = %q, %v", a, err)
	}
}
