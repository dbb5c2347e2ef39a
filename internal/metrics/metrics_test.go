package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestMetricsCountsPerView(t *testing.T) {
	m := New()
	m.RecordRefresh("news", 10, 20*time.Millisecond)
	m.RecordRefreshFailure("news", errors.New("boom"))
	m.RecordFallback("news")
	m.RecordCacheHit("trending")
	m.RecordFetch(3, "", nil)
	m.RecordFetch(0, "transient", errors.New("x"))

	stats := m.GetStats()
	views := stats["views"].(map[string]interface{})
	news := views["news"].(map[string]interface{})
	if news["refreshes"].(int64) != 1 || news["refresh_failures"].(int64) != 1 || news["fallback_serves"].(int64) != 1 {
		t.Fatalf("unexpected news stats: %+v", news)
	}
	if news["last_refresh_size"].(int) != 10 {
		t.Fatalf("unexpected last size: %+v", news)
	}
	trending := views["trending"].(map[string]interface{})
	if trending["cache_hits"].(int64) != 1 {
		t.Fatalf("unexpected trending stats: %+v", trending)
	}
	if stats["last_error"] != "boom" {
		t.Fatalf("last_error = %v", stats["last_error"])
	}
	if stats["items_fetched"].(int64) != 3 {
		t.Fatalf("items_fetched = %v", stats["items_fetched"])
	}
	if stats["fetch_errors"].(map[string]int64)["transient"] != 1 {
		t.Fatalf("fetch_errors = %v", stats["fetch_errors"])
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRefresh("news", 1, time.Second)
	m.RecordFallback("news")
	m.RecordFetch(1, "", nil)
}
