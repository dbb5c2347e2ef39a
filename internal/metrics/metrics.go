// Package metrics 进程内的刷新/抓取计数，通过 /metrics 暴露
package metrics

import (
	"sync"
	"time"
)

type viewStats struct {
	Refreshes       int64
	RefreshFailures int64
	FallbackServes  int64
	CacheHits       int64
	LastRefresh     time.Time
	LastDuration    time.Duration
	LastItems       int
}

type Metrics struct {
	mu sync.RWMutex

	views         map[string]*viewStats
	fetchErrors   map[string]int64
	itemsFetched  int64
	lastErrorTime time.Time
	lastError     string
}

func New() *Metrics {
	return &Metrics{
		views:       make(map[string]*viewStats),
		fetchErrors: make(map[string]int64),
	}
}

func (m *Metrics) view(name string) *viewStats {
	v, ok := m.views[name]
	if !ok {
		v = &viewStats{}
		m.views[name] = v
	}
	return v
}

// RecordRefresh 记录一次成功的刷新
func (m *Metrics) RecordRefresh(view string, items int, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.view(view)
	v.Refreshes++
	v.LastRefresh = time.Now()
	v.LastDuration = d
	v.LastItems = items
}

func (m *Metrics) RecordRefreshFailure(view string, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view(view).RefreshFailures++
	if err != nil {
		m.lastError = err.Error()
		m.lastErrorTime = time.Now()
	}
}

func (m *Metrics) RecordFallback(view string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view(view).FallbackServes++
}

func (m *Metrics) RecordCacheHit(view string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view(view).CacheHits++
}

// RecordFetch 记录单个数据源的结果；err != nil 时按 kind 计数
func (m *Metrics) RecordFetch(items int, kind string, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemsFetched += int64(items)
	if err != nil {
		m.fetchErrors[kind]++
	}
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make(map[string]interface{}, len(m.views))
	for name, v := range m.views {
		last := ""
		if !v.LastRefresh.IsZero() {
			last = v.LastRefresh.Format(time.RFC3339)
		}
		views[name] = map[string]interface{}{
			"refreshes":         v.Refreshes,
			"refresh_failures":  v.RefreshFailures,
			"fallback_serves":   v.FallbackServes,
			"cache_hits":        v.CacheHits,
			"last_refresh":      last,
			"last_duration_ms":  v.LastDuration.Milliseconds(),
			"last_refresh_size": v.LastItems,
		}
	}

	errs := make(map[string]int64, len(m.fetchErrors))
	for k, n := range m.fetchErrors {
		errs[k] = n
	}

	lastErrTime := ""
	if !m.lastErrorTime.IsZero() {
		lastErrTime = m.lastErrorTime.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"views":           views,
		"items_fetched":   m.itemsFetched,
		"fetch_errors":    errs,
		"last_error":      m.lastError,
		"last_error_time": lastErrTime,
	}
}
