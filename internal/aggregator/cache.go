package aggregator

import (
	"sync/atomic"
	"time"

	"github.com/LJTian/Topline/internal/collector"
)

// View 一个逻辑结果集
type View string

const (
	ViewNews     View = "news"
	ViewTrending View = "trending"
)

// Entry 一次成功刷新的结果，发布后不再修改
type Entry struct {
	Items      []collector.NewsItem
	LastUpdate time.Time
}

// State 由 LastUpdate 与 TTL 在读取时惰性计算
type State int

const (
	StateEmpty State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "empty"
	}
}

// Cache 单个视图的缓存；整条 Entry 原子替换，读者不会看到半更新的数据
type Cache struct {
	ttl   time.Duration
	entry atomic.Pointer[Entry]
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Load 返回当前 Entry；从未成功刷新时为 nil
func (c *Cache) Load() *Entry {
	return c.entry.Load()
}

func (c *Cache) Store(e *Entry) {
	c.entry.Store(e)
}

// restore 仅在缓存为空时放入 e（用于启动后从快照恢复）
func (c *Cache) restore(e *Entry) bool {
	return c.entry.CompareAndSwap(nil, e)
}

func (c *Cache) State(now time.Time) State {
	return c.stateOf(c.entry.Load(), now)
}

func (c *Cache) stateOf(e *Entry, now time.Time) State {
	if e == nil || e.LastUpdate.IsZero() {
		return StateEmpty
	}
	if now.Sub(e.LastUpdate) >= c.ttl {
		return StateStale
	}
	return StateFresh
}
