package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/Topline/internal/collector"
)

// ErrNoSnapshot 快照不存在或 Redis 未配置
var ErrNoSnapshot = errors.New("snapshot not found")

// 快照保留一天，足够覆盖重启与较长时间的源站故障
const snapshotTTL = 24 * time.Hour

type snapshot struct {
	Items      []collector.NewsItem `json:"items"`
	LastUpdate time.Time            `json:"lastUpdate"`
}

// Snapshots 把视图缓存写入 Redis，进程重启后可作为兜底
type Snapshots struct {
	rdb    *redis.Client
	prefix string
}

func NewSnapshots(rdb *redis.Client) *Snapshots {
	return &Snapshots{rdb: rdb, prefix: "topline:view:"}
}

func (s *Snapshots) key(view string) string {
	return s.prefix + view
}

func (s *Snapshots) Save(ctx context.Context, view string, items []collector.NewsItem, lastUpdate time.Time) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	bs, err := encodeSnapshot(items, lastUpdate)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(view), bs, snapshotTTL).Err()
}

func (s *Snapshots) Load(ctx context.Context, view string) ([]collector.NewsItem, time.Time, error) {
	if s == nil || s.rdb == nil {
		return nil, time.Time{}, ErrNoSnapshot
	}
	bs, err := s.rdb.Get(ctx, s.key(view)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return decodeSnapshot(bs)
}

func encodeSnapshot(items []collector.NewsItem, lastUpdate time.Time) ([]byte, error) {
	return json.Marshal(snapshot{Items: items, LastUpdate: lastUpdate})
}

func decodeSnapshot(bs []byte) ([]collector.NewsItem, time.Time, error) {
	var snap snapshot
	if err := json.Unmarshal(bs, &snap); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap.Items, snap.LastUpdate, nil
}
