// Package aggregator 负责多源并发抓取、合并去重排序，以及带 TTL 与过期兜底的视图缓存。
//
// 读操作从不返回错误：缓存新鲜时直接返回；过期或为空时在截止时间内刷新一次，
// 刷新失败则返回旧数据（无论多旧），从未有过数据时返回空列表。
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/Topline/internal/classify"
	"github.com/LJTian/Topline/internal/collector"
	"github.com/LJTian/Topline/internal/metrics"
	"github.com/LJTian/Topline/internal/processor"
)

var (
	// ErrNoData 刷新完成但合并结果为空
	ErrNoData = errors.New("refresh produced no items")
	// ErrAllFailed 所有数据源都失败
	ErrAllFailed = errors.New("all sources failed")
	// ErrNoFetchers 视图没有注册任何数据源
	ErrNoFetchers = errors.New("no fetchers registered")
)

// SnapshotStore 保存/恢复视图快照，使缓存能跨进程重启
type SnapshotStore interface {
	Save(ctx context.Context, view string, items []collector.NewsItem, lastUpdate time.Time) error
	Load(ctx context.Context, view string) ([]collector.NewsItem, time.Time, error)
}

// Archiver 归档成功刷新得到的条目
type Archiver interface {
	SaveBatch(ctx context.Context, items []collector.NewsItem) error
}

type Options struct {
	NewsTTL     time.Duration
	TrendingTTL time.Duration
	NewsMax     int
	TrendingMax int
	// RefreshDeadline 单次刷新的总截止时间，应大于任何单个抓取的超时
	RefreshDeadline time.Duration
	// Concurrency 同时运行的抓取任务数上限；<= 0 表示不限制
	Concurrency int

	Snapshots      SnapshotStore
	Archive        Archiver
	PersistTimeout time.Duration

	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
	Now     func() time.Time
}

// Response 读操作的返回值
type Response struct {
	Items     []collector.NewsItem `json:"items"`
	Timestamp time.Time            `json:"timestamp"`
	FromCache bool                 `json:"fromCache"`
}

type view struct {
	name     View
	fetchers []collector.Fetcher
	cache    *Cache
	proc     *processor.SimpleProcessor
}

type Aggregator struct {
	opts     Options
	log      logrus.FieldLogger
	news     *view
	trending *view

	// 后台持久化任务
	bg sync.WaitGroup
}

func New(news, trending []collector.Fetcher, opts Options) *Aggregator {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RefreshDeadline <= 0 {
		opts.RefreshDeadline = 30 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}

	return &Aggregator{
		opts: opts,
		log:  opts.Log,
		news: &view{
			name:     ViewNews,
			fetchers: news,
			cache:    NewCache(opts.NewsTTL),
			proc:     processor.NewSimpleProcessor(opts.NewsMax),
		},
		trending: &view{
			name:     ViewTrending,
			fetchers: trending,
			cache:    NewCache(opts.TrendingTTL),
			proc:     processor.NewSimpleProcessor(opts.TrendingMax),
		},
	}
}

func (a *Aggregator) view(v View) (*view, error) {
	switch v {
	case ViewNews:
		return a.news, nil
	case ViewTrending:
		return a.trending, nil
	}
	return nil, fmt.Errorf("unknown view %q", v)
}

// Cache 返回视图的缓存，只读使用
func (a *Aggregator) Cache(v View) *Cache {
	vw, err := a.view(v)
	if err != nil {
		return nil
	}
	return vw.cache
}

// GetNews 返回新闻视图；category 为空或 all 时不过滤，未知分类返回空列表
func (a *Aggregator) GetNews(ctx context.Context, category string) Response {
	e, fromCache := a.read(ctx, a.news)
	resp := a.response(e, fromCache)

	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, "all") {
		return resp
	}

	cat, ok := classify.Parse(category)
	filtered := make([]collector.NewsItem, 0)
	if ok {
		for _, it := range resp.Items {
			if it.Category == cat {
				filtered = append(filtered, it)
			}
		}
	}
	resp.Items = filtered
	return resp
}

// GetTrending 兜底顺序：刷新 → 旧的热榜缓存 → 新闻缓存中最新的若干条
func (a *Aggregator) GetTrending(ctx context.Context) Response {
	e, fromCache := a.read(ctx, a.trending)
	if e != nil && len(e.Items) > 0 {
		return a.response(e, fromCache)
	}

	if ne := a.news.cache.Load(); ne != nil && len(ne.Items) > 0 {
		n := len(ne.Items)
		if a.opts.TrendingMax > 0 && n > a.opts.TrendingMax {
			n = a.opts.TrendingMax
		}
		a.opts.Metrics.RecordFallback(string(ViewTrending))
		a.log.WithField("view", ViewTrending).Info("serving trending from news cache")
		return Response{
			Items:     append([]collector.NewsItem(nil), ne.Items[:n]...),
			Timestamp: ne.LastUpdate,
			FromCache: true,
		}
	}

	return a.response(nil, false)
}

// Lookup 按 URL 在新闻视图（其次热榜视图）中查找条目
func (a *Aggregator) Lookup(ctx context.Context, url string) (collector.NewsItem, bool) {
	url = strings.TrimSpace(url)
	if url == "" {
		return collector.NewsItem{}, false
	}
	if e, _ := a.read(ctx, a.news); e != nil {
		for _, it := range e.Items {
			if it.URL == url {
				return it, true
			}
		}
	}
	if e := a.trending.cache.Load(); e != nil {
		for _, it := range e.Items {
			if it.URL == url {
				return it, true
			}
		}
	}
	return collector.NewsItem{}, false
}

func (a *Aggregator) response(e *Entry, fromCache bool) Response {
	if e == nil {
		return Response{Items: []collector.NewsItem{}, Timestamp: a.opts.Now(), FromCache: false}
	}
	return Response{Items: e.Items, Timestamp: e.LastUpdate, FromCache: fromCache}
}

// read 返回要对外提供的 Entry 以及是否来自旧缓存
func (a *Aggregator) read(ctx context.Context, v *view) (*Entry, bool) {
	cur := v.cache.Load()
	if v.cache.stateOf(cur, a.opts.Now()) == StateFresh {
		a.opts.Metrics.RecordCacheHit(string(v.name))
		return cur, false
	}

	fresh, err := a.refresh(ctx, v)
	if err == nil {
		return fresh, false
	}

	log := a.log.WithField("view", v.name).WithError(err)
	if cur != nil {
		a.opts.Metrics.RecordFallback(string(v.name))
		log.Warn("refresh failed, serving stale entry")
		return cur, true
	}

	// 进程内从未成功刷新：尝试从快照恢复
	if snap := a.loadSnapshot(ctx, v); snap != nil {
		v.cache.restore(snap)
		a.opts.Metrics.RecordFallback(string(v.name))
		log.Warn("refresh failed, serving restored snapshot")
		return v.cache.Load(), true
	}

	log.Warn("refresh failed and no cached entry exists")
	return nil, false
}

// Refresh 立即刷新视图，不检查新鲜度
func (a *Aggregator) Refresh(ctx context.Context, v View) (*Entry, error) {
	vw, err := a.view(v)
	if err != nil {
		return nil, err
	}
	return a.refresh(ctx, vw)
}

func (a *Aggregator) refresh(ctx context.Context, v *view) (*Entry, error) {
	start := a.opts.Now()
	began := time.Now()
	log := a.log.WithField("view", v.name)

	perSource, err := a.gather(ctx, v)
	if err != nil {
		a.opts.Metrics.RecordRefreshFailure(string(v.name), err)
		return nil, err
	}

	var merged []collector.NewsItem
	for _, items := range perSource {
		merged = append(merged, items...)
	}
	items := v.proc.Process(merged)
	if len(items) == 0 {
		a.opts.Metrics.RecordRefreshFailure(string(v.name), ErrNoData)
		return nil, ErrNoData
	}

	entry := &Entry{Items: items, LastUpdate: start}
	v.cache.Store(entry)

	took := time.Since(began)
	a.opts.Metrics.RecordRefresh(string(v.name), len(items), took)
	log.WithFields(logrus.Fields{"items": len(items), "merged": len(merged), "took": took}).Info("refresh done")

	a.persist(v.name, entry)
	return entry, nil
}

type fetchResult struct {
	idx   int
	items []collector.NewsItem
	err   error
}

// gather 并发调用视图的全部数据源。单个数据源失败只记为“没有数据”；
// 截止时间到达时立即返回，仍在进行的任务结果被丢弃。
func (a *Aggregator) gather(ctx context.Context, v *view) ([][]collector.NewsItem, error) {
	if len(v.fetchers) == 0 {
		return nil, ErrNoFetchers
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.RefreshDeadline)
	defer cancel()

	// 带缓冲，被放弃的任务写入时不会阻塞
	results := make(chan fetchResult, len(v.fetchers))

	var g errgroup.Group
	if a.opts.Concurrency > 0 {
		g.SetLimit(a.opts.Concurrency)
	}
	// SetLimit 满时 g.Go 会阻塞，派发放在单独的 goroutine 中
	go func() {
		for i, f := range v.fetchers {
			i, f := i, f
			g.Go(func() error {
				results <- a.runFetcher(ctx, v.name, i, f)
				return nil
			})
		}
	}()

	perSource := make([][]collector.NewsItem, len(v.fetchers))
	var errs []error
	for received := 0; received < len(v.fetchers); received++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("refresh %s abandoned after %d/%d sources: %w",
				v.name, received, len(v.fetchers), ctx.Err())
		case r := <-results:
			if r.err != nil {
				errs = append(errs, r.err)
				continue
			}
			perSource[r.idx] = r.items
		}
	}

	if len(errs) == len(v.fetchers) {
		return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
	}
	return perSource, nil
}

func (a *Aggregator) runFetcher(ctx context.Context, viewName View, idx int, f collector.Fetcher) (res fetchResult) {
	res.idx = idx
	log := a.log.WithFields(logrus.Fields{"view": viewName, "source": f.Name()})

	defer func() {
		if p := recover(); p != nil {
			res.items = nil
			res.err = &collector.FetchError{Source: f.Name(), Kind: collector.KindPermanent, Err: fmt.Errorf("panic: %v", p)}
			log.WithError(res.err).Error("fetcher panicked")
		}
	}()

	if err := ctx.Err(); err != nil {
		res.err = &collector.FetchError{Source: f.Name(), Kind: collector.KindDeadline, Err: err}
		return res
	}

	items, err := f.Fetch(ctx)
	if err != nil {
		kind := collector.KindOf(err)
		a.opts.Metrics.RecordFetch(0, string(kind), err)
		log.WithField("kind", kind).WithError(err).Warn("fetch failed")
		res.err = err
		return res
	}
	a.opts.Metrics.RecordFetch(len(items), "", nil)
	log.WithField("count", len(items)).Debug("fetch done")
	res.items = items
	return res
}

// persist 在后台写快照与归档，失败只记录日志
func (a *Aggregator) persist(v View, e *Entry) {
	if a.opts.Snapshots == nil && a.opts.Archive == nil {
		return
	}

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.PersistTimeout)
		defer cancel()

		log := a.log.WithField("view", v)
		if a.opts.Snapshots != nil {
			if err := a.opts.Snapshots.Save(ctx, string(v), e.Items, e.LastUpdate); err != nil {
				log.WithError(err).Warn("save snapshot failed")
			}
		}
		if a.opts.Archive != nil {
			if err := a.opts.Archive.SaveBatch(ctx, e.Items); err != nil {
				log.WithError(err).Warn("archive items failed")
			}
		}
	}()
}

func (a *Aggregator) loadSnapshot(ctx context.Context, v *view) *Entry {
	if a.opts.Snapshots == nil {
		return nil
	}
	// 刷新失败常常是调用方截止时间已到，快照读取不能跟着失败
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.PersistTimeout)
	defer cancel()

	items, at, err := a.opts.Snapshots.Load(ctx, string(v.name))
	if err != nil {
		a.log.WithField("view", v.name).WithError(err).Debug("no snapshot")
		return nil
	}
	if len(items) == 0 || at.IsZero() {
		return nil
	}
	return &Entry{Items: items, LastUpdate: at}
}

// Wait 等待后台持久化任务结束，用于优雅退出与测试
func (a *Aggregator) Wait() {
	a.bg.Wait()
}
