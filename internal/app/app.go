// Package app 根据配置组装采集器、存储与聚合器，供各个命令入口共用
package app

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/aggregator"
	"github.com/LJTian/Topline/internal/collector"
	"github.com/LJTian/Topline/internal/config"
	"github.com/LJTian/Topline/internal/logger"
	"github.com/LJTian/Topline/internal/metrics"
	"github.com/LJTian/Topline/internal/registry"
	"github.com/LJTian/Topline/internal/storage"
)

// 热榜接口只取第一页的前 10 条，不限制日期
const (
	trendingAPIPageSize = 10
	trendingAPIMaxPages = 1
)

type App struct {
	Config     *config.Config
	Log        *logrus.Logger
	Registry   *registry.Registry
	Store      *storage.Store
	Metrics    *metrics.Metrics
	Aggregator *aggregator.Aggregator
}

// New 校验配置并组装全部组件；Postgres/Redis 未配置时对应功能关闭
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	reg, err := registry.Load(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  metrics.New(),
	}

	opts := aggregator.Options{
		NewsTTL:         cfg.NewsTTL,
		TrendingTTL:     cfg.TrendingTTL,
		NewsMax:         cfg.NewsMaxItems,
		TrendingMax:     cfg.TrendingMaxItems,
		RefreshDeadline: cfg.RefreshDeadline,
		Concurrency:     cfg.FetchConcurrency,
		Metrics:         a.Metrics,
		Log:             logger.For(log, "aggregator"),
	}

	if cfg.PostgresDSN != "" || cfg.RedisAddr != "" {
		store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, logger.For(log, "storage"))
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.Store = store
		if store.Redis != nil {
			opts.Snapshots = storage.NewSnapshots(store.Redis)
		}
		if store.DB != nil {
			opts.Archive = store
		}
	}

	news, trending := BuildFetchers(cfg, reg, logger.For(log, "collector"))
	log.WithFields(logrus.Fields{
		"sources":  len(reg.Sources()),
		"news":     len(news),
		"trending": len(trending),
	}).Info("fetchers registered")

	a.Aggregator = aggregator.New(news, trending, opts)
	return a, nil
}

// BuildFetchers 按注册表顺序创建两个视图的采集器；配置了 API key 时追加头条接口
func BuildFetchers(cfg *config.Config, reg *registry.Registry, log logrus.FieldLogger) (news, trending []collector.Fetcher) {
	client := &http.Client{}
	policy := collector.DefaultRetry(cfg.RetryAttempts, cfg.RetryDelay)

	feedHTTP := collector.HTTPOptions{
		Client:    client,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FeedTimeout,
		Retry:     policy,
	}
	pages := &collector.PageFetcher{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.PageTimeout,
		Retry:     policy,
		Log:       log,
	}

	for _, src := range reg.Sources() {
		news = append(news, collector.NewFeedFetcher("feed:"+src.Key, collector.FeedConfig{
			Source:        src,
			MaxEntries:    cfg.FeedMaxEntries,
			EnrichCount:   cfg.EnrichPerSource,
			RecencyWindow: cfg.RecencyWindow,
			HTTP:          feedHTTP,
			Pages:         pages,
			Log:           log,
		}))
	}

	// 热榜条目全部抓取文章页以补全配图
	for _, src := range reg.TrendingSources() {
		trending = append(trending, collector.NewFeedFetcher("trending:"+src.Key, collector.FeedConfig{
			Source:      src,
			URL:         src.TrendingURL,
			MaxEntries:  cfg.TrendingFeedMaxEntries,
			EnrichCount: cfg.TrendingFeedMaxEntries,
			HTTP:        feedHTTP,
			Pages:       pages,
			Log:         log,
		}))
	}

	if cfg.NewsAPIKey == "" {
		return news, trending
	}

	apiHTTP := collector.HTTPOptions{
		Client:    client,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.APITimeout,
		Retry:     policy,
	}
	news = append(news, collector.NewHeadlineFetcher("headlines", collector.HeadlineConfig{
		BaseURL:       cfg.NewsAPIURL,
		APIKey:        cfg.NewsAPIKey,
		Country:       cfg.NewsAPICountry,
		PageSize:      cfg.NewsAPIPageSize,
		MaxPages:      cfg.NewsAPIMaxPages,
		RecencyWindow: cfg.RecencyWindow,
		HTTP:          apiHTTP,
		Log:           log,
	}))
	trending = append(trending, collector.NewHeadlineFetcher("headlines:top", collector.HeadlineConfig{
		BaseURL:  cfg.NewsAPIURL,
		APIKey:   cfg.NewsAPIKey,
		Country:  cfg.NewsAPICountry,
		PageSize: trendingAPIPageSize,
		MaxPages: trendingAPIMaxPages,
		HTTP:     apiHTTP,
		Log:      log,
	}))

	return news, trending
}

// Close 等待后台持久化完成并关闭存储连接
func (a *App) Close() {
	a.Aggregator.Wait()
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.WithError(err).Warn("close store")
		}
	}
}
