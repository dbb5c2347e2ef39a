package collector

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/classify"
	"github.com/LJTian/Topline/internal/extract"
	"github.com/LJTian/Topline/internal/registry"
	"github.com/LJTian/Topline/internal/retry"
)

// FeedConfig 一个订阅源的抓取参数
type FeedConfig struct {
	Source registry.Source
	// URL 为空时使用 Source.FeedURL
	URL string
	// MaxEntries 按发布时间排序后最多保留的条目数
	MaxEntries int
	// EnrichCount 前 N 条会再抓取文章页补全正文/配图/作者
	EnrichCount int
	// RecencyWindow 早于 now-RecencyWindow 的条目被丢弃；0 表示不过滤
	RecencyWindow time.Duration
	HTTP          HTTPOptions
	Pages         PageGetter
	Log           logrus.FieldLogger
	Now           func() time.Time
}

// FeedFetcher 通过 RSS/Atom 订阅抓取单个来源
type FeedFetcher struct {
	name string
	cfg  FeedConfig
}

func NewFeedFetcher(name string, cfg FeedConfig) *FeedFetcher {
	if cfg.URL == "" {
		cfg.URL = cfg.Source.FeedURL
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HTTP.Accept == "" {
		cfg.HTTP.Accept = "application/rss+xml, application/atom+xml, application/xml, text/xml, */*"
	}
	return &FeedFetcher{name: name, cfg: cfg}
}

func (f *FeedFetcher) Name() string {
	return f.name
}

func (f *FeedFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	log := f.cfg.Log.WithFields(logrus.Fields{"source": f.name, "url": f.cfg.URL})

	body, err := getWithRetry(ctx, log, f.cfg.URL, f.cfg.HTTP)
	if err != nil {
		return nil, wrapErr(f.name, err)
	}

	// gofeed.Parser 内部有状态，每次抓取单独创建
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Source: f.name, Kind: KindPermanent, Err: err}
	}

	entries := selectEntries(feed.Items, f.cfg.MaxEntries, f.cfg.RecencyWindow, f.cfg.Now())

	items := make([]NewsItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, f.toItem(e))
	}

	f.enrich(ctx, log, items)

	for i := range items {
		items[i].Category = classify.Classify(items[i].Title, items[i].Content)
	}

	log.WithField("count", len(items)).Debug("feed fetched")
	return items, nil
}

// selectEntries 按时间倒序稳定排序（无时间的排最后），截取前 limit 条，再按时间窗口过滤
func selectEntries(entries []*gofeed.Item, limit int, window time.Duration, now time.Time) []*gofeed.Item {
	sorted := make([]*gofeed.Item, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := entryTime(sorted[i]), entryTime(sorted[j])
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	if window <= 0 {
		return sorted
	}

	cutoff := now.Add(-window)
	out := sorted[:0]
	for _, e := range sorted {
		if t := entryTime(e); t != nil && t.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func entryTime(e *gofeed.Item) *time.Time {
	if e.PublishedParsed != nil {
		return e.PublishedParsed
	}
	return e.UpdatedParsed
}

func (f *FeedFetcher) toItem(e *gofeed.Item) NewsItem {
	link := strings.TrimSpace(e.Link)
	if link == "" && strings.HasPrefix(e.GUID, "http") {
		link = strings.TrimSpace(e.GUID)
	}

	summary := extract.StripHTML(e.Description)
	if summary == "" {
		summary = extract.StripHTML(e.Content)
	}

	item := NewsItem{
		Title:    extract.CollapseSpace(e.Title),
		Content:  summary,
		Source:   f.cfg.Source.Name(),
		URL:      link,
		ImageURL: feedImage(e),
		Author:   feedAuthor(e),
	}
	if t := entryTime(e); t != nil {
		item.PublishedAt = ptrTime(*t)
	}
	return item
}

// enrich 并发抓取前 EnrichCount 条的文章页；失败只影响该条目
func (f *FeedFetcher) enrich(ctx context.Context, log logrus.FieldLogger, items []NewsItem) {
	if f.cfg.Pages == nil || f.cfg.EnrichCount <= 0 {
		return
	}
	n := f.cfg.EnrichCount
	if n > len(items) {
		n = len(items)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if items[i].URL == "" {
			continue
		}
		wg.Add(1)
		go func(it *NewsItem) {
			defer wg.Done()
			html, err := f.cfg.Pages.Get(ctx, it.URL)
			if err != nil {
				log.WithField("page", it.URL).WithError(err).Debug("enrich failed")
				return
			}
			res := extract.Extract(string(html), f.cfg.Source.Selectors, it.URL)
			if res.Content != "" {
				it.Content = res.Content
			}
			if res.ImageURL != "" {
				it.ImageURL = res.ImageURL
			}
			if res.Author != "" {
				it.Author = res.Author
			}
		}(&items[i])
	}
	wg.Wait()
}

// feedImage: media:content → media:thumbnail → enclosure → <image> → 摘要中的第一张 <img>
func feedImage(e *gofeed.Item) string {
	if v := mediaURL(e.Extensions, "content"); v != "" {
		return v
	}
	if v := mediaURL(e.Extensions, "thumbnail"); v != "" {
		return v
	}
	for _, enc := range e.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "image") {
			return enc.URL
		}
	}
	if e.Image != nil && e.Image.URL != "" {
		return e.Image.URL
	}
	if v := extract.FirstImage(e.Description); v != "" {
		return v
	}
	return extract.FirstImage(e.Content)
}

func mediaURL(exts ext.Extensions, name string) string {
	media, ok := exts["media"]
	if !ok {
		return ""
	}
	for _, m := range media[name] {
		if u := m.Attrs["url"]; u != "" {
			return u
		}
	}
	// <media:group><media:content/></media:group>
	for _, g := range media["group"] {
		for _, m := range g.Children[name] {
			if u := m.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}

func feedAuthor(e *gofeed.Item) string {
	if e.Author != nil && e.Author.Name != "" {
		return strings.TrimSpace(e.Author.Name)
	}
	for _, a := range e.Authors {
		if a != nil && a.Name != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}

// DefaultRetry 采集使用的重试策略
func DefaultRetry(attempts int, delay time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Delay:       delay,
	}
}
