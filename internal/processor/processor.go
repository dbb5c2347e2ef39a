package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/LJTian/Topline/internal/collector"
)

// SimpleProcessor 合并后的清洗：去空 URL、按 URL 去重、按时间排序、截断
type SimpleProcessor struct {
	// MaxItems <= 0 表示不截断
	MaxItems int
}

func NewSimpleProcessor(maxItems int) *SimpleProcessor {
	return &SimpleProcessor{MaxItems: maxItems}
}

// Process 输入按数据源注册顺序拼接的条目，返回排序后的结果；不修改入参
func (p *SimpleProcessor) Process(items []collector.NewsItem) []collector.NewsItem {
	out := Dedup(items)
	SortByRecency(out)
	if p.MaxItems > 0 && len(out) > p.MaxItems {
		out = out[:p.MaxItems]
	}
	return out
}

// Dedup 丢弃空 URL，同一 URL 只保留第一次出现的条目
func Dedup(items []collector.NewsItem) []collector.NewsItem {
	out := make([]collector.NewsItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		url := strings.TrimSpace(it.URL)
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}

		it.URL = url
		it.Title = strings.ToValidUTF8(strings.TrimSpace(it.Title), "\uFFFD")
		out = append(out, it)
	}

	return out
}

// SortByRecency 按发布时间倒序稳定排序，无发布时间的排在最后
func SortByRecency(items []collector.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
}

// HashURL 由 URL 生成稳定 ID，用于存储主键
func HashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
