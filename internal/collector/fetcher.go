package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/Topline/internal/classify"
)

// NewsItem 统一采集后的基础结构
type NewsItem struct {
	Title string `json:"title"`
	// 最佳正文：优先抽取的文章正文，否则为订阅摘要
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Category classify.Category `json:"category"`
	// URL 同时作为去重键与对外 ID
	URL      string `json:"url"`
	ImageURL string `json:"imageUrl,omitempty"`
	Author   string `json:"author,omitempty"`
	// nil 表示源未提供发布时间，排序时排在最后
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Fetcher 抽象每一个数据源
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]NewsItem, error)
}

// Kind 区分采集失败的原因
type Kind string

const (
	// KindTransient 超时、网络错误、5xx、429：会重试
	KindTransient Kind = "transient"
	// KindPermanent 4xx、解析失败：不重试
	KindPermanent Kind = "permanent"
	// KindDeadline 调用方的截止时间已到
	KindDeadline Kind = "deadline"
)

// FetchError 带有失败类型的采集错误
type FetchError struct {
	Source string
	Kind   Kind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf 返回 err 的失败类型；非 FetchError 时按 transient 处理
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindDeadline
	}
	return KindTransient
}

// wrapErr 给错误标上数据源名称，保留已有的 Kind
func wrapErr(source string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return &FetchError{Source: source, Kind: fe.Kind, Err: fe.Err}
	}
	return &FetchError{Source: source, Kind: KindOf(err), Err: err}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
