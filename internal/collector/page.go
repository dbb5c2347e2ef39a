package collector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/retry"
)

// PageGetter 返回文章页的原始 HTML
type PageGetter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// PageFetcher 用 colly 抓取文章页，每次尝试都使用新的 Collector
type PageFetcher struct {
	UserAgent string
	Timeout   time.Duration
	Retry     retry.Policy
	Log       logrus.FieldLogger
}

func (p *PageFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	policy := p.Retry
	policy.OnRetry = func(attempt int, err error) {
		log.WithFields(logrus.Fields{"url": url, "attempt": attempt}).WithError(err).Debug("retrying page")
	}

	var body []byte
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		b, err := p.visit(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, classifyErr(ctx, url, err)
	}
	return body, nil
}

func (p *PageFetcher) visit(ctx context.Context, url string) ([]byte, error) {
	ua := p.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxResponseBytes),
	)
	if p.Timeout > 0 {
		c.SetRequestTimeout(p.Timeout)
	}

	var (
		body   []byte
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	// colly 的 Visit 不感知 ctx，这里在截止时间到达时直接放弃等待
	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if status != 0 && (status < 200 || status > 299) {
			se := &StatusError{URL: url, StatusCode: status}
			if se.Retriable() {
				return nil, se
			}
			return nil, retry.Permanent(se)
		}
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
		if status != http.StatusOK && len(body) == 0 {
			return nil, retry.Permanent(fmt.Errorf("empty page %s", url))
		}
		return body, nil
	}
}
