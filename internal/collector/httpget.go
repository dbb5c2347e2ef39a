package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/retry"
)

const (
	maxResponseBytes = 8 << 20 // 8MB
	defaultUserAgent = "Mozilla/5.0 (compatible; ToplineBot/1.0)"
)

// StatusError 非 2xx 响应
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Retriable 只有 5xx 可重试，4xx（含 429）一律不重试
func (e *StatusError) Retriable() bool {
	return e.StatusCode >= 500
}

// HTTPOptions 单次 GET 的超时、重试与 UA
type HTTPOptions struct {
	Client    *http.Client
	UserAgent string
	// Timeout 是每次尝试的超时
	Timeout time.Duration
	Retry   retry.Policy
	Accept  string
}

// getWithRetry 发起 GET，按 HTTPOptions 重试，返回响应体
func getWithRetry(ctx context.Context, log logrus.FieldLogger, url string, opts HTTPOptions) ([]byte, error) {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	policy := opts.Retry
	policy.OnRetry = func(attempt int, err error) {
		log.WithFields(logrus.Fields{"url": url, "attempt": attempt}).WithError(err).Debug("retrying request")
	}

	var body []byte
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		b, err := getOnce(ctx, client, url, ua, opts)
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

func getOnce(ctx context.Context, client *http.Client, url, ua string, opts HTTPOptions) ([]byte, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", ua)
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		se := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if se.Retriable() {
			return nil, se
		}
		return nil, retry.Permanent(se)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// classifyErr 把重试后的最终错误映射为 FetchError 的 Kind；
// 单次尝试超时同样是 DeadlineExceeded，只有外层 ctx 结束才算 deadline
func classifyErr(ctx context.Context, source string, err error) error {
	kind := KindTransient
	switch {
	case ctx.Err() != nil:
		kind = KindDeadline
	case retry.IsPermanent(err):
		kind = KindPermanent
	}
	return &FetchError{Source: source, Kind: kind, Err: err}
}
