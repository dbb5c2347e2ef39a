// Package retry 提供有限次数、线性退避的重试
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy 重试策略：第 n 次失败后等待 n*Delay
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Retriable 为 nil 时，除 Permanent 包装的错误外一律重试
	Retriable func(error) bool
	// OnRetry 在每次退避前调用，可用于日志
	OnRetry func(attempt int, err error)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent 标记一个不应重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断 err 是否被 Permanent 标记过
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do 执行 fn，直到成功、遇到不可重试错误、次数用尽或 ctx 结束
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) || (p.Retriable != nil && !p.Retriable(err)) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(time.Duration(attempt) * p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, errors.Join(lastErr, ctx.Err()))
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
