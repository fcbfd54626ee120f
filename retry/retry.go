// Package retry 指数退避重试，用于变更发布、连接建立等可能短暂失败的操作。
package retry

import (
	"context"
	"math"
	"time"
)

// Operation 可重试的操作
type Operation func(ctx context.Context) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次），<= 1 表示不重试
	InitialDelay  time.Duration // 首次重试前的等待
	BackoffFactor float64       // 退避倍数
	MaxDelay      time.Duration // 单次等待上限，0 表示不限
	// Retryable 判断错误是否值得重试，nil 表示全部重试
	Retryable func(error) bool
}

// DefaultConfig 3 次尝试，50ms 起步，倍数 2，上限 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      time.Second,
	}
}

// Delay 第 attempt 次失败后的等待时长（attempt 从 1 开始）
func (c Config) Delay(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do 执行 op，失败时按配置退避重试，返回最后一次的错误。
// ctx 取消时立即返回 ctx.Err()。
func Do(ctx context.Context, op Operation, cfg Config) error {
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
