// Package retry 实现带指数退避和抖动的重试策略。
//
// Delay 是纯函数：Delay(0) = 0；attempt >= 1 时
// base = InitialDelay * Multiplier^(attempt-1)，并以 MaxDelay 为上限；
// 抖动因子 j > 0 时最终延迟在 [base*(1-j), base*(1+j)] 内均匀分布，且不小于 0。
//
// RateLimited 总是可重试（在次数允许的情况下），并优先使用服务端给出的延迟。
// Timeout 和 Connection 是否重试分别由配置开关决定。MaxRetries 为 0 表示禁用重试。
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ceyewan/authzkit/xerrors"
)

// Config 重试配置
type Config struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	InitialDelay      time.Duration `json:"initial_delay" yaml:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
	Multiplier        float64       `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
	Jitter            float64       `json:"jitter" yaml:"jitter" mapstructure:"jitter"`
	RetryOnTimeout    bool          `json:"retry_on_timeout" yaml:"retry_on_timeout" mapstructure:"retry_on_timeout"`
	RetryOnConnection bool          `json:"retry_on_connection" yaml:"retry_on_connection" mapstructure:"retry_on_connection"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		Multiplier:        2.0,
		Jitter:            0.1,
		RetryOnTimeout:    true,
		RetryOnConnection: true,
	}
}

// Disabled 不重试的配置
func Disabled() Config {
	return Config{}
}

// Policy 重试策略，创建后只读，可并发使用
type Policy struct {
	cfg    Config
	random func() float64
}

// New 创建重试策略。Jitter 被截断到 [0,1]，负数参数按 0 处理，
// Multiplier 未设置时使用 2.0。
func New(cfg Config) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.MaxDelay < 0 {
		cfg.MaxDelay = 0
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if math.IsNaN(cfg.Jitter) {
		cfg.Jitter = 0
	}
	cfg.Jitter = math.Max(0, math.Min(1, cfg.Jitter))

	return &Policy{cfg: cfg, random: rand.Float64}
}

// Config 返回规范化后的配置
func (p *Policy) Config() Config {
	return p.cfg
}

// MaxRetries 最大重试次数
func (p *Policy) MaxRetries() int {
	return p.cfg.MaxRetries
}

// Disabled 报告策略是否禁用
func (p *Policy) Disabled() bool {
	return p.cfg.MaxRetries == 0
}

// Base 返回不含抖动的退避时长
func (p *Policy) Base(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.Multiplier, float64(attempt-1))
	if p.cfg.MaxDelay > 0 && base > float64(p.cfg.MaxDelay) {
		return p.cfg.MaxDelay
	}
	if base > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(base)
}

// Delay 计算第 attempt 次重试前的等待时长
func (p *Policy) Delay(attempt int) time.Duration {
	base := p.Base(attempt)
	if base == 0 || p.cfg.Jitter == 0 {
		return base
	}

	spread := float64(base) * p.cfg.Jitter
	d := float64(base) + (p.random()*2-1)*spread
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Decide 判断在已经重试 retriesDone 次之后，是否应当因 err 再次重试，并返回等待时长
func (p *Policy) Decide(err error, retriesDone int) (bool, time.Duration) {
	if err == nil || retriesDone >= p.cfg.MaxRetries {
		return false, 0
	}
	if xerrors.Is(err, xerrors.ErrShuttingDown) {
		return false, 0
	}

	next := retriesDone + 1
	switch xerrors.KindOf(err) {
	case xerrors.KindRateLimited:
		if hint, ok := xerrors.RetryAfterOf(err); ok {
			return true, hint
		}
		return true, p.Delay(next)
	case xerrors.KindTimeout:
		if !p.cfg.RetryOnTimeout {
			return false, 0
		}
	case xerrors.KindConnection:
		if !p.cfg.RetryOnConnection {
			return false, 0
		}
	case xerrors.KindUnavailable, xerrors.KindCircuitOpen:
	default:
		return false, 0
	}
	return true, p.Delay(next)
}

// Sleep 在 ctx 约束下等待 d。ctx 结束时返回对应的 Timeout / Cancelled 错误。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return xerrors.FromContext(ctx.Err())
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return xerrors.FromContext(ctx.Err())
	case <-timer.C:
		return nil
	}
}
