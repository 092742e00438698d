// Package ratelimit 提供客户端侧的令牌桶限流，基于 golang.org/x/time/rate。
//
// 限流器作为管道拦截器安装在调度器之前，超出配额的调用不会发往网络，
// 直接以 KindRateLimited 失败并携带下一个令牌可用的等待时长；
// 开启 Wait 后改为在 ctx 约束下等待令牌。
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{Rate: 200, Burst: 50})
//	p := middleware.New(middleware.Dispatcher(d), limiter.Interceptor())
//
// 按操作限流时，Operations 中未列出的操作使用默认的 Rate/Burst。
package ratelimit

import (
	"github.com/ceyewan/authzkit/xerrors"
)

// Limit 令牌桶规则
type Limit struct {
	// Rate 每秒生成的令牌数
	Rate float64 `json:"rate" yaml:"rate" mapstructure:"rate"`
	// Burst 桶容量
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Config 限流配置。Rate 为 0 表示不限流。
type Config struct {
	Limit `mapstructure:",squash"`

	// PerOperation 为每种操作维护独立的令牌桶（默认共享一个）
	PerOperation bool `json:"per_operation" yaml:"per_operation" mapstructure:"per_operation"`

	// Operations 按操作覆盖规则，设置后隐含 PerOperation
	Operations map[string]Limit `json:"operations" yaml:"operations" mapstructure:"operations"`

	// Wait 令牌不足时等待而不是立即失败
	Wait bool `json:"wait" yaml:"wait" mapstructure:"wait"`
}

// Enabled 报告是否配置了任何限流规则
func (c *Config) Enabled() bool {
	return c != nil && (c.Rate > 0 || len(c.Operations) > 0)
}

func (c *Config) setDefaults() {
	if c.Rate > 0 && c.Burst <= 0 {
		c.Burst = max(1, int(c.Rate))
	}
	if len(c.Operations) > 0 {
		c.PerOperation = true
	}
}

func (c *Config) validate() error {
	if c.Rate < 0 {
		return xerrors.Wrapf(ErrInvalidLimit, "rate %v", c.Rate)
	}
	for op, l := range c.Operations {
		if !l.valid() {
			return xerrors.Wrapf(ErrInvalidLimit, "operation %s: rate %v burst %d", op, l.Rate, l.Burst)
		}
	}
	return nil
}
