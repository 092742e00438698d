package cache

import (
	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
)

// Option 缓存组件选项函数
type Option func(*options)

type options struct {
	logger  clog.Logger
	metrics *metrics.ClientMetrics
	client  redis.UniversalClient
	store   Store
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 Namespace: logger.WithNamespace("cache")
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("cache")
		}
	}
}

// WithMetrics 设置指标收集器，记录命中和未命中
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRedisClient 注入已有的 Redis 客户端（仅 redis 驱动），
// 此时忽略 Config.Redis，且 Close 不会关闭该客户端
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithStore 直接指定存储实现，忽略 Driver
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}
