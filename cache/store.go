package cache

import (
	"context"
	"time"

	"github.com/ceyewan/authzkit/transport"
)

// Store 决策存储。实现需并发安全，未命中返回 (nil, false, nil)。
type Store interface {
	Get(ctx context.Context, key string) (*transport.CheckResponse, bool, error)
	Set(ctx context.Context, key string, resp *transport.CheckResponse, ttl time.Duration) error
	// Purge 使所有条目失效
	Purge(ctx context.Context) error
	Close() error
}
