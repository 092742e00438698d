package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// localStore 进程内存储，基于 otter
type localStore struct {
	cache *otter.Cache[string, transport.CheckResponse]
}

// NewLocalStore 创建容量为 capacity 的本地存储，条目按写入时间过期
func NewLocalStore(capacity int, ttl time.Duration) (Store, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	c, err := otter.New(&otter.Options[string, transport.CheckResponse]{
		MaximumSize: capacity,
		// 过期时间从写入开始计算，读取不会续期；Set 时按条目覆盖
		ExpiryCalculator: otter.ExpiryWriting[string, transport.CheckResponse](ttl),
	})
	if err != nil {
		return nil, xerrors.E(xerrors.KindConfiguration, err, "build otter cache")
	}
	return &localStore{cache: c}, nil
}

func (s *localStore) Get(_ context.Context, key string) (*transport.CheckResponse, bool, error) {
	v, ok := s.cache.GetIfPresent(key)
	if !ok {
		return nil, false, nil
	}
	// 返回副本，调用方修改不影响缓存
	return &v, true, nil
}

func (s *localStore) Set(_ context.Context, key string, resp *transport.CheckResponse, ttl time.Duration) error {
	s.cache.Set(key, *resp)
	if ttl > 0 {
		s.cache.SetExpiresAfter(key, ttl)
	}
	return nil
}

func (s *localStore) Purge(context.Context) error {
	s.cache.InvalidateAll()
	return nil
}

func (s *localStore) Close() error {
	s.cache.StopAllGoroutines()
	return nil
}
