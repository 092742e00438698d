package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/authzkit/cache/serializer"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// redisStore 多个客户端实例共享的存储。
//
// 失效通过代际计数实现：条目键包含当前代际，Purge 只需 INCR 代际键，
// 旧代际的条目不再可见并随 TTL 过期。
type redisStore struct {
	client     redis.UniversalClient
	serializer serializer.Serializer
	prefix     string
	owned      bool
}

// NewRedisStore 基于已有客户端创建共享存储，Close 不会关闭该客户端
func NewRedisStore(client redis.UniversalClient, prefix, codec string) (Store, error) {
	s, err := serializer.New(codec)
	if err != nil {
		return nil, err
	}
	return &redisStore{client: client, serializer: s, prefix: prefix}, nil
}

func dialRedis(ctx context.Context, cfg *Config) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if cfg.Redis.Tracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, xerrors.Wrap(err, "instrument redis tracing")
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.E(xerrors.KindConnection, err, "ping redis "+cfg.Redis.Addr)
	}

	s, err := serializer.New(cfg.Serializer)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &redisStore{client: client, serializer: s, prefix: cfg.Prefix, owned: true}, nil
}

func (s *redisStore) genKey() string {
	return s.prefix + "gen"
}

func (s *redisStore) entryKey(gen int64, key string) string {
	return s.prefix + "g" + strconv.FormatInt(gen, 10) + ":" + key
}

func (s *redisStore) generation(ctx context.Context) (int64, error) {
	gen, err := s.client.Get(ctx, s.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, xerrors.E(xerrors.KindUnavailable, err, "read cache generation")
	}
	return gen, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (*transport.CheckResponse, bool, error) {
	gen, err := s.generation(ctx)
	if err != nil {
		return nil, false, err
	}
	data, err := s.client.Get(ctx, s.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.E(xerrors.KindUnavailable, err, "read cache entry")
	}
	var resp transport.CheckResponse
	if err := s.serializer.Unmarshal(data, &resp); err != nil {
		return nil, false, xerrors.E(xerrors.KindProtocol, err, "decode cache entry")
	}
	return &resp, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, resp *transport.CheckResponse, ttl time.Duration) error {
	gen, err := s.generation(ctx)
	if err != nil {
		return err
	}
	data, err := s.serializer.Marshal(resp)
	if err != nil {
		return xerrors.E(xerrors.KindInternal, err, "encode cache entry")
	}
	if err := s.client.Set(ctx, s.entryKey(gen, key), data, ttl).Err(); err != nil {
		return xerrors.E(xerrors.KindUnavailable, err, "write cache entry")
	}
	return nil
}

func (s *redisStore) Purge(ctx context.Context) error {
	if err := s.client.Incr(ctx, s.genKey()).Err(); err != nil {
		return xerrors.E(xerrors.KindUnavailable, err, "bump cache generation")
	}
	return nil
}

func (s *redisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
