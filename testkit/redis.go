package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAddrEnv Redis 测试地址的环境变量
const RedisAddrEnv = "AUTHZ_TEST_REDIS_ADDR"

// RedisClient 返回连接到 $AUTHZ_TEST_REDIS_ADDR 的客户端（DB 1），未设置或不可达时跳过测试
func RedisClient(t testing.TB) *redis.Client {
	addr := envOrSkip(t, RedisAddrEnv)
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          1,
		DialTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis %s unreachable: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
