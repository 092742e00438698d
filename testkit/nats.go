package testkit

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSURLEnv NATS 测试地址的环境变量
const NATSURLEnv = "AUTHZ_TEST_NATS_URL"

// NATSConn 返回连接到 $AUTHZ_TEST_NATS_URL 的连接，未设置或不可达时跳过测试
func NATSConn(t testing.TB) *nats.Conn {
	url := envOrSkip(t, NATSURLEnv)
	nc, err := nats.Connect(url, nats.Timeout(2*time.Second), nats.Name("authzkit-test"))
	if err != nil {
		t.Skipf("nats %s unreachable: %v", url, err)
	}
	t.Cleanup(nc.Close)
	return nc
}
