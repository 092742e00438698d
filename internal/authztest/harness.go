package authztest

import (
	"testing"

	"github.com/ceyewan/authzkit/transport/grpctransport"
	"github.com/ceyewan/authzkit/transport/resttransport"
)

// Transports 同一个后端上的两种传输
type Transports struct {
	GRPC *grpctransport.Transport
	REST *resttransport.Transport
}

// StartTransports 同时以 gRPC（bufconn）和 REST（httptest）启动后端，并创建对应的传输。
// 测试结束时自动关闭。
func StartTransports(t testing.TB, b *Backend) Transports {
	t.Helper()
	h := StartGRPC(t, b)
	g, err := grpctransport.New(&grpctransport.Config{Address: h.Target}, grpctransport.WithDialOptions(h.DialOption()))
	if err != nil {
		t.Fatalf("create grpc transport: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	srv := StartREST(t, b)
	r, err := resttransport.New(&resttransport.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("create rest transport: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	return Transports{GRPC: g, REST: r}
}
