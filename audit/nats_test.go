package audit

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/testkit"
	"github.com/ceyewan/authzkit/tracectx"
	"github.com/ceyewan/authzkit/transport"
)

func TestNATSSink(t *testing.T) {
	nc := testkit.NATSConn(t)
	subject := "authz.audit.test." + testkit.NewID()

	msgs := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(subject, msgs)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	a, err := New(&Config{Sink: "nats", Encoding: "msgpack", NATS: NATSConfig{Subject: subject}}, WithNATSConn(nc))
	require.NoError(t, err)
	p := middleware.New(terminal, a.Interceptor())

	tc := tracectx.NewRoot(true)
	req, err := middleware.NewRequest(transport.OpCheck, aliceEdit)
	require.NoError(t, err)
	req.RequestID = "req-nats"
	_, err = p.Do(tracectx.NewContext(context.Background(), tc), req)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	select {
	case msg := <-msgs:
		assert.Equal(t, "application/msgpack", msg.Header.Get("content-type"))
		assert.Equal(t, "req-nats", msg.Header.Get("x-request-id"))
		ev, err := Decode("msgpack", msg.Data)
		require.NoError(t, err)
		assert.Equal(t, "check", ev.Operation)
		assert.Equal(t, tc.TraceID.String(), ev.TraceID)
	case <-time.After(3 * time.Second):
		t.Fatal("audit event not received")
	}
	// 注入的连接不随审计器关闭
	require.NoError(t, a.Close())
	assert.True(t, nc.IsConnected())
}
