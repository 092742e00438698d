package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/dispatch"
	"github.com/ceyewan/authzkit/internal/authztest"
	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/tracectx"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

func newPipeline(t *testing.T, backend *authztest.Backend, ics ...middleware.Interceptor) *middleware.Pipeline {
	t.Helper()
	ts := authztest.StartTransports(t, backend)
	d, err := dispatch.New(&dispatch.Config{}, dispatch.WithGRPC(ts.GRPC), dispatch.WithREST(ts.REST))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return middleware.New(middleware.Dispatcher(d), ics...)
}

func checkRequest(t *testing.T) *middleware.Request {
	t.Helper()
	req, err := middleware.NewRequest(transport.OpCheck, &transport.CheckRequest{
		Subject:    transport.SubjectRef{Object: transport.ObjectRef{Type: "user", ID: "alice"}},
		Permission: "view",
		Resource:   transport.ObjectRef{Type: "doc", ID: "1"},
	})
	require.NoError(t, err)
	return req
}

func TestDispatcher_EndToEnd(t *testing.T) {
	backend := authztest.NewBackend()
	backend.Seed(transport.Relationship{
		Resource: transport.ObjectRef{Type: "doc", ID: "1"},
		Relation: "view",
		Subject:  transport.SubjectRef{Object: transport.ObjectRef{Type: "user", ID: "alice"}},
	})
	p := newPipeline(t, backend,
		middleware.RequestID(),
		middleware.Tracing(nil, tracectx.FormatW3C, tracectx.FormatB3Single),
		middleware.Logging(nil),
		middleware.Metrics(nil),
	)

	req := checkRequest(t)
	resp, err := p.Do(context.Background(), req)
	require.NoError(t, err)

	var out transport.CheckResponse
	require.NoError(t, middleware.Decode(resp.Body, &out))
	assert.True(t, out.Allowed)
	assert.Equal(t, "grpc", resp.Header(middleware.HeaderTransport))
	assert.Equal(t, "false", resp.Header(middleware.HeaderFallback))
	assert.Equal(t, "1", resp.Header(middleware.HeaderAttempts))
	assert.NotEmpty(t, resp.RequestID)

	headers := backend.LastHeaders(transport.KindGRPC)
	assert.Equal(t, req.RequestID, headers["x-request-id"])
	assert.Equal(t, req.Trace.Traceparent(), headers["traceparent"])
	assert.Equal(t, req.Trace.B3(), headers["b3"])
}

func TestDispatcher_FallbackHeaders(t *testing.T) {
	backend := authztest.NewBackend()
	p := newPipeline(t, backend)

	backend.Inject(authztest.Fault{Protocol: transport.KindGRPC, Kind: xerrors.KindConnection, Times: 1})
	resp, err := p.Do(context.Background(), checkRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "rest", resp.Header(middleware.HeaderTransport))
	assert.Equal(t, "true", resp.Header(middleware.HeaderFallback))
	assert.Equal(t, "2", resp.Header(middleware.HeaderAttempts))
}

func TestDispatcher_Errors(t *testing.T) {
	backend := authztest.NewBackend()
	p := newPipeline(t, backend)
	ctx := context.Background()

	t.Run("服务端错误", func(t *testing.T) {
		backend.Inject(authztest.Fault{Kind: xerrors.KindForbidden, Times: 1})
		resp, err := p.Do(ctx, checkRequest(t))
		assert.Equal(t, xerrors.KindForbidden, xerrors.KindOf(err))
		assert.Equal(t, middleware.StatusError, resp.Status)
		assert.Equal(t, xerrors.KindForbidden, resp.ErrorKind)
		assert.Equal(t, "grpc", resp.Header(middleware.HeaderTransport))
	})

	t.Run("不支持的操作", func(t *testing.T) {
		_, err := p.Do(ctx, &middleware.Request{Operation: "explode"})
		assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
	})

	t.Run("负载无法解码", func(t *testing.T) {
		_, err := p.Do(ctx, &middleware.Request{Operation: transport.OpCheck, Payload: []byte{0xc1}})
		assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
	})

	t.Run("健康检查", func(t *testing.T) {
		req, err := middleware.NewRequest(transport.OpHealth, nil)
		require.NoError(t, err)
		resp, err := p.Do(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, resp.Body)
	})
}
