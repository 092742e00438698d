package grpctransport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

func TestCodeKind(t *testing.T) {
	want := map[codes.Code]xerrors.Kind{
		codes.OK:                 xerrors.KindUnknown,
		codes.Canceled:           xerrors.KindCancelled,
		codes.Unknown:            xerrors.KindUnknown,
		codes.InvalidArgument:    xerrors.KindInvalidArgument,
		codes.DeadlineExceeded:   xerrors.KindTimeout,
		codes.NotFound:           xerrors.KindNotFound,
		codes.AlreadyExists:      xerrors.KindInvalidArgument,
		codes.PermissionDenied:   xerrors.KindForbidden,
		codes.ResourceExhausted:  xerrors.KindRateLimited,
		codes.FailedPrecondition: xerrors.KindSchemaViolation,
		codes.Aborted:            xerrors.KindUnavailable,
		codes.OutOfRange:         xerrors.KindInvalidArgument,
		codes.Unimplemented:      xerrors.KindProtocol,
		codes.Internal:           xerrors.KindInternal,
		codes.Unavailable:        xerrors.KindUnavailable,
		codes.DataLoss:           xerrors.KindInternal,
		codes.Unauthenticated:    xerrors.KindUnauthorized,
	}
	for c := codes.OK; c <= codes.Unauthenticated; c++ {
		assert.Equal(t, want[c], CodeKind(c), "code %s", c)
	}
	assert.Equal(t, xerrors.KindUnknown, CodeKind(codes.Code(99)))
}

func TestMapError(t *testing.T) {
	ctx := context.Background()

	t.Run("RetryInfo 优先", func(t *testing.T) {
		st, err := status.New(codes.ResourceExhausted, "slow down").WithDetails(
			&errdetails.RetryInfo{RetryDelay: durationpb.New(1500 * time.Millisecond)},
			&errdetails.RequestInfo{RequestId: "req-9"},
		)
		assert.NoError(t, err)
		mapped := MapError(ctx, transport.OpCheck, st.Err(), metadata.Pairs(MetadataRetryAfter, "5"))
		d, ok := xerrors.RetryAfterOf(mapped)
		assert.True(t, ok)
		assert.Equal(t, 1500*time.Millisecond, d)
		assert.Equal(t, "req-9", xerrors.RequestIDOf(mapped))
		assert.Contains(t, mapped.Error(), "slow down")
	})

	t.Run("retry-after 元数据", func(t *testing.T) {
		mapped := MapError(ctx, transport.OpCheck, status.Error(codes.ResourceExhausted, "x"),
			metadata.Pairs(MetadataRetryAfter, "2", MetadataRequestID, "req-1"))
		d, _ := xerrors.RetryAfterOf(mapped)
		assert.Equal(t, 2*time.Second, d)
		assert.Equal(t, "req-1", xerrors.RequestIDOf(mapped))
	})

	t.Run("非 status 错误为连接错误", func(t *testing.T) {
		mapped := MapError(ctx, transport.OpWrite, errors.New("dial failed"))
		assert.Equal(t, xerrors.KindConnection, xerrors.KindOf(mapped))
	})

	t.Run("调用方超时", func(t *testing.T) {
		expired, cancel := context.WithTimeout(ctx, -time.Second)
		defer cancel()
		mapped := MapError(expired, transport.OpCheck, status.Error(codes.DeadlineExceeded, "deadline"))
		assert.Equal(t, xerrors.KindTimeout, xerrors.KindOf(mapped))
	})

	assert.NoError(t, MapError(ctx, transport.OpCheck, nil))
}

func TestCodecRoundTrip(t *testing.T) {
	in := transport.CheckRequest{
		Subject:    transport.SubjectRef{Object: transport.ObjectRef{Type: "user", ID: "alice"}},
		Permission: "view",
		Resource:   transport.ObjectRef{Type: "doc", ID: "1"},
		Context:    map[string]any{"ip": "10.0.0.1"},
	}
	s, err := ToStruct(in)
	assert.NoError(t, err)
	assert.Equal(t, "view", s.GetFields()["permission"].GetStringValue())

	var out transport.CheckRequest
	assert.NoError(t, FromStruct(s, &out))
	assert.Equal(t, in, out)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.Equal(t, xerrors.KindConfiguration, xerrors.KindOf(err))
	_, err = New(&Config{})
	assert.Equal(t, xerrors.KindConfiguration, xerrors.KindOf(err))
}
