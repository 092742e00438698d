package transport

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/xerrors"
)

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	assert.True(t, strings.HasPrefix(ua, "authzkit/"+Version+" ("))
	assert.Contains(t, ua, runtime.GOOS+"/"+runtime.GOARCH)
	assert.Equal(t, ua, UserAgent())
}

func TestOutboundHeaders(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, OutboundHeaders(ctx))

	ctx = WithOutboundHeaders(ctx, map[string]string{"Traceparent": "a", "X-Request-Id": "r1"})
	ctx2 := WithOutboundHeaders(ctx, map[string]string{"x-request-id": "r2"})

	assert.Equal(t, map[string]string{"traceparent": "a", "x-request-id": "r1"}, OutboundHeaders(ctx))
	assert.Equal(t, map[string]string{"traceparent": "a", "x-request-id": "r2"}, OutboundHeaders(ctx2))
}

func TestStats(t *testing.T) {
	var s Stats
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Begin()
			var err error
			if i%5 == 0 {
				err = errors.New("boom")
			}
			_ = s.End(err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StatsSnapshot{Sent: 50, Failed: 10}, s.Snapshot())
}

func TestReorder(t *testing.T) {
	type item struct {
		idx int
		val string
	}
	idx := func(it item) int { return it.idx }

	t.Run("乱序恢复", func(t *testing.T) {
		out, err := Reorder(3, []item{{2, "c"}, {0, "a"}, {1, "b"}}, idx)
		require.NoError(t, err)
		assert.Equal(t, []item{{0, "a"}, {1, "b"}, {2, "c"}}, out)
	})

	t.Run("数量不符", func(t *testing.T) {
		_, err := Reorder(3, []item{{0, "a"}}, idx)
		assert.Equal(t, xerrors.KindProtocol, xerrors.KindOf(err))
	})

	t.Run("重复下标", func(t *testing.T) {
		_, err := Reorder(2, []item{{0, "a"}, {0, "b"}}, idx)
		assert.Equal(t, xerrors.KindProtocol, xerrors.KindOf(err))
	})

	t.Run("下标越界", func(t *testing.T) {
		_, err := Reorder(1, []item{{4, "a"}}, idx)
		assert.Equal(t, xerrors.KindProtocol, xerrors.KindOf(err))
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNetworkError(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NetworkError(ctx, OpCheck, nil))
	assert.Equal(t, xerrors.KindConnection, xerrors.KindOf(NetworkError(ctx, OpCheck, errors.New("connection refused"))))
	assert.Equal(t, xerrors.KindTimeout, xerrors.KindOf(NetworkError(ctx, OpCheck, timeoutErr{})))

	typed := xerrors.Newf(xerrors.KindNotFound, "x")
	assert.Same(t, typed, NetworkError(ctx, OpCheck, typed))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := NetworkError(cancelled, OpWrite, errors.New("read: use of closed connection"))
	assert.Equal(t, xerrors.KindCancelled, xerrors.KindOf(err))
	assert.Contains(t, err.Error(), "write")
}

func TestRefsParsing(t *testing.T) {
	rel, err := ParseRelationship("document:1#viewer@group:eng#member")
	require.NoError(t, err)
	assert.Equal(t, "document", rel.Resource.Type)
	assert.Equal(t, "viewer", rel.Relation)
	assert.Equal(t, "member", rel.Subject.Relation)
	assert.Equal(t, "document:1#viewer@group:eng#member", rel.String())

	_, err = ParseRelationship("document:1@user:a")
	assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
	_, err = ParseObjectRef("nocolon")
	assert.Error(t, err)

	f := RelationshipFilter{ResourceType: "document", SubjectID: "eng"}
	assert.True(t, f.Matches(rel))
	f.Relation = "owner"
	assert.False(t, f.Matches(rel))
}

func TestOperation(t *testing.T) {
	assert.Len(t, Operations(), 10)
	assert.True(t, OpDelete.IsWrite())
	assert.False(t, OpCheck.IsWrite())
	assert.Error(t, (&CheckRequest{}).Validate())
}
