package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/internal/authztest"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

func mustRel(t *testing.T, s string) transport.Relationship {
	t.Helper()
	r, err := transport.ParseRelationship(s)
	require.NoError(t, err)
	return r
}

// run 以 REST 传输指向测试后端执行命令，返回标准输出
func run(t *testing.T, b *authztest.Backend, args ...string) (string, error) {
	t.Helper()
	srv := authztest.StartREST(t, b)
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--rest", srv.URL, "--strategy", "rest_only", "--config", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	b := authztest.NewBackend()
	b.Seed(mustRel(t, "doc:1#view@user:alice"))

	t.Run("允许", func(t *testing.T) {
		out, err := run(t, b, "check", "user:alice", "view", "doc:1")
		require.NoError(t, err)
		assert.Contains(t, out, "ALLOWED")
		assert.Contains(t, out, "true")
	})

	t.Run("JSON 输出", func(t *testing.T) {
		out, err := run(t, b, "-o", "json", "check", "user:bob", "view", "doc:1")
		require.NoError(t, err)
		var resp transport.CheckResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.False(t, resp.Allowed)
	})

	t.Run("require 拒绝时报错", func(t *testing.T) {
		_, err := run(t, b, "check", "--require", "user:bob", "view", "doc:1")
		require.Error(t, err)
		assert.True(t, xerrors.IsAccessDenied(err))
	})

	t.Run("模拟", func(t *testing.T) {
		out, err := run(t, b, "-o", "json", "check", "user:bob", "view", "doc:1", "--with", "doc:1#view@user:bob")
		require.NoError(t, err)
		var resp transport.SimulateResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.True(t, resp.Allowed)
		assert.Len(t, b.Relationships(), 1)
	})

	t.Run("非法引用", func(t *testing.T) {
		_, err := run(t, b, "check", "alice", "view", "doc:1")
		require.Error(t, err)
		assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
	})
}

func TestWriteDeleteList(t *testing.T) {
	b := authztest.NewBackend()

	out, err := run(t, b, "write", "doc:1#viewer@user:alice", "doc:2#viewer@user:alice", "doc:1#owner@user:bob")
	require.NoError(t, err)
	assert.Contains(t, out, "CONSISTENCY TOKEN")
	assert.Len(t, b.Relationships(), 3)

	t.Run("分页列出关系", func(t *testing.T) {
		out, err := run(t, b, "-o", "json", "list", "relationships", "--resource-type", "doc", "--page-size", "1")
		require.NoError(t, err)
		var rels []transport.Relationship
		require.NoError(t, json.Unmarshal([]byte(out), &rels))
		assert.Len(t, rels, 3)
		assert.Equal(t, 3, b.Calls(transport.KindREST, transport.OpListRelationships))
	})

	t.Run("列出资源", func(t *testing.T) {
		out, err := run(t, b, "-o", "json", "list", "resources", "user:alice", "viewer", "doc")
		require.NoError(t, err)
		var refs []transport.ObjectRef
		require.NoError(t, json.Unmarshal([]byte(out), &refs))
		assert.ElementsMatch(t, []transport.ObjectRef{{Type: "doc", ID: "1"}, {Type: "doc", ID: "2"}}, refs)
	})

	t.Run("列出主体", func(t *testing.T) {
		out, err := run(t, b, "list", "subjects", "doc:1", "owner", "user")
		require.NoError(t, err)
		assert.Contains(t, out, "user:bob")
		assert.NotContains(t, out, "user:alice")
	})

	t.Run("删除需要过滤条件", func(t *testing.T) {
		_, err := run(t, b, "delete")
		require.Error(t, err)
		assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
	})

	t.Run("删除", func(t *testing.T) {
		out, err := run(t, b, "-o", "yaml", "delete", "--subject-id", "alice")
		require.NoError(t, err)
		assert.Contains(t, out, "deleted: 2")
		assert.Len(t, b.Relationships(), 1)
	})
}

func TestHealthAndStats(t *testing.T) {
	b := authztest.NewBackend()

	t.Run("健康", func(t *testing.T) {
		out, err := run(t, b, "-o", "json", "health")
		require.NoError(t, err)
		var report healthReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Healthy)
		require.Len(t, report.Transports, 1)
		assert.Equal(t, "rest", report.Transports[0].Transport)
	})

	t.Run("不健康时报错", func(t *testing.T) {
		b.Inject(authztest.Fault{Protocol: transport.KindREST, Operation: transport.OpHealth, Kind: xerrors.KindInternal})
		defer b.ClearFaults()
		_, err := run(t, b, "health")
		require.Error(t, err)
	})

	t.Run("统计", func(t *testing.T) {
		out, err := run(t, b, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "rest_only")
		assert.Contains(t, out, "rest.sent")
	})
}

func TestParseDefine(t *testing.T) {
	typ, perm, rels, err := parseDefine("doc.view=viewer,owner")
	require.NoError(t, err)
	assert.Equal(t, "doc", typ)
	assert.Equal(t, "view", perm)
	assert.Equal(t, []string{"viewer", "owner"}, rels)

	for _, bad := range []string{"doc", "doc.view", "view=viewer", ".view=viewer"} {
		_, _, _, err := parseDefine(bad)
		assert.Error(t, err, bad)
	}
}

func TestOutputFallback(t *testing.T) {
	out := &bytes.Buffer{}
	w := NewWriter("xml", out)
	require.NoError(t, w.Print(map[string]int{"a": 1}, &Table{Headers: []string{"K", "V"}, Rows: [][]string{{"a", "1"}}}))
	assert.Contains(t, out.String(), "K  V")
}
