package authztest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

func mustRel(t *testing.T, s string) transport.Relationship {
	t.Helper()
	r, err := transport.ParseRelationship(s)
	require.NoError(t, err)
	return r
}

func do(t *testing.T, b *Backend, op transport.Operation, req any) (any, error) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	res, _, err := b.Do(context.Background(), transport.KindREST, op, nil, body)
	return res, err
}

func TestBackendCheck(t *testing.T) {
	b := NewBackend()
	b.DefinePermission("document", "view", "viewer", "editor")
	b.Seed(
		mustRel(t, "document:1#editor@user:alice"),
		mustRel(t, "document:2#viewer@group:eng#member"),
		mustRel(t, "group:eng#member@user:bob"),
	)

	cases := []struct {
		name    string
		subject string
		perm    string
		res     string
		want    bool
	}{
		{"经由 editor 获得 view", "user:alice", "view", "document:1", true},
		{"直接关系", "user:alice", "editor", "document:1", true},
		{"经由组成员", "user:bob", "view", "document:2", true},
		{"无关系", "user:bob", "view", "document:1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub, _ := transport.ParseSubjectRef(tc.subject)
			res, _ := transport.ParseObjectRef(tc.res)
			out, err := do(t, b, transport.OpCheck, transport.CheckRequest{Subject: sub, Permission: tc.perm, Resource: res})
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.(*transport.CheckResponse).Allowed)
		})
	}
}

func TestBackendFaults(t *testing.T) {
	b := NewBackend()
	b.Inject(Fault{Protocol: transport.KindGRPC, Kind: xerrors.KindUnavailable})
	b.Inject(Fault{Operation: transport.OpHealth, Kind: xerrors.KindRateLimited, Times: 1})

	// gRPC 故障不影响 REST
	_, err := do(t, b, transport.OpHealth, nil)
	assert.Equal(t, xerrors.KindRateLimited, xerrors.KindOf(err))
	_, err = do(t, b, transport.OpHealth, nil)
	assert.NoError(t, err, "Times=1 的故障只生效一次")

	_, _, err = b.Do(context.Background(), transport.KindGRPC, transport.OpHealth, nil, nil)
	assert.Equal(t, xerrors.KindUnavailable, xerrors.KindOf(err))

	assert.Equal(t, 2, b.Calls(transport.KindREST, transport.OpHealth))
	assert.Equal(t, 1, b.Calls(transport.KindGRPC, ""))

	b.ClearFaults()
	_, _, err = b.Do(context.Background(), transport.KindGRPC, transport.OpHealth, nil, nil)
	assert.NoError(t, err)
}

func TestBackendWriteDeleteList(t *testing.T) {
	b := NewBackend()

	out, err := do(t, b, transport.OpWrite, transport.WriteRequest{Relationships: []transport.Relationship{
		mustRel(t, "document:1#viewer@user:a"),
		mustRel(t, "document:2#viewer@user:a"),
		mustRel(t, "document:3#viewer@user:b"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "r1", out.(*transport.WriteResponse).ConsistencyToken)

	out, err = do(t, b, transport.OpListRelationships, transport.ListRelationshipsRequest{
		Filter: transport.RelationshipFilter{ResourceType: "document"},
		Page:   transport.Page{Limit: 2},
	})
	require.NoError(t, err)
	page := out.(*transport.ListRelationshipsResponse)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "2", page.NextCursor)

	out, err = do(t, b, transport.OpListResources, transport.ListResourcesRequest{
		ResourceType: "document", Permission: "viewer",
		Subject: transport.SubjectRef{Object: transport.ObjectRef{Type: "user", ID: "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []transport.ObjectRef{{Type: "document", ID: "1"}, {Type: "document", ID: "2"}}, out.(*transport.ListResourcesResponse).Items)

	out, err = do(t, b, transport.OpDelete, transport.DeleteRequest{Filter: transport.RelationshipFilter{ResourceType: "document", SubjectID: "a"}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.(*transport.DeleteResponse).Deleted)
	assert.Len(t, b.Relationships(), 1)

	_, err = do(t, b, transport.OpDelete, transport.DeleteRequest{})
	assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))

	// 只按主体过滤，不要求资源类型
	out, err = do(t, b, transport.OpDelete, transport.DeleteRequest{Filter: transport.RelationshipFilter{SubjectType: "user", SubjectID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.(*transport.DeleteResponse).Deleted)
	assert.Empty(t, b.Relationships())

	_, err = do(t, b, transport.OpListRelationships, transport.ListRelationshipsRequest{Page: transport.Page{Cursor: "x"}})
	assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))
}

func TestBackendShuffle(t *testing.T) {
	b := NewBackend()
	b.SetShuffle(true)
	b.Seed(mustRel(t, "doc:1#view@user:a"))

	out, err := do(t, b, transport.OpCheckBatch, transport.CheckBatchRequest{Items: []transport.CheckRequest{
		{Subject: transport.SubjectRef{Object: transport.ObjectRef{Type: "user", ID: "a"}}, Permission: "view", Resource: transport.ObjectRef{Type: "doc", ID: "1"}},
		{Subject: transport.SubjectRef{Object: transport.ObjectRef{Type: "user", ID: "b"}}, Permission: "view", Resource: transport.ObjectRef{Type: "doc", ID: "1"}},
	}})
	require.NoError(t, err)
	wire := out.(*transport.CheckBatchWire)
	assert.Equal(t, 1, wire.Results[0].Index)
	assert.Equal(t, 0, wire.Results[1].Index)
	assert.True(t, wire.Results[1].Allowed)
}

func TestBackendSimulate(t *testing.T) {
	b := NewBackend()
	out, err := do(t, b, transport.OpSimulate, transport.SimulateRequest{
		Check: transport.CheckRequest{
			Subject:    transport.SubjectRef{Object: transport.ObjectRef{Type: "user", ID: "a"}},
			Permission: "viewer",
			Resource:   transport.ObjectRef{Type: "doc", ID: "1"},
		},
		Relationships: []transport.Relationship{mustRel(t, "doc:1#viewer@user:a")},
	})
	require.NoError(t, err)
	assert.True(t, out.(*transport.SimulateResponse).Allowed)
	assert.Empty(t, b.Relationships(), "模拟不落库")
}
