package grpctransport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/internal/authztest"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/transport/grpctransport"
	"github.com/ceyewan/authzkit/xerrors"
)

func setup(t *testing.T) (*authztest.Backend, *grpctransport.Transport) {
	t.Helper()
	backend := authztest.NewBackend()
	backend.DefinePermission("doc", "view", "viewer", "editor")
	h := authztest.StartGRPC(t, backend)

	tr, err := grpctransport.New(&grpctransport.Config{Address: h.Target}, grpctransport.WithDialOptions(h.DialOption()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return backend, tr
}

func ref(s string) transport.ObjectRef {
	r, _ := transport.ParseObjectRef(s)
	return r
}

func subj(s string) transport.SubjectRef {
	r, _ := transport.ParseSubjectRef(s)
	return r
}

func TestTransport_CheckBatchPreservesOrder(t *testing.T) {
	backend, tr := setup(t)
	ctx := context.Background()
	backend.SetShuffle(true)

	_, err := tr.Write(ctx, &transport.WriteRequest{Relationships: []transport.Relationship{
		{Resource: ref("doc:1"), Relation: "viewer", Subject: subj("user:alice")},
		{Resource: ref("doc:2"), Relation: "viewer", Subject: subj("user:bob")},
	}})
	require.NoError(t, err)

	resp, err := tr.CheckBatch(ctx, &transport.CheckBatchRequest{Items: []transport.CheckRequest{
		{Subject: subj("user:alice"), Permission: "view", Resource: ref("doc:1")},
		{Subject: subj("user:alice"), Permission: "edit", Resource: ref("doc:1")},
		{Subject: subj("user:bob"), Permission: "view", Resource: ref("doc:2")},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results[0].Allowed)
	assert.False(t, resp.Results[1].Allowed)
	assert.True(t, resp.Results[2].Allowed)
	assert.NotEmpty(t, resp.RequestID)
}

func TestTransport_Operations(t *testing.T) {
	backend, tr := setup(t)
	ctx := context.Background()

	require.NoError(t, tr.HealthCheck(ctx))

	w, err := tr.WriteBatch(ctx, &transport.WriteBatchRequest{Writes: []transport.WriteRequest{
		{Relationships: []transport.Relationship{{Resource: ref("doc:1"), Relation: "editor", Subject: subj("user:alice")}}},
		{Relationships: []transport.Relationship{{Resource: ref("doc:2"), Relation: "viewer", Subject: subj("group:eng#member")}}},
		{Relationships: []transport.Relationship{{Resource: ref("group:eng"), Relation: "member", Subject: subj("user:bob")}}},
	}})
	require.NoError(t, err)
	require.Len(t, w.Results, 3)
	assert.Equal(t, "r1", w.Results[0].ConsistencyToken)
	assert.Equal(t, "r3", w.Results[2].ConsistencyToken)

	check, err := tr.Check(ctx, &transport.CheckRequest{Subject: subj("user:bob"), Permission: "view", Resource: ref("doc:2"), Consistency: "r3"})
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Contains(t, check.Reason, "group:eng#member")
	assert.NotEmpty(t, check.RequestID)

	rels, err := tr.ListRelationships(ctx, &transport.ListRelationshipsRequest{
		Filter: transport.RelationshipFilter{ResourceType: "doc"},
		Page:   transport.Page{Limit: 1},
	})
	require.NoError(t, err)
	assert.Len(t, rels.Items, 1)
	assert.Equal(t, "1", rels.NextCursor)

	resources, err := tr.ListResources(ctx, &transport.ListResourcesRequest{ResourceType: "doc", Permission: "view", Subject: subj("user:alice")})
	require.NoError(t, err)
	assert.Equal(t, []transport.ObjectRef{ref("doc:1")}, resources.Items)
	assert.Empty(t, resources.NextCursor)

	subjects, err := tr.ListSubjects(ctx, &transport.ListSubjectsRequest{Resource: ref("doc:2"), Permission: "view", SubjectType: "user"})
	require.NoError(t, err)
	assert.Equal(t, []transport.SubjectRef{subj("user:bob")}, subjects.Items)

	sim, err := tr.Simulate(ctx, &transport.SimulateRequest{
		Check:         transport.CheckRequest{Subject: subj("user:carol"), Permission: "view", Resource: ref("doc:1")},
		Relationships: []transport.Relationship{{Resource: ref("doc:1"), Relation: "viewer", Subject: subj("user:carol")}},
	})
	require.NoError(t, err)
	assert.True(t, sim.Allowed)

	del, err := tr.Delete(ctx, &transport.DeleteRequest{Filter: transport.RelationshipFilter{ResourceType: "doc"}})
	require.NoError(t, err)
	assert.Equal(t, 2, del.Deleted)

	assert.Equal(t, 3, backend.Calls(transport.KindGRPC, transport.OpListSubjects)+backend.Calls(transport.KindGRPC, transport.OpListResources)+backend.Calls(transport.KindGRPC, transport.OpListRelationships))
	assert.Equal(t, transport.StatsSnapshot{Sent: 8, Failed: 0}, tr.Stats())
}

func TestTransport_ErrorMapping(t *testing.T) {
	backend, tr := setup(t)
	ctx := context.Background()

	backend.Inject(authztest.Fault{Operation: transport.OpCheck, Kind: xerrors.KindRateLimited, RetryAfter: 2 * time.Second, Times: 1})
	_, err := tr.Check(ctx, &transport.CheckRequest{Subject: subj("user:a"), Permission: "view", Resource: ref("doc:1")})
	require.Error(t, err)
	assert.Equal(t, xerrors.KindRateLimited, xerrors.KindOf(err))
	d, ok := xerrors.RetryAfterOf(err)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
	assert.NotEmpty(t, xerrors.RequestIDOf(err))

	backend.Inject(authztest.Fault{Operation: transport.OpListResources, Kind: xerrors.KindForbidden, Times: 1})
	_, err = tr.ListResources(ctx, &transport.ListResourcesRequest{ResourceType: "doc", Permission: "view", Subject: subj("user:a")})
	assert.Equal(t, xerrors.KindForbidden, xerrors.KindOf(err))

	_, err = tr.Check(ctx, &transport.CheckRequest{})
	assert.Equal(t, xerrors.KindInvalidArgument, xerrors.KindOf(err))

	assert.Equal(t, transport.StatsSnapshot{Sent: 3, Failed: 3}, tr.Stats())
}

func TestTransport_OutboundHeaders(t *testing.T) {
	backend, tr := setup(t)
	ctx := transport.WithOutboundHeaders(context.Background(), map[string]string{
		"traceparent":   "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"authorization": "Bearer t0ken",
	})
	require.NoError(t, tr.HealthCheck(ctx))

	headers := backend.LastHeaders(transport.KindGRPC)
	assert.Equal(t, "Bearer t0ken", headers["authorization"])
	assert.Contains(t, headers["user-agent"], "authzkit/")
}

func TestTransport_Closed(t *testing.T) {
	_, tr := setup(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err := tr.HealthCheck(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Equal(t, xerrors.KindUnavailable, xerrors.KindOf(err))
	assert.Equal(t, transport.KindGRPC, tr.Kind())
}

func TestTransport_Unreachable(t *testing.T) {
	tr, err := grpctransport.New(&grpctransport.Config{Address: "127.0.0.1:1"})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = tr.HealthCheck(ctx)
	require.Error(t, err)
	assert.True(t, xerrors.KindOf(err).IsRetriable(), "unexpected kind %v", xerrors.KindOf(err))
}
