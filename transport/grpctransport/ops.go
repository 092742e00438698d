package grpctransport

import (
	"context"
	"errors"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

func (t *Transport) Check(ctx context.Context, req *transport.CheckRequest) (*transport.CheckResponse, error) {
	var resp transport.CheckResponse
	reqID, err := t.unary(ctx, transport.OpCheck, MethodEvaluate, req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		resp.RequestID = reqID
	}
	return &resp, nil
}

func (t *Transport) CheckBatch(ctx context.Context, req *transport.CheckBatchRequest) (*transport.CheckBatchResponse, error) {
	var wire transport.CheckBatchWire
	reqID, err := t.unary(ctx, transport.OpCheckBatch, MethodEvaluateBatch, req, &wire)
	if err != nil {
		return nil, err
	}
	ordered, err := transport.Reorder(len(req.Items), wire.Results, func(r transport.IndexedCheck) int { return r.Index })
	if err != nil {
		return nil, t.protocolFailure(transport.OpCheckBatch, err)
	}
	out := &transport.CheckBatchResponse{Results: make([]transport.CheckResponse, len(ordered)), RequestID: firstNonEmpty(wire.RequestID, reqID)}
	for i, r := range ordered {
		out.Results[i] = r.CheckResponse
	}
	return out, nil
}

func (t *Transport) Write(ctx context.Context, req *transport.WriteRequest) (*transport.WriteResponse, error) {
	var resp transport.WriteResponse
	reqID, err := t.unary(ctx, transport.OpWrite, MethodWriteRelationships, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.RequestID = firstNonEmpty(resp.RequestID, reqID)
	return &resp, nil
}

func (t *Transport) WriteBatch(ctx context.Context, req *transport.WriteBatchRequest) (*transport.WriteBatchResponse, error) {
	var wire transport.WriteBatchWire
	reqID, err := t.unary(ctx, transport.OpWriteBatch, MethodWriteRelationshipsBatch, req, &wire)
	if err != nil {
		return nil, err
	}
	ordered, err := transport.Reorder(len(req.Writes), wire.Results, func(r transport.IndexedWrite) int { return r.Index })
	if err != nil {
		return nil, t.protocolFailure(transport.OpWriteBatch, err)
	}
	out := &transport.WriteBatchResponse{Results: make([]transport.WriteResponse, len(ordered)), RequestID: firstNonEmpty(wire.RequestID, reqID)}
	for i, r := range ordered {
		out.Results[i] = r.WriteResponse
	}
	return out, nil
}

func (t *Transport) Delete(ctx context.Context, req *transport.DeleteRequest) (*transport.DeleteResponse, error) {
	var resp transport.DeleteResponse
	reqID, err := t.unary(ctx, transport.OpDelete, MethodDeleteRelationships, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.RequestID = firstNonEmpty(resp.RequestID, reqID)
	return &resp, nil
}

func (t *Transport) Simulate(ctx context.Context, req *transport.SimulateRequest) (*transport.SimulateResponse, error) {
	var resp transport.SimulateResponse
	reqID, err := t.unary(ctx, transport.OpSimulate, MethodSimulate, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.RequestID = firstNonEmpty(resp.RequestID, reqID)
	return &resp, nil
}

func (t *Transport) HealthCheck(ctx context.Context) error {
	var resp transport.HealthWire
	if _, err := t.unary(ctx, transport.OpHealth, MethodHealth, struct{}{}, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return xerrors.Newf(xerrors.KindUnavailable, "backend reported status %q", resp.Status)
	}
	return nil
}

func (t *Transport) ListRelationships(ctx context.Context, req *transport.ListRelationshipsRequest) (*transport.ListRelationshipsResponse, error) {
	out := &transport.ListRelationshipsResponse{}
	err := t.stream(ctx, transport.OpListRelationships, MethodListRelationships, req, func(f *transport.ListFrame) {
		if f.Relationship != nil {
			out.Items = append(out.Items, *f.Relationship)
		}
		if f.Done {
			out.NextCursor = f.NextCursor
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transport) ListResources(ctx context.Context, req *transport.ListResourcesRequest) (*transport.ListResourcesResponse, error) {
	out := &transport.ListResourcesResponse{}
	err := t.stream(ctx, transport.OpListResources, MethodListResources, req, func(f *transport.ListFrame) {
		if f.Resource != nil {
			out.Items = append(out.Items, *f.Resource)
		}
		if f.Done {
			out.NextCursor = f.NextCursor
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transport) ListSubjects(ctx context.Context, req *transport.ListSubjectsRequest) (*transport.ListSubjectsResponse, error) {
	out := &transport.ListSubjectsResponse{}
	err := t.stream(ctx, transport.OpListSubjects, MethodListSubjects, req, func(f *transport.ListFrame) {
		if f.Subject != nil {
			out.Items = append(out.Items, *f.Subject)
		}
		if f.Done {
			out.NextCursor = f.NextCursor
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// unary 执行一次一元调用，返回响应头中的请求 ID
func (t *Transport) unary(ctx context.Context, op transport.Operation, method string, in, out any) (reqID string, err error) {
	t.stats.Begin()
	defer func() { _ = t.stats.End(err) }()

	if t.closed.Load() {
		return "", transport.Closed(op)
	}
	msg, err := ToStruct(in)
	if err != nil {
		return "", xerrors.E(xerrors.KindInvalidArgument, err, "encode request").WithOp(string(op))
	}

	var header, trailer metadata.MD
	resp := &structpb.Struct{}
	if err = t.conn.Invoke(outgoing(ctx), method, msg, resp, grpc.Header(&header), grpc.Trailer(&trailer)); err != nil {
		err = MapError(ctx, op, err, header, trailer)
		t.logger.DebugContext(ctx, "grpc call failed", clog.String("method", method), clog.ErrorWithKind(err))
		return "", err
	}
	if err = FromStruct(resp, out); err != nil {
		return "", xerrors.E(xerrors.KindProtocol, err, "decode response").WithOp(string(op))
	}
	return first(MetadataRequestID, header, trailer), nil
}

// stream 执行一次服务端流调用，逐帧交给 each
func (t *Transport) stream(ctx context.Context, op transport.Operation, method string, in any, each func(*transport.ListFrame)) (err error) {
	t.stats.Begin()
	defer func() { _ = t.stats.End(err) }()

	if t.closed.Load() {
		return transport.Closed(op)
	}
	msg, err := ToStruct(in)
	if err != nil {
		return xerrors.E(xerrors.KindInvalidArgument, err, "encode request").WithOp(string(op))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: method[strings.LastIndex(method, "/")+1:], ServerStreams: true}
	cs, err := t.conn.NewStream(outgoing(ctx), desc, method)
	if err != nil {
		return MapError(ctx, op, err)
	}
	// SendMsg 返回 io.EOF 时真正的错误由 RecvMsg 给出
	if err = cs.SendMsg(msg); err != nil && !errors.Is(err, io.EOF) {
		return MapError(ctx, op, err)
	}
	if err = cs.CloseSend(); err != nil {
		return MapError(ctx, op, err)
	}

	done := false
	for {
		frame := &structpb.Struct{}
		if err = cs.RecvMsg(frame); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			header, _ := cs.Header()
			return MapError(ctx, op, err, header, cs.Trailer())
		}
		var f transport.ListFrame
		if err = FromStruct(frame, &f); err != nil {
			return xerrors.E(xerrors.KindProtocol, err, "decode frame").WithOp(string(op))
		}
		each(&f)
		done = done || f.Done
	}
	if !done {
		err = xerrors.Newf(xerrors.KindProtocol, "stream ended without final frame").WithOp(string(op))
		return err
	}
	return nil
}

func (t *Transport) protocolFailure(op transport.Operation, err error) error {
	var e *xerrors.Error
	if errors.As(err, &e) {
		err = e.WithOp(string(op))
	}
	return t.stats.End(err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
