package resttransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

func (t *Transport) Check(ctx context.Context, req *transport.CheckRequest) (*transport.CheckResponse, error) {
	var resp transport.CheckResponse
	reqID, err := t.do(ctx, transport.OpCheck, http.MethodPost, PathEvaluate, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.RequestID = firstNonEmpty(resp.RequestID, reqID)
	return &resp, nil
}

func (t *Transport) CheckBatch(ctx context.Context, req *transport.CheckBatchRequest) (*transport.CheckBatchResponse, error) {
	var wire transport.CheckBatchWire
	reqID, err := t.do(ctx, transport.OpCheckBatch, http.MethodPost, PathEvaluateBatch, req, &wire)
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
	reqID, err := t.do(ctx, transport.OpWrite, http.MethodPost, PathWrite, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.RequestID = firstNonEmpty(resp.RequestID, reqID)
	return &resp, nil
}

func (t *Transport) WriteBatch(ctx context.Context, req *transport.WriteBatchRequest) (*transport.WriteBatchResponse, error) {
	var wire transport.WriteBatchWire
	reqID, err := t.do(ctx, transport.OpWriteBatch, http.MethodPost, PathWriteBatch, req, &wire)
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
	reqID, err := t.do(ctx, transport.OpDelete, http.MethodPost, PathDelete, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.RequestID = firstNonEmpty(resp.RequestID, reqID)
	return &resp, nil
}

func (t *Transport) ListRelationships(ctx context.Context, req *transport.ListRelationshipsRequest) (*transport.ListRelationshipsResponse, error) {
	var resp transport.ListRelationshipsResponse
	if _, err := t.do(ctx, transport.OpListRelationships, http.MethodPost, PathListRelationships, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *Transport) ListResources(ctx context.Context, req *transport.ListResourcesRequest) (*transport.ListResourcesResponse, error) {
	var resp transport.ListResourcesResponse
	if _, err := t.do(ctx, transport.OpListResources, http.MethodPost, PathListResources, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *Transport) ListSubjects(ctx context.Context, req *transport.ListSubjectsRequest) (*transport.ListSubjectsResponse, error) {
	var resp transport.ListSubjectsResponse
	if _, err := t.do(ctx, transport.OpListSubjects, http.MethodPost, PathListSubjects, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *Transport) Simulate(ctx context.Context, req *transport.SimulateRequest) (*transport.SimulateResponse, error) {
	var resp transport.SimulateResponse
	reqID, err := t.do(ctx, transport.OpSimulate, http.MethodPost, PathSimulate, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.RequestID = firstNonEmpty(resp.RequestID, reqID)
	return &resp, nil
}

func (t *Transport) HealthCheck(ctx context.Context) error {
	var resp transport.HealthWire
	if _, err := t.do(ctx, transport.OpHealth, http.MethodGet, PathHealth, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return xerrors.Newf(xerrors.KindUnavailable, "backend reported status %q", resp.Status)
	}
	return nil
}

// do 发送一次请求并解码 2xx 响应体，返回响应头中的请求 ID
func (t *Transport) do(ctx context.Context, op transport.Operation, method, path string, in, out any) (reqID string, err error) {
	t.stats.Begin()
	defer func() { _ = t.stats.End(err) }()

	if t.closed.Load() {
		return "", transport.Closed(op)
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return "", xerrors.E(xerrors.KindInvalidArgument, err, "encode request").WithOp(string(op))
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.cfg.BaseURL+path, body)
	if err != nil {
		return "", xerrors.E(xerrors.KindConfiguration, err, "build request").WithOp(string(op))
	}
	for k, v := range transport.OutboundHeaders(ctx) {
		req.Header.Set(k, v)
	}
	req.Header.Set(transport.HeaderUserAgent, transport.UserAgent())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		err = transport.NetworkError(ctx, op, err)
		t.logger.DebugContext(ctx, "rest call failed", clog.String("path", path), clog.ErrorWithKind(err))
		return "", err
	}
	defer resp.Body.Close()

	reqID = resp.Header.Get(transport.HeaderRequestID)
	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxBodyBytes))
	if err != nil {
		return reqID, transport.NetworkError(ctx, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = StatusError(op, resp.StatusCode, resp.Header, raw)
		t.logger.DebugContext(ctx, "rest call failed",
			clog.String("path", path),
			clog.Int("status", resp.StatusCode),
			clog.ErrorWithKind(err))
		return reqID, err
	}
	if out != nil {
		if err = json.Unmarshal(raw, out); err != nil {
			return reqID, xerrors.E(xerrors.KindProtocol, err, "decode response").WithOp(string(op))
		}
	}
	return reqID, nil
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
