package client

import (
	"context"

	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// call 编码请求、经管道执行并解码响应
func call[Resp any](ctx context.Context, cl *Client, op transport.Operation, payload any) (*Resp, error) {
	req, err := middleware.NewRequest(op, payload)
	if err != nil {
		return nil, err
	}
	resp, err := cl.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	out := new(Resp)
	if len(resp.Body) > 0 {
		if err := middleware.Decode(resp.Body, out); err != nil {
			return nil, xerrors.Wrapf(err, "%s", op)
		}
	}
	return out, nil
}

// Check 评估单个权限。Allowed 为 false 不是错误。
func (cl *Client) Check(ctx context.Context, req *transport.CheckRequest) (*transport.CheckResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return call[transport.CheckResponse](ctx, cl, transport.OpCheck, req)
}

// Require 评估权限，结果为拒绝时返回 *xerrors.AccessDeniedError
func (cl *Client) Require(ctx context.Context, req *transport.CheckRequest) error {
	resp, err := cl.Check(ctx, req)
	if err != nil {
		return err
	}
	if resp.Allowed {
		return nil
	}
	return &xerrors.AccessDeniedError{
		Subject:    req.Subject.String(),
		Permission: req.Permission,
		Resource:   req.Resource.String(),
		Reason:     resp.Reason,
		RequestID:  resp.RequestID,
	}
}

// CheckBatch 批量评估，Results[i] 对应 Items[i]
func (cl *Client) CheckBatch(ctx context.Context, req *transport.CheckBatchRequest) (*transport.CheckBatchResponse, error) {
	if len(req.Items) == 0 {
		return &transport.CheckBatchResponse{}, nil
	}
	for i := range req.Items {
		if err := req.Items[i].Validate(); err != nil {
			return nil, xerrors.Wrapf(err, "item %d", i)
		}
	}
	resp, err := call[transport.CheckBatchResponse](ctx, cl, transport.OpCheckBatch, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != len(req.Items) {
		return nil, xerrors.Newf(xerrors.KindProtocol, "check_batch returned %d results for %d items",
			len(resp.Results), len(req.Items)).WithOp(string(transport.OpCheckBatch))
	}
	return resp, nil
}

// Write 写入一组关系，返回写入后的一致性令牌
func (cl *Client) Write(ctx context.Context, req *transport.WriteRequest) (*transport.WriteResponse, error) {
	if len(req.Relationships) == 0 {
		return nil, xerrors.Newf(xerrors.KindInvalidArgument, "write requires at least one relationship").
			WithOp(string(transport.OpWrite))
	}
	return call[transport.WriteResponse](ctx, cl, transport.OpWrite, req)
}

// WriteBatch 批量写入，Results[i] 对应 Writes[i]
func (cl *Client) WriteBatch(ctx context.Context, req *transport.WriteBatchRequest) (*transport.WriteBatchResponse, error) {
	if len(req.Writes) == 0 {
		return &transport.WriteBatchResponse{}, nil
	}
	return call[transport.WriteBatchResponse](ctx, cl, transport.OpWriteBatch, req)
}

// Delete 按过滤条件删除关系。空过滤条件会被拒绝。
func (cl *Client) Delete(ctx context.Context, req *transport.DeleteRequest) (*transport.DeleteResponse, error) {
	if req.Filter == (transport.RelationshipFilter{}) {
		return nil, xerrors.Newf(xerrors.KindInvalidArgument, "delete requires a non-empty filter").
			WithOp(string(transport.OpDelete))
	}
	return call[transport.DeleteResponse](ctx, cl, transport.OpDelete, req)
}

func (cl *Client) ListRelationships(ctx context.Context, req *transport.ListRelationshipsRequest) (*transport.ListRelationshipsResponse, error) {
	return call[transport.ListRelationshipsResponse](ctx, cl, transport.OpListRelationships, req)
}

func (cl *Client) ListResources(ctx context.Context, req *transport.ListResourcesRequest) (*transport.ListResourcesResponse, error) {
	return call[transport.ListResourcesResponse](ctx, cl, transport.OpListResources, req)
}

func (cl *Client) ListSubjects(ctx context.Context, req *transport.ListSubjectsRequest) (*transport.ListSubjectsResponse, error) {
	return call[transport.ListSubjectsResponse](ctx, cl, transport.OpListSubjects, req)
}

// Simulate 在假设的关系变更下评估权限，不落库
func (cl *Client) Simulate(ctx context.Context, req *transport.SimulateRequest) (*transport.SimulateResponse, error) {
	if err := req.Check.Validate(); err != nil {
		return nil, err
	}
	return call[transport.SimulateResponse](ctx, cl, transport.OpSimulate, req)
}

// Health 经完整管道做一次健康检查，受熔断、重试和降级约束
func (cl *Client) Health(ctx context.Context) error {
	_, err := call[struct{}](ctx, cl, transport.OpHealth, nil)
	return err
}

// EachRelationship 逐页读取全部匹配的关系，fn 返回错误时停止
func (cl *Client) EachRelationship(ctx context.Context, req transport.ListRelationshipsRequest, fn func(transport.Relationship) error) error {
	return each(func(cursor string) ([]transport.Relationship, string, error) {
		req.Page.Cursor = cursor
		resp, err := cl.ListRelationships(ctx, &req)
		if err != nil {
			return nil, "", err
		}
		return resp.Items, resp.NextCursor, nil
	}, req.Page.Cursor, fn)
}

// EachResource 逐页读取主体拥有权限的全部资源
func (cl *Client) EachResource(ctx context.Context, req transport.ListResourcesRequest, fn func(transport.ObjectRef) error) error {
	return each(func(cursor string) ([]transport.ObjectRef, string, error) {
		req.Page.Cursor = cursor
		resp, err := cl.ListResources(ctx, &req)
		if err != nil {
			return nil, "", err
		}
		return resp.Items, resp.NextCursor, nil
	}, req.Page.Cursor, fn)
}

// EachSubject 逐页读取对资源拥有权限的全部主体
func (cl *Client) EachSubject(ctx context.Context, req transport.ListSubjectsRequest, fn func(transport.SubjectRef) error) error {
	return each(func(cursor string) ([]transport.SubjectRef, string, error) {
		req.Page.Cursor = cursor
		resp, err := cl.ListSubjects(ctx, &req)
		if err != nil {
			return nil, "", err
		}
		return resp.Items, resp.NextCursor, nil
	}, req.Page.Cursor, fn)
}

func each[T any](page func(cursor string) ([]T, string, error), cursor string, fn func(T) error) error {
	for {
		items, next, err := page(cursor)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := fn(it); err != nil {
				return err
			}
		}
		// 游标不前进时停止
		if next == "" || next == cursor {
			return nil
		}
		cursor = next
	}
}
