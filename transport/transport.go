// Package transport 定义鉴权服务的传输契约。
//
// gRPC 和 REST 两种实现（grpctransport、resttransport）提供相同的操作集合，
// 调度器只依赖 Transport 接口，不假设具体协议。所有传输层原生错误都在实现内部
// 翻译为 xerrors.Error，不会越过 Transport 边界。
//
// 每个实现都维护一份 Stats：进入方法时 Sent 加一，调用失败时 Failed 加一。
package transport

import "context"

// Kind 传输协议类型
type Kind string

const (
	KindGRPC Kind = "grpc"
	KindREST Kind = "rest"
)

func (k Kind) String() string {
	return string(k)
}

// Transport 鉴权服务的传输实现。所有方法并发安全。
type Transport interface {
	// Check 评估单个权限
	Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error)

	// CheckBatch 批量评估，结果顺序与输入一致
	CheckBatch(ctx context.Context, req *CheckBatchRequest) (*CheckBatchResponse, error)

	// Write 写入一组关系
	Write(ctx context.Context, req *WriteRequest) (*WriteResponse, error)

	// WriteBatch 批量写入，结果顺序与输入一致
	WriteBatch(ctx context.Context, req *WriteBatchRequest) (*WriteBatchResponse, error)

	// Delete 按过滤条件删除关系
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)

	ListRelationships(ctx context.Context, req *ListRelationshipsRequest) (*ListRelationshipsResponse, error)
	ListResources(ctx context.Context, req *ListResourcesRequest) (*ListResourcesResponse, error)
	ListSubjects(ctx context.Context, req *ListSubjectsRequest) (*ListSubjectsResponse, error)

	// Simulate 在假设的关系变更下评估权限，不落库
	Simulate(ctx context.Context, req *SimulateRequest) (*SimulateResponse, error)

	// HealthCheck 执行一次最小往返，只返回成功或失败
	HealthCheck(ctx context.Context) error

	// Stats 返回统计快照
	Stats() StatsSnapshot

	// Kind 返回协议类型
	Kind() Kind

	// Endpoint 返回后端地址，用作熔断路由键的一部分
	Endpoint() string

	// Close 释放连接，之后的调用返回 Unavailable
	Close() error
}
