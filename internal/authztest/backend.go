// Package authztest 提供内存版鉴权后端，同时以 gRPC 和 REST 两种协议对外服务，
// 并支持按协议、按操作注入故障，用于传输、调度和客户端的测试。
//
// 权限模型：permission 映射到若干 relation，主体直接持有 relation，
// 或经由主体集合（例如 group:eng#member）间接持有。
package authztest

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

const maxDepth = 8

// Fault 注入的故障。Protocol、Operation 为空表示匹配全部。
type Fault struct {
	Protocol   transport.Kind
	Operation  transport.Operation
	Kind       xerrors.Kind
	Message    string
	RetryAfter time.Duration
	// Times 生效次数，<=0 表示一直生效
	Times int
}

// Backend 内存鉴权后端，并发安全
type Backend struct {
	mu            sync.Mutex
	relationships map[string]transport.Relationship
	permissions   map[string]map[string][]string // resource type -> permission -> relations
	revision      int64
	faults        []*Fault
	shuffle       bool
	latency       time.Duration
	calls         map[transport.Kind]map[transport.Operation]int
	headers       map[transport.Kind]map[string]string
	requestSeq    int64
}

// NewBackend 创建空后端
func NewBackend() *Backend {
	return &Backend{
		relationships: make(map[string]transport.Relationship),
		permissions:   make(map[string]map[string][]string),
		calls:         make(map[transport.Kind]map[transport.Operation]int),
		headers:       make(map[transport.Kind]map[string]string),
	}
}

// DefinePermission 定义资源类型上的权限由哪些关系授予。
// 未定义的权限按同名关系判定。
func (b *Backend) DefinePermission(resourceType, permission string, relations ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.permissions[resourceType] == nil {
		b.permissions[resourceType] = make(map[string][]string)
	}
	b.permissions[resourceType][permission] = slices.Clone(relations)
}

// Seed 直接写入关系，不经过故障注入和计数
func (b *Backend) Seed(rels ...transport.Relationship) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rels {
		b.relationships[r.String()] = r
	}
	b.revision++
	return b.token()
}

// Inject 注入故障，按注入顺序匹配
func (b *Backend) Inject(f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := f
	b.faults = append(b.faults, &cp)
}

// ClearFaults 清除全部故障
func (b *Backend) ClearFaults() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = nil
}

// SetShuffle 开启后批量结果按逆序返回，用于验证客户端的重排
func (b *Backend) SetShuffle(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shuffle = on
}

// SetLatency 每次调用前等待 d
func (b *Backend) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

// Calls 返回协议上某操作被调用的次数，op 为空时返回该协议的总次数
func (b *Backend) Calls(proto transport.Kind, op transport.Operation) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if op != "" {
		return b.calls[proto][op]
	}
	total := 0
	for _, n := range b.calls[proto] {
		total += n
	}
	return total
}

// LastHeaders 返回协议最近一次调用收到的请求头，键为小写
func (b *Backend) LastHeaders(proto transport.Kind) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[proto]
}

// Relationships 返回当前全部关系，按文本形式排序
func (b *Backend) Relationships() []transport.Relationship {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedLocked()
}

// begin 记录一次调用，返回请求 ID 和匹配的故障
func (b *Backend) begin(proto transport.Kind, op transport.Operation, headers map[string]string) (string, *Fault, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calls[proto] == nil {
		b.calls[proto] = make(map[transport.Operation]int)
	}
	b.calls[proto][op]++
	b.headers[proto] = headers
	b.requestSeq++
	reqID := "req-" + strconv.FormatInt(b.requestSeq, 10)

	for i, f := range b.faults {
		if (f.Protocol == "" || f.Protocol == proto) && (f.Operation == "" || f.Operation == op) {
			cp := *f
			if f.Times > 0 {
				f.Times--
				if f.Times == 0 {
					b.faults = slices.Delete(b.faults, i, i+1)
				}
			}
			return reqID, &cp, b.latency
		}
	}
	return reqID, nil, b.latency
}

// Do 执行一次操作，body 为 JSON 请求体。返回值可直接 JSON 编码作为响应。
func (b *Backend) Do(ctx context.Context, proto transport.Kind, op transport.Operation, headers map[string]string, body []byte) (any, string, error) {
	reqID, fault, latency := b.begin(proto, op, headers)
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, reqID, xerrors.FromContext(ctx.Err())
		}
	}
	if fault != nil {
		msg := fault.Message
		if msg == "" {
			msg = "injected " + fault.Kind.String()
		}
		return nil, reqID, &xerrors.Error{Kind: fault.Kind, Message: msg, RetryAfter: fault.RetryAfter, RequestID: reqID}
	}
	res, err := b.dispatch(op, body)
	return res, reqID, err
}

func decode[T any](body []byte) (*T, error) {
	var v T
	if len(body) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, xerrors.E(xerrors.KindInvalidArgument, err, "malformed request body")
	}
	return &v, nil
}

func (b *Backend) dispatch(op transport.Operation, body []byte) (any, error) {
	switch op {
	case transport.OpHealth:
		return transport.HealthWire{Status: "ok"}, nil
	case transport.OpCheck:
		req, err := decode[transport.CheckRequest](body)
		if err != nil {
			return nil, err
		}
		return b.check(req, nil)
	case transport.OpCheckBatch:
		req, err := decode[transport.CheckBatchRequest](body)
		if err != nil {
			return nil, err
		}
		return b.checkBatch(req)
	case transport.OpWrite:
		req, err := decode[transport.WriteRequest](body)
		if err != nil {
			return nil, err
		}
		return b.write(req)
	case transport.OpWriteBatch:
		req, err := decode[transport.WriteBatchRequest](body)
		if err != nil {
			return nil, err
		}
		return b.writeBatch(req)
	case transport.OpDelete:
		req, err := decode[transport.DeleteRequest](body)
		if err != nil {
			return nil, err
		}
		return b.delete(req)
	case transport.OpSimulate:
		req, err := decode[transport.SimulateRequest](body)
		if err != nil {
			return nil, err
		}
		resp, err := b.check(&req.Check, req.Relationships)
		if err != nil {
			return nil, err
		}
		return &transport.SimulateResponse{Allowed: resp.Allowed, Reason: resp.Reason}, nil
	case transport.OpListRelationships:
		req, err := decode[transport.ListRelationshipsRequest](body)
		if err != nil {
			return nil, err
		}
		return b.listRelationships(req)
	case transport.OpListResources:
		req, err := decode[transport.ListResourcesRequest](body)
		if err != nil {
			return nil, err
		}
		return b.listResources(req)
	case transport.OpListSubjects:
		req, err := decode[transport.ListSubjectsRequest](body)
		if err != nil {
			return nil, err
		}
		return b.listSubjects(req)
	default:
		return nil, xerrors.Newf(xerrors.KindProtocol, "unknown operation %q", op)
	}
}
