package audit

import (
	"time"
)

// Outcome 调用结果
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Event 一次调用的审计记录
type Event struct {
	ID        string        `json:"id" msgpack:"id"`
	Time      time.Time     `json:"time" msgpack:"time"`
	Operation string        `json:"operation" msgpack:"operation"`
	Outcome   string        `json:"outcome" msgpack:"outcome"`
	ErrorKind string        `json:"error_kind,omitempty" msgpack:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty" msgpack:"error,omitempty"`
	Transport string        `json:"transport,omitempty" msgpack:"transport,omitempty"`
	Fallback  bool          `json:"fallback,omitempty" msgpack:"fallback,omitempty"`
	Cache     string        `json:"cache,omitempty" msgpack:"cache,omitempty"`
	RequestID string        `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
	TraceID   string        `json:"trace_id,omitempty" msgpack:"trace_id,omitempty"`
	Duration  time.Duration `json:"duration_ns" msgpack:"duration_ns"`

	// check 操作的决策内容
	Subject    string `json:"subject,omitempty" msgpack:"subject,omitempty"`
	Permission string `json:"permission,omitempty" msgpack:"permission,omitempty"`
	Resource   string `json:"resource,omitempty" msgpack:"resource,omitempty"`
	Allowed    *bool  `json:"allowed,omitempty" msgpack:"allowed,omitempty"`

	// 写操作涉及的关系数量
	Relationships int `json:"relationships,omitempty" msgpack:"relationships,omitempty"`
}
