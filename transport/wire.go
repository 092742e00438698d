package transport

// 以下类型描述两种协议共用的 JSON 结构。后端可以乱序返回批量结果，
// 每个结果携带输入下标，由传输层调用 Reorder 恢复顺序。

// IndexedCheck 批量评估的单条结果
type IndexedCheck struct {
	Index int `json:"index"`
	CheckResponse
}

// IndexedWrite 批量写入的单条结果
type IndexedWrite struct {
	Index int `json:"index"`
	WriteResponse
}

// CheckBatchWire 批量评估的响应体
type CheckBatchWire struct {
	Results   []IndexedCheck `json:"results"`
	RequestID string         `json:"request_id,omitempty"`
}

// WriteBatchWire 批量写入的响应体
type WriteBatchWire struct {
	Results   []IndexedWrite `json:"results"`
	RequestID string         `json:"request_id,omitempty"`
}

// ListFrame 流式列表的一帧。最后一帧只携带 NextCursor（可能为空）。
type ListFrame struct {
	Relationship *Relationship `json:"relationship,omitempty"`
	Resource     *ObjectRef    `json:"resource,omitempty"`
	Subject      *SubjectRef   `json:"subject,omitempty"`
	NextCursor   string        `json:"next_cursor,omitempty"`
	Done         bool          `json:"done,omitempty"`
}

// ErrorBody REST 错误响应体
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthWire 健康检查响应体
type HealthWire struct {
	Status string `json:"status"`
}
