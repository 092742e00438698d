package transport

import (
	"strings"

	"github.com/ceyewan/authzkit/xerrors"
)

// ObjectRef 对象引用，文本形式为 "type:id"
type ObjectRef struct {
	Type string `json:"type" msgpack:"type"`
	ID   string `json:"id" msgpack:"id"`
}

func (o ObjectRef) String() string {
	return o.Type + ":" + o.ID
}

// IsZero 报告引用是否为空
func (o ObjectRef) IsZero() bool {
	return o.Type == "" && o.ID == ""
}

// ParseObjectRef 解析 "type:id"
func ParseObjectRef(s string) (ObjectRef, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok || typ == "" || id == "" {
		return ObjectRef{}, xerrors.Newf(xerrors.KindInvalidArgument, "malformed object reference %q", s)
	}
	return ObjectRef{Type: typ, ID: id}, nil
}

// SubjectRef 主体引用，文本形式为 "type:id" 或主体集合 "type:id#relation"
type SubjectRef struct {
	Object   ObjectRef `json:"object" msgpack:"object"`
	Relation string    `json:"relation,omitempty" msgpack:"relation,omitempty"`
}

func (s SubjectRef) String() string {
	if s.Relation == "" {
		return s.Object.String()
	}
	return s.Object.String() + "#" + s.Relation
}

// ParseSubjectRef 解析 "type:id" 或 "type:id#relation"
func ParseSubjectRef(s string) (SubjectRef, error) {
	obj, rel, _ := strings.Cut(s, "#")
	ref, err := ParseObjectRef(obj)
	if err != nil {
		return SubjectRef{}, err
	}
	return SubjectRef{Object: ref, Relation: rel}, nil
}

// Relationship 关系元组 resource#relation@subject
type Relationship struct {
	Resource ObjectRef  `json:"resource" msgpack:"resource"`
	Relation string     `json:"relation" msgpack:"relation"`
	Subject  SubjectRef `json:"subject" msgpack:"subject"`
}

func (r Relationship) String() string {
	return r.Resource.String() + "#" + r.Relation + "@" + r.Subject.String()
}

// ParseRelationship 解析 "type:id#relation@subject"
func ParseRelationship(s string) (Relationship, error) {
	left, subj, ok := strings.Cut(s, "@")
	if !ok {
		return Relationship{}, xerrors.Newf(xerrors.KindInvalidArgument, "malformed relationship %q", s)
	}
	res, rel, ok := strings.Cut(left, "#")
	if !ok || rel == "" {
		return Relationship{}, xerrors.Newf(xerrors.KindInvalidArgument, "malformed relationship %q", s)
	}
	resource, err := ParseObjectRef(res)
	if err != nil {
		return Relationship{}, err
	}
	subject, err := ParseSubjectRef(subj)
	if err != nil {
		return Relationship{}, err
	}
	return Relationship{Resource: resource, Relation: rel, Subject: subject}, nil
}

// RelationshipFilter 关系过滤条件，空字段表示不限制
type RelationshipFilter struct {
	ResourceType string `json:"resource_type,omitempty" msgpack:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty" msgpack:"resource_id,omitempty"`
	Relation     string `json:"relation,omitempty" msgpack:"relation,omitempty"`
	SubjectType  string `json:"subject_type,omitempty" msgpack:"subject_type,omitempty"`
	SubjectID    string `json:"subject_id,omitempty" msgpack:"subject_id,omitempty"`
}

// Matches 报告关系是否满足过滤条件
func (f RelationshipFilter) Matches(r Relationship) bool {
	return match(f.ResourceType, r.Resource.Type) &&
		match(f.ResourceID, r.Resource.ID) &&
		match(f.Relation, r.Relation) &&
		match(f.SubjectType, r.Subject.Object.Type) &&
		match(f.SubjectID, r.Subject.Object.ID)
}

func match(want, got string) bool {
	return want == "" || want == got
}

// CheckRequest 权限评估请求
type CheckRequest struct {
	Subject    SubjectRef     `json:"subject" msgpack:"subject"`
	Permission string         `json:"permission" msgpack:"permission"`
	Resource   ObjectRef      `json:"resource" msgpack:"resource"`
	Context    map[string]any `json:"context,omitempty" msgpack:"context,omitempty"`
	// Consistency 一致性令牌，要求读取至少与该令牌一样新
	Consistency string `json:"consistency,omitempty" msgpack:"consistency,omitempty"`
}

// Validate 校验必填字段
func (r *CheckRequest) Validate() error {
	if r.Subject.Object.IsZero() || r.Resource.IsZero() || r.Permission == "" {
		return xerrors.Newf(xerrors.KindInvalidArgument, "check requires subject, permission and resource")
	}
	return nil
}

// CheckResponse 评估结果。Allowed 为 false 不是错误。
type CheckResponse struct {
	Allowed   bool   `json:"allowed" msgpack:"allowed"`
	Reason    string `json:"reason,omitempty" msgpack:"reason,omitempty"`
	CheckedAt string `json:"checked_at,omitempty" msgpack:"checked_at,omitempty"`
	RequestID string `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}

type CheckBatchRequest struct {
	Items []CheckRequest `json:"items" msgpack:"items"`
}

// CheckBatchResponse Results[i] 对应 Items[i]
type CheckBatchResponse struct {
	Results   []CheckResponse `json:"results" msgpack:"results"`
	RequestID string          `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}

type WriteRequest struct {
	Relationships []Relationship `json:"relationships" msgpack:"relationships"`
}

// WriteResponse 携带写入后的一致性令牌
type WriteResponse struct {
	ConsistencyToken string `json:"consistency_token" msgpack:"consistency_token"`
	RequestID        string `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}

type WriteBatchRequest struct {
	Writes []WriteRequest `json:"writes" msgpack:"writes"`
}

type WriteBatchResponse struct {
	Results   []WriteResponse `json:"results" msgpack:"results"`
	RequestID string          `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}

type DeleteRequest struct {
	Filter RelationshipFilter `json:"filter" msgpack:"filter"`
}

type DeleteResponse struct {
	Deleted          int    `json:"deleted" msgpack:"deleted"`
	ConsistencyToken string `json:"consistency_token" msgpack:"consistency_token"`
	RequestID        string `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}

// Page 分页参数，Cursor 为空表示从头开始
type Page struct {
	Cursor string `json:"cursor,omitempty" msgpack:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

type ListRelationshipsRequest struct {
	Filter      RelationshipFilter `json:"filter" msgpack:"filter"`
	Page        Page               `json:"page" msgpack:"page"`
	Consistency string             `json:"consistency,omitempty" msgpack:"consistency,omitempty"`
}

// ListRelationshipsResponse NextCursor 为空表示没有更多结果
type ListRelationshipsResponse struct {
	Items      []Relationship `json:"items" msgpack:"items"`
	NextCursor string         `json:"next_cursor,omitempty" msgpack:"next_cursor,omitempty"`
}

// ListResourcesRequest 列出主体拥有某权限的资源
type ListResourcesRequest struct {
	ResourceType string     `json:"resource_type" msgpack:"resource_type"`
	Permission   string     `json:"permission" msgpack:"permission"`
	Subject      SubjectRef `json:"subject" msgpack:"subject"`
	Page         Page       `json:"page" msgpack:"page"`
	Consistency  string     `json:"consistency,omitempty" msgpack:"consistency,omitempty"`
}

type ListResourcesResponse struct {
	Items      []ObjectRef `json:"items" msgpack:"items"`
	NextCursor string      `json:"next_cursor,omitempty" msgpack:"next_cursor,omitempty"`
}

// ListSubjectsRequest 列出对资源拥有某权限的主体
type ListSubjectsRequest struct {
	Resource    ObjectRef `json:"resource" msgpack:"resource"`
	Permission  string    `json:"permission" msgpack:"permission"`
	SubjectType string    `json:"subject_type" msgpack:"subject_type"`
	Page        Page      `json:"page" msgpack:"page"`
	Consistency string    `json:"consistency,omitempty" msgpack:"consistency,omitempty"`
}

type ListSubjectsResponse struct {
	Items      []SubjectRef `json:"items" msgpack:"items"`
	NextCursor string       `json:"next_cursor,omitempty" msgpack:"next_cursor,omitempty"`
}

// SimulateRequest 在 Relationships 临时生效的前提下评估 Check
type SimulateRequest struct {
	Check         CheckRequest   `json:"check" msgpack:"check"`
	Relationships []Relationship `json:"relationships" msgpack:"relationships"`
}

type SimulateResponse struct {
	Allowed   bool   `json:"allowed" msgpack:"allowed"`
	Reason    string `json:"reason,omitempty" msgpack:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}
