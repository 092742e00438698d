package grpctransport

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 鉴权服务的 gRPC 服务名
const ServiceName = "authz.v1.AuthorizationService"

// 方法全名
const (
	MethodEvaluate                = "/" + ServiceName + "/Evaluate"
	MethodEvaluateBatch           = "/" + ServiceName + "/EvaluateBatch"
	MethodWriteRelationships      = "/" + ServiceName + "/WriteRelationships"
	MethodWriteRelationshipsBatch = "/" + ServiceName + "/WriteRelationshipsBatch"
	MethodDeleteRelationships     = "/" + ServiceName + "/DeleteRelationships"
	MethodSimulate                = "/" + ServiceName + "/Simulate"
	MethodHealth                  = "/" + ServiceName + "/Health"
	MethodListRelationships       = "/" + ServiceName + "/ListRelationships"
	MethodListResources           = "/" + ServiceName + "/ListResources"
	MethodListSubjects            = "/" + ServiceName + "/ListSubjects"
)

// 元数据键
const (
	MetadataRequestID  = "x-request-id"
	MetadataRetryAfter = "retry-after"
)

// ToStruct 把带 json 标签的 Go 值编码为 google.protobuf.Struct
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FromStruct 把 google.protobuf.Struct 解码到带 json 标签的 Go 值
func FromStruct(s *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
