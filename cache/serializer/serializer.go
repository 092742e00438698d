// Package serializer 提供缓存值的编解码
package serializer

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/authzkit/xerrors"
)

// ErrUnsupportedSerializer 不支持的序列化器类型
var ErrUnsupportedSerializer = xerrors.Newf(xerrors.KindConfiguration, "unsupported serializer type")

// Serializer 定义序列化接口
type Serializer interface {
	Name() string
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type jsonSerializer struct{}

func (jsonSerializer) Name() string                          { return "json" }
func (jsonSerializer) Marshal(v any) ([]byte, error)         { return json.Marshal(v) }
func (jsonSerializer) Unmarshal(data []byte, dest any) error { return json.Unmarshal(data, dest) }

type msgpackSerializer struct{}

func (msgpackSerializer) Name() string                          { return "msgpack" }
func (msgpackSerializer) Marshal(v any) ([]byte, error)         { return msgpack.Marshal(v) }
func (msgpackSerializer) Unmarshal(data []byte, dest any) error { return msgpack.Unmarshal(data, dest) }

// New 创建序列化器
//
// 支持的序列化器类型:
//   - "msgpack": 默认，体积更小
//   - "json": 便于用 redis-cli 直接查看
func New(name string) (Serializer, error) {
	switch name {
	case "msgpack", "":
		return msgpackSerializer{}, nil
	case "json":
		return jsonSerializer{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedSerializer, "%q", name)
	}
}
