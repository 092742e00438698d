package breaker

import (
	"slices"

	"github.com/ceyewan/authzkit/xerrors"
)

// DefaultFailureKinds 默认计入熔断的错误类型：都是后端不健康的信号。
// NotFound、InvalidArgument 等说明后端正常应答，不计入失败。
var DefaultFailureKinds = []xerrors.Kind{
	xerrors.KindConnection,
	xerrors.KindUnavailable,
	xerrors.KindTimeout,
	xerrors.KindInternal,
	xerrors.KindUnknown,
}

// FailurePredicate 判定错误是否计入熔断：Include 减去 Exclude
type FailurePredicate struct {
	Include []xerrors.Kind
	Exclude []xerrors.Kind
}

// NewFailurePredicate 由配置中的类型名称构造谓词，include 为空时使用 DefaultFailureKinds
func NewFailurePredicate(include, exclude []string) (FailurePredicate, error) {
	var p FailurePredicate
	for _, name := range include {
		k, ok := xerrors.ParseKind(name)
		if !ok {
			return p, xerrors.Wrapf(xerrors.ErrInvalidKind, "breaker include %q", name)
		}
		p.Include = append(p.Include, k)
	}
	if len(p.Include) == 0 {
		p.Include = slices.Clone(DefaultFailureKinds)
	}
	for _, name := range exclude {
		k, ok := xerrors.ParseKind(name)
		if !ok {
			return p, xerrors.Wrapf(xerrors.ErrInvalidKind, "breaker exclude %q", name)
		}
		p.Exclude = append(p.Exclude, k)
	}
	return p, nil
}

// Classifies 报告该类型是否计入失败
func (p FailurePredicate) Classifies(kind xerrors.Kind) bool {
	return slices.Contains(p.Include, kind) && !slices.Contains(p.Exclude, kind)
}

// IsFailure 报告错误是否计入失败，nil 永远不是失败
func (p FailurePredicate) IsFailure(err error) bool {
	if err == nil {
		return false
	}
	return p.Classifies(xerrors.KindOf(err))
}
