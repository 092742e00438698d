package transport

import "github.com/ceyewan/authzkit/xerrors"

// Reorder 按 index 把后端乱序返回的批量结果放回输入顺序。
// 结果数量不等于 n、下标越界或重复都视为协议错误。
func Reorder[T any](n int, items []T, index func(T) int) ([]T, error) {
	if len(items) != n {
		return nil, xerrors.Newf(xerrors.KindProtocol, "batch returned %d results for %d items", len(items), n)
	}
	out := make([]T, n)
	seen := make([]bool, n)
	for _, item := range items {
		i := index(item)
		if i < 0 || i >= n {
			return nil, xerrors.Newf(xerrors.KindProtocol, "batch result index %d out of range", i)
		}
		if seen[i] {
			return nil, xerrors.Newf(xerrors.KindProtocol, "duplicate batch result index %d", i)
		}
		seen[i] = true
		out[i] = item
	}
	return out, nil
}
