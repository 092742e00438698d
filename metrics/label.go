package metrics

// Label 指标标签
//
// 标签键使用小写字母和下划线，取值应当是有限集合（操作名、传输类型、错误类型），
// 不要把请求 ID、主体 ID 之类的高基数值放进标签。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数
//
//	counter.Inc(ctx, metrics.L("operation", "check"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
