package auth

import (
	"time"

	"github.com/ceyewan/authzkit/clog"
)

// Option 配置选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
	now    func() time.Time
}

func defaultOptions() *options {
	return &options{
		logger: clog.Discard(),
		now:    time.Now,
	}
}

// WithLogger 设置日志记录器，内部会自动添加 namespace: "auth"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("auth")
		}
	}
}

// WithClock 替换时间源，测试中用于推进时间
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
