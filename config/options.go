package config

import (
	"github.com/ceyewan/authzkit/clog"
)

// Option 加载器选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	defaults map[string]any
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "config"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("config")
		}
	}
}

// WithDefaults 设置默认值，key 使用点分路径，如 "retry.max_retries"
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		if o.defaults == nil {
			o.defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			o.defaults[k] = v
		}
	}
}
