// Package config 提供客户端配置的加载与热更新，基于 Viper 实现。
//
// 特性：
//   - 多源配置加载：YAML/JSON 文件、环境变量、.env 文件
//   - 配置优先级：环境变量 > .env > 环境特定配置 > 基础配置 > 默认值
//   - 热更新：监听配置文件变化，按 key 通知
//   - 结构体驱动的环境变量绑定：Unmarshal 时按 mapstructure 标签绑定
//     AUTHZ_<SECTION>_<FIELD>，无需在配置文件中出现该 key
//
// 基本使用：
//
//	var cfg client.Config
//	loader, err := config.Load(ctx, &config.Config{Name: "authz"}, &cfg,
//		config.WithDefaults(client.DefaultSettings()))
//
//	// 监听配置变化
//	ch, _ := loader.Watch(ctx, "log.level")
//	for event := range ch {
//		logger.Info("config changed", clog.String("key", event.Key))
//	}
//
// 设置 AUTHZ_ENV=prod 时会额外合并 authz.prod.yaml。
package config

import (
	"context"
	"time"
)

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 加载配置并开始监听文件变化
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听配置变化，通过 context 取消监听。
	// key 为空时任意变化都会通知，Value 为全部配置。
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error

	// ConfigFileUsed 返回实际读取的配置文件，未找到时为空
	ConfigFileUsed() string
}

// Event 配置变更事件
type Event struct {
	Key       string // 配置 key
	Value     any    // 新值
	OldValue  any    // 旧值
	Source    string // "file"
	Timestamp time.Time
}
