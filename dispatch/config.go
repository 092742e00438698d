package dispatch

import (
	"strings"
	"time"

	"github.com/ceyewan/authzkit/xerrors"
)

// Strategy 传输选择策略
type Strategy string

const (
	// StrategyPreferGRPC 优先 gRPC，命中降级条件时改用 REST（默认）
	StrategyPreferGRPC Strategy = "prefer_grpc"
	// StrategyGRPCOnly 只使用 gRPC
	StrategyGRPCOnly Strategy = "grpc_only"
	// StrategyRESTOnly 只使用 REST
	StrategyRESTOnly Strategy = "rest_only"
)

// ParseStrategy 解析策略名称，大小写、连字符和下划线不敏感
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "", "prefergrpc":
		return StrategyPreferGRPC, nil
	case "grpconly", "grpc":
		return StrategyGRPCOnly, nil
	case "restonly", "rest":
		return StrategyRESTOnly, nil
	}
	return "", xerrors.Newf(xerrors.KindConfiguration, "unknown transport strategy %q", s)
}

// DefaultFallbackTriggers 默认的降级触发错误类型
func DefaultFallbackTriggers() []xerrors.Kind {
	return []xerrors.Kind{
		xerrors.KindConnection,
		xerrors.KindUnavailable,
		xerrors.KindTimeout,
		xerrors.KindCircuitOpen,
	}
}

// Config 调度器配置
type Config struct {
	// Strategy 传输选择策略（默认：prefer_grpc）
	Strategy string `json:"strategy" yaml:"strategy" mapstructure:"strategy"`

	// FallbackTriggers 触发降级的错误类型名称，为空时使用 DefaultFallbackTriggers
	FallbackTriggers []string `json:"fallback_triggers" yaml:"fallback_triggers" mapstructure:"fallback_triggers"`

	// Timeout 单次逻辑调用的总时限，覆盖重试和降级，0 表示只受调用方 ctx 约束
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// ShutdownGrace 关闭时等待在途调用的时长（默认：5s）
	ShutdownGrace time.Duration `json:"shutdown_grace" yaml:"shutdown_grace" mapstructure:"shutdown_grace"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Strategy:      string(StrategyPreferGRPC),
		Timeout:       10 * time.Second,
		ShutdownGrace: 5 * time.Second,
	}
}

func (c *Config) setDefaults() {
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
}

// parse 校验配置并解析策略和触发集合
func (c *Config) parse() (Strategy, map[xerrors.Kind]bool, error) {
	if c.Timeout < 0 {
		return "", nil, xerrors.Newf(xerrors.KindConfiguration, "timeout must not be negative")
	}
	strategy, err := ParseStrategy(c.Strategy)
	if err != nil {
		return "", nil, err
	}

	kinds := DefaultFallbackTriggers()
	if len(c.FallbackTriggers) > 0 {
		kinds = kinds[:0:0]
		for _, name := range c.FallbackTriggers {
			k, ok := xerrors.ParseKind(name)
			if !ok {
				return "", nil, xerrors.E(xerrors.KindConfiguration, xerrors.ErrInvalidKind, "fallback trigger "+name)
			}
			kinds = append(kinds, k)
		}
	}
	triggers := make(map[xerrors.Kind]bool, len(kinds))
	for _, k := range kinds {
		triggers[k] = true
	}
	return strategy, triggers, nil
}
