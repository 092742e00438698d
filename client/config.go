package client

import (
	"context"

	"github.com/ceyewan/authzkit/audit"
	"github.com/ceyewan/authzkit/auth"
	"github.com/ceyewan/authzkit/breaker"
	"github.com/ceyewan/authzkit/cache"
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/config"
	"github.com/ceyewan/authzkit/dispatch"
	"github.com/ceyewan/authzkit/internal/tlsutil"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/ratelimit"
	"github.com/ceyewan/authzkit/retry"
	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/transport/grpctransport"
	"github.com/ceyewan/authzkit/transport/resttransport"
)

// Config 客户端完整配置，对应配置文件的顶层结构
//
//	strategy: prefer_grpc
//	timeout: 10s
//	grpc:
//	  address: "authz.internal:50051"
//	rest:
//	  base_url: "https://authz.internal"
//	pool:
//	  max_conns: 64
//	tls:
//	  ca_file: "/etc/authz/ca.pem"
//	retry:
//	  max_retries: 3
//	cache:
//	  driver: local
type Config struct {
	// strategy、fallback_triggers、timeout、shutdown_grace 位于顶层
	Dispatch dispatch.Config `json:"dispatch" yaml:"dispatch" mapstructure:",squash"`

	GRPC grpctransport.Config `json:"grpc" yaml:"grpc" mapstructure:"grpc"`
	REST resttransport.Config `json:"rest" yaml:"rest" mapstructure:"rest"`

	// Pool REST 连接池，rest.pool 中设置的字段优先
	Pool resttransport.PoolConfig `json:"pool" yaml:"pool" mapstructure:"pool"`
	TLS  tlsutil.Config           `json:"tls" yaml:"tls" mapstructure:"tls"`

	Retry   retry.Config   `json:"retry" yaml:"retry" mapstructure:"retry"`
	Breaker breaker.Config `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
	Trace   TraceConfig    `json:"trace" yaml:"trace" mapstructure:"trace"`

	RateLimit ratelimit.Config `json:"ratelimit" yaml:"ratelimit" mapstructure:"ratelimit"`
	Cache     cache.Config     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Auth      auth.Config      `json:"auth" yaml:"auth" mapstructure:"auth"`
	Audit     audit.Config     `json:"audit" yaml:"audit" mapstructure:"audit"`

	// Headers 每次调用附带的固定出站头
	Headers map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`

	Log     clog.Config    `json:"log" yaml:"log" mapstructure:"log"`
	Metrics metrics.Config `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// TraceConfig 链路追踪配置。Formats 总是生效；Export 为 true 时由客户端初始化全局 TracerProvider。
type TraceConfig struct {
	trace.Config `mapstructure:",squash"`

	Export bool `json:"export" yaml:"export" mapstructure:"export"`
}

// DefaultConfig 返回默认配置，未配置任何传输地址
func DefaultConfig() *Config {
	return &Config{
		Dispatch: dispatch.DefaultConfig(),
		Pool:     resttransport.DefaultPoolConfig(),
		Retry:    retry.DefaultConfig(),
		Breaker:  *breaker.DefaultConfig(),
		Trace:    TraceConfig{Config: *trace.DefaultConfig("authzkit")},
		Cache:    cache.Config{Driver: cache.DriverNone},
		Audit:    audit.Config{Sink: audit.SinkNone},
		Log:      *clog.NewProdDefaultConfig(),
	}
}

// DefaultSettings 以配置键的形式返回默认值，供 config.WithDefaults 使用
func DefaultSettings() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"strategy":                       d.Dispatch.Strategy,
		"timeout":                        d.Dispatch.Timeout,
		"shutdown_grace":                 d.Dispatch.ShutdownGrace,
		"pool.max_conns":                 d.Pool.MaxConns,
		"pool.max_idle_per_host":         d.Pool.MaxIdlePerHost,
		"pool.idle_timeout":              d.Pool.IdleTimeout,
		"pool.handshake_timeout":         d.Pool.HandshakeTimeout,
		"pool.http_version":              d.Pool.HTTPVersion,
		"retry.max_retries":              d.Retry.MaxRetries,
		"retry.initial_delay":            d.Retry.InitialDelay,
		"retry.max_delay":                d.Retry.MaxDelay,
		"retry.multiplier":               d.Retry.Multiplier,
		"retry.jitter":                   d.Retry.Jitter,
		"retry.retry_on_timeout":         d.Retry.RetryOnTimeout,
		"retry.retry_on_connection":      d.Retry.RetryOnConnection,
		"breaker.failure_threshold":      d.Breaker.FailureThreshold,
		"breaker.success_threshold":      d.Breaker.SuccessThreshold,
		"breaker.timeout":                d.Breaker.Timeout,
		"breaker.minimum_requests":       d.Breaker.MinimumRequests,
		"breaker.failure_rate_threshold": d.Breaker.FailureRateThreshold,
		"trace.service_name":             d.Trace.ServiceName,
		"trace.endpoint":                 d.Trace.Endpoint,
		"trace.sampler":                  d.Trace.Sampler,
		"trace.formats":                  d.Trace.Formats,
		"cache.driver":                   d.Cache.Driver,
		"audit.sink":                     d.Audit.Sink,
		"log.level":                      d.Log.Level,
		"log.format":                     d.Log.Format,
		"log.output":                     d.Log.Output,
	}
}

// LoadConfig 在默认值之上依次叠加配置文件、.env 和 AUTHZ_ 前缀的环境变量。
// 返回的 Loader 可用于 Watch 配置变化。
func LoadConfig(ctx context.Context, lc *config.Config, opts ...config.Option) (*Config, config.Loader, error) {
	cfg := &Config{}
	opts = append([]config.Option{config.WithDefaults(DefaultSettings())}, opts...)
	l, err := config.Load(ctx, lc, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

// restConfig 返回合并了顶层连接池的 REST 配置，rest.pool 中的非零字段优先
func (c *Config) restConfig() resttransport.Config {
	rc := c.REST
	p, own := c.Pool, c.REST.Pool
	if own.MaxConns > 0 {
		p.MaxConns = own.MaxConns
	}
	if own.MaxIdlePerHost > 0 {
		p.MaxIdlePerHost = own.MaxIdlePerHost
	}
	if own.IdleTimeout > 0 {
		p.IdleTimeout = own.IdleTimeout
	}
	if own.HandshakeTimeout > 0 {
		p.HandshakeTimeout = own.HandshakeTimeout
	}
	if own.HTTPVersion != "" {
		p.HTTPVersion = own.HTTPVersion
	}
	if own.Keepalive > 0 {
		p.Keepalive = own.Keepalive
	}
	rc.Pool = p
	return rc
}
