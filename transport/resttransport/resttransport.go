// Package resttransport 是鉴权服务的 REST/JSON 传输实现。
//
// 连接池、TLS 和 HTTP 协议版本由 Config 控制：
//   - http_version = "auto"：优先协商 HTTP/2，回退 HTTP/1.1
//   - http_version = "1.1"：禁用 HTTP/2
//   - http_version = "2"：只使用 HTTP/2，明文地址使用 h2c
//
// 非 2xx 响应通过 StatusKind 映射为统一错误类型，网络错误为 Connection 或 Timeout。
package resttransport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// HTTP 协议版本
const (
	HTTPVersionAuto = "auto"
	HTTPVersion11   = "1.1"
	HTTPVersion2    = "2"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	// MaxConns 每个主机的最大连接数，0 表示不限制
	MaxConns int `mapstructure:"max_conns"`

	// MaxIdlePerHost 每个主机的最大空闲连接数（默认：16）
	MaxIdlePerHost int `mapstructure:"max_idle_per_host"`

	// IdleTimeout 空闲连接的保留时长（默认：90s）
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// HandshakeTimeout TLS 握手超时（默认：10s）
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	// HTTPVersion auto、1.1 或 2（默认：auto）
	HTTPVersion string `mapstructure:"http_version"`

	// Keepalive TCP keepalive 间隔，同时作为 HTTP/2 ping 间隔（默认：30s）
	Keepalive time.Duration `mapstructure:"keepalive"`
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	p := PoolConfig{}
	p.setDefaults()
	return p
}

func (p *PoolConfig) setDefaults() {
	if p.MaxIdlePerHost <= 0 {
		p.MaxIdlePerHost = 16
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = 90 * time.Second
	}
	if p.HandshakeTimeout <= 0 {
		p.HandshakeTimeout = 10 * time.Second
	}
	if p.HTTPVersion == "" {
		p.HTTPVersion = HTTPVersionAuto
	}
	if p.Keepalive <= 0 {
		p.Keepalive = 30 * time.Second
	}
}

// Config REST 传输配置
type Config struct {
	// BaseURL 后端地址，例如 https://authz.internal:8443
	BaseURL string `mapstructure:"base_url"`

	// MaxBodyBytes 响应体上限（默认：8MiB）
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	Pool PoolConfig `mapstructure:"pool"`
}

func (c *Config) setDefaults() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 8 << 20
	}
	c.Pool.setDefaults()
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return xerrors.Newf(xerrors.KindConfiguration, "invalid rest base_url %q", c.BaseURL)
	}
	switch c.Pool.HTTPVersion {
	case HTTPVersionAuto, HTTPVersion11, HTTPVersion2:
	default:
		return xerrors.Newf(xerrors.KindConfiguration, "unsupported http_version %q", c.Pool.HTTPVersion)
	}
	return nil
}

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	tls       *tls.Config
	tracing   bool
	roundTrip http.RoundTripper
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "rest"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("rest")
		}
	}
}

// WithTLS 设置 TLS 配置，用于自定义 CA 和双向 TLS
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) {
		o.tls = cfg
	}
}

// WithTracing 是否使用 otelhttp 包装（默认开启）
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracing = enabled
	}
}

// WithRoundTripper 替换底层 RoundTripper，连接池配置将不再生效
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.roundTrip = rt
	}
}

// Transport REST 传输
type Transport struct {
	cfg    Config
	client *http.Client
	idle   func()
	logger clog.Logger
	stats  transport.Stats
	closed atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 REST 传输
func New(cfg *Config, opts ...Option) (*Transport, error) {
	if cfg == nil {
		return nil, xerrors.Newf(xerrors.KindConfiguration, "rest config is nil")
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := options{logger: clog.Discard(), tracing: true}
	for _, opt := range opts {
		opt(&o)
	}

	rt := o.roundTrip
	idle := func() {}
	if rt == nil {
		var err error
		rt, idle, err = newRoundTripper(&c, o.tls)
		if err != nil {
			return nil, err
		}
	}
	if o.tracing {
		rt = trace.HTTPTransport(rt)
	}

	o.logger.Info("rest transport created",
		clog.String("base_url", c.BaseURL),
		clog.String("http_version", c.Pool.HTTPVersion),
		clog.Int("max_conns", c.Pool.MaxConns))

	return &Transport{
		cfg:    c,
		client: &http.Client{Transport: rt},
		idle:   idle,
		logger: o.logger,
	}, nil
}

// newRoundTripper 按连接池配置构造 RoundTripper，返回关闭空闲连接的函数
func newRoundTripper(c *Config, tlsCfg *tls.Config) (http.RoundTripper, func(), error) {
	p := c.Pool
	dialer := &net.Dialer{Timeout: p.HandshakeTimeout, KeepAlive: p.Keepalive}

	if p.HTTPVersion == HTTPVersion2 {
		t2 := &http2.Transport{
			TLSClientConfig: tlsCfg,
			ReadIdleTimeout: p.Keepalive,
			IdleConnTimeout: p.IdleTimeout,
		}
		if strings.HasPrefix(c.BaseURL, "http://") {
			// h2c：明文 HTTP/2
			t2.AllowHTTP = true
			t2.DialTLSContext = func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			}
		}
		return t2, t2.CloseIdleConnections, nil
	}

	t1 := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     p.MaxConns,
		MaxIdleConns:        p.MaxIdlePerHost * 4,
		MaxIdleConnsPerHost: p.MaxIdlePerHost,
		IdleConnTimeout:     p.IdleTimeout,
		TLSHandshakeTimeout: p.HandshakeTimeout,
		TLSClientConfig:     tlsCfg,
	}
	if p.HTTPVersion == HTTPVersion11 {
		// 非 nil 的空表禁用 HTTP/2 升级
		t1.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		return t1, t1.CloseIdleConnections, nil
	}

	t1.ForceAttemptHTTP2 = true
	t2, err := http2.ConfigureTransports(t1)
	if err != nil {
		return nil, nil, xerrors.E(xerrors.KindConfiguration, err, "configure http2")
	}
	t2.ReadIdleTimeout = p.Keepalive
	return t1, t1.CloseIdleConnections, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindREST }

func (t *Transport) Endpoint() string { return t.cfg.BaseURL }

func (t *Transport) Stats() transport.StatsSnapshot { return t.stats.Snapshot() }

// Close 关闭空闲连接，重复调用安全
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.idle()
	t.logger.Info("rest transport closed", clog.String("base_url", t.cfg.BaseURL))
	return nil
}
