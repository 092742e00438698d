// Package grpctransport 是鉴权服务的 gRPC 传输实现。
//
// 消息统一使用 google.protobuf.Struct 承载，typed 请求经 JSON 标签桥接；
// 三个列表操作使用服务端流。调用错误通过 MapError 翻译为统一错误类型。
package grpctransport

import (
	"context"
	"crypto/tls"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// Config gRPC 传输配置
type Config struct {
	// Address 后端地址，支持 gRPC target 语法
	Address string `mapstructure:"address"`

	// Authority 覆盖 :authority 头，为空时使用 Address
	Authority string `mapstructure:"authority"`

	// Keepalive 空闲时发送 ping 的间隔，0 表示关闭
	Keepalive time.Duration `mapstructure:"keepalive"`

	// KeepaliveTimeout 等待 ping 应答的时长（默认：20s）
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`

	// MaxRecvMsgSize 单条消息的最大字节数，0 使用 gRPC 默认值
	MaxRecvMsgSize int `mapstructure:"max_recv_msg_size"`
}

func (c *Config) setDefaults() {
	if c.Keepalive > 0 && c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = 20 * time.Second
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return xerrors.Newf(xerrors.KindConfiguration, "grpc address is required")
	}
	return nil
}

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger      clog.Logger
	tls         *tls.Config
	dialOptions []grpc.DialOption
	tracing     bool
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "grpc"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("grpc")
		}
	}
}

// WithTLS 使用 TLS 连接，未设置时使用明文
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) {
		o.tls = cfg
	}
}

// WithDialOptions 追加 gRPC 拨号选项，例如测试中的 bufconn 拨号器
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithTracing 是否挂载 otelgrpc 客户端插桩（默认开启）
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracing = enabled
	}
}

// Transport gRPC 传输
type Transport struct {
	cfg    Config
	conn   *grpc.ClientConn
	logger clog.Logger
	stats  transport.Stats
	closed atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 gRPC 传输。连接是惰性建立的，后端不可达时首次调用返回 Unavailable。
func New(cfg *Config, opts ...Option) (*Transport, error) {
	if cfg == nil {
		return nil, xerrors.Newf(xerrors.KindConfiguration, "grpc config is nil")
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

	dialOpts := []grpc.DialOption{grpc.WithUserAgent(transport.UserAgent())}
	if o.tls != nil {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(o.tls)))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if c.Authority != "" {
		dialOpts = append(dialOpts, grpc.WithAuthority(c.Authority))
	}
	if c.Keepalive > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.Keepalive,
			Timeout:             c.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	if c.MaxRecvMsgSize > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(c.MaxRecvMsgSize)))
	}
	if o.tracing {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(trace.GRPCClientStatsHandler()))
	}
	dialOpts = append(dialOpts, o.dialOptions...)

	conn, err := grpc.NewClient(c.Address, dialOpts...)
	if err != nil {
		return nil, xerrors.E(xerrors.KindConfiguration, err, "create grpc client")
	}

	o.logger.Info("grpc transport created",
		clog.String("address", c.Address),
		clog.Bool("tls", o.tls != nil),
		clog.Duration("keepalive", c.Keepalive))

	return &Transport{cfg: c, conn: conn, logger: o.logger}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindGRPC }

func (t *Transport) Endpoint() string { return t.cfg.Address }

func (t *Transport) Stats() transport.StatsSnapshot { return t.stats.Snapshot() }

// Close 关闭连接，重复调用安全
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.logger.Info("grpc transport closed", clog.String("address", t.cfg.Address))
	return t.conn.Close()
}

// outgoing 把出站请求头写入 gRPC 元数据，跳过保留头
func outgoing(ctx context.Context) context.Context {
	headers := transport.OutboundHeaders(ctx)
	if len(headers) == 0 {
		return ctx
	}
	kv := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		if k == "user-agent" || strings.HasPrefix(k, ":") || strings.HasPrefix(k, "grpc-") {
			continue
		}
		kv = append(kv, k, v)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}
