package audit

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/xerrors"
)

// Sink 审计事件输出
type Sink interface {
	Publish(ctx context.Context, ev *Event) error
	Close() error
}

// logSink 把事件写成一条结构化日志
type logSink struct {
	logger clog.Logger
}

// NewLogSink 创建日志输出
func NewLogSink(logger clog.Logger) Sink {
	if logger == nil {
		logger = clog.Discard()
	}
	return &logSink{logger: logger}
}

func (s *logSink) Publish(ctx context.Context, ev *Event) error {
	fields := []clog.Field{
		clog.String("event_id", ev.ID),
		clog.String("operation", ev.Operation),
		clog.String("outcome", ev.Outcome),
		clog.Duration("duration", ev.Duration),
	}
	if ev.Transport != "" {
		fields = append(fields, clog.String("transport", ev.Transport), clog.Bool("fallback", ev.Fallback))
	}
	if ev.Cache != "" {
		fields = append(fields, clog.String("cache", ev.Cache))
	}
	if ev.RequestID != "" {
		fields = append(fields, clog.String("request_id", ev.RequestID))
	}
	if ev.ErrorKind != "" {
		fields = append(fields, clog.String("error_kind", ev.ErrorKind), clog.String("error", ev.Error))
	}
	if ev.Subject != "" {
		fields = append(fields,
			clog.String("subject", ev.Subject),
			clog.String("permission", ev.Permission),
			clog.String("resource", ev.Resource))
	}
	if ev.Allowed != nil {
		fields = append(fields, clog.Bool("allowed", *ev.Allowed))
	}
	if ev.Relationships > 0 {
		fields = append(fields, clog.Int("relationships", ev.Relationships))
	}
	s.logger.InfoContext(ctx, "authz audit", fields...)
	return nil
}

func (s *logSink) Close() error {
	return nil
}

// natsSink 发布到 NATS Core 主题，消息头携带追踪上下文
type natsSink struct {
	conn     *nats.Conn
	subject  string
	encoding string
	tracer   oteltrace.Tracer
	owned    bool
}

// NewNATSSink 基于已有连接创建 NATS 输出，Close 不会关闭该连接
func NewNATSSink(nc *nats.Conn, subject, encoding string, tracer oteltrace.Tracer) Sink {
	return &natsSink{conn: nc, subject: subject, encoding: encoding, tracer: tracer}
}

func dialNATS(cfg *Config, tracer oteltrace.Tracer, logger clog.Logger) (*natsSink, error) {
	if cfg.NATS.URL == "" {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "nats.url is required")
	}
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.Name),
		nats.Timeout(cfg.NATS.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("audit nats disconnected", clog.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("audit nats reconnected", clog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, xerrors.E(xerrors.KindConnection, err, "connect nats "+cfg.NATS.URL)
	}
	return &natsSink{
		conn:     nc,
		subject:  cfg.NATS.Subject,
		encoding: cfg.Encoding,
		tracer:   tracer,
		owned:    true,
	}, nil
}

func (s *natsSink) Publish(ctx context.Context, ev *Event) error {
	data, err := encode(s.encoding, ev)
	if err != nil {
		return err
	}

	_, span, headers := trace.StartProducerSpan(ctx, s.tracer, s.subject)
	defer span.End()

	msg := nats.NewMsg(s.subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	msg.Header.Set("content-type", contentType(s.encoding))
	if ev.RequestID != "" {
		msg.Header.Set("x-request-id", ev.RequestID)
	}

	if err := s.conn.PublishMsg(msg); err != nil {
		err = xerrors.E(xerrors.KindUnavailable, err, "publish audit event")
		trace.MarkSpanError(span, err)
		return err
	}
	return nil
}

func (s *natsSink) Close() error {
	if !s.owned {
		return nil
	}
	// Drain 会把缓冲中的事件发出后再关闭
	return s.conn.Drain()
}

func encode(encoding string, ev *Event) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if encoding == "msgpack" {
		b, err = msgpack.Marshal(ev)
	} else {
		b, err = json.Marshal(ev)
	}
	if err != nil {
		return nil, xerrors.E(xerrors.KindInternal, err, "encode audit event")
	}
	return b, nil
}

// Decode 解码 NATS 消息体，供消费方使用
func Decode(encoding string, data []byte) (*Event, error) {
	ev := &Event{}
	var err error
	if encoding == "msgpack" {
		err = msgpack.Unmarshal(data, ev)
	} else {
		err = json.Unmarshal(data, ev)
	}
	if err != nil {
		return nil, xerrors.E(xerrors.KindProtocol, err, "decode audit event")
	}
	return ev, nil
}

func contentType(encoding string) string {
	if encoding == "msgpack" {
		return "application/msgpack"
	}
	return "application/json"
}
