package audit

import (
	"strings"
	"time"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// 审计输出
const (
	SinkNone = "none"
	SinkLog  = "log"
	SinkNATS = "nats"
)

// Config 审计配置
type Config struct {
	// Sink 输出: "log" | "nats" | "none"（默认 "none"）
	Sink string `json:"sink" yaml:"sink" mapstructure:"sink"`

	// Encoding NATS 消息体编码: "json" | "msgpack"（默认 "json"）
	Encoding string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`

	// Operations 只审计这些操作，留空审计除 health 外的全部操作
	Operations []string `json:"operations" yaml:"operations" mapstructure:"operations"`

	NATS NATSConfig `json:"nats" yaml:"nats" mapstructure:"nats"`
}

// NATSConfig NATS 输出配置
type NATSConfig struct {
	URL     string        `json:"url" yaml:"url" mapstructure:"url"`
	Subject string        `json:"subject" yaml:"subject" mapstructure:"subject"`
	Name    string        `json:"name" yaml:"name" mapstructure:"name"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Enabled 报告是否启用审计
func (c *Config) Enabled() bool {
	if c == nil {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(c.Sink))
	return s != "" && s != SinkNone
}

func (c *Config) setDefaults() {
	c.Sink = strings.ToLower(strings.TrimSpace(c.Sink))
	c.Encoding = strings.ToLower(strings.TrimSpace(c.Encoding))
	if c.Encoding == "" {
		c.Encoding = "json"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "authz.audit"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "authzkit-audit"
	}
	if c.NATS.Timeout <= 0 {
		c.NATS.Timeout = 2 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Encoding {
	case "json", "msgpack":
	default:
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported encoding %q", c.Encoding)
	}
	for _, op := range c.Operations {
		if !transport.Operation(op).Valid() {
			return xerrors.Wrapf(ErrInvalidConfig, "unknown operation %q", op)
		}
	}
	return nil
}

// filter 返回需要审计的操作集合
func (c *Config) filter() map[transport.Operation]bool {
	m := make(map[transport.Operation]bool)
	if len(c.Operations) == 0 {
		for _, op := range transport.Operations() {
			if op != transport.OpHealth {
				m[op] = true
			}
		}
		return m
	}
	for _, op := range c.Operations {
		m[transport.Operation(op)] = true
	}
	return m
}
