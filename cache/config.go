package cache

import (
	"strings"
	"time"

	"github.com/ceyewan/authzkit/xerrors"
)

// 存储驱动
const (
	DriverNone  = "none"
	DriverLocal = "local"
	DriverRedis = "redis"
)

// Config 决策缓存配置
type Config struct {
	// Driver 存储驱动: "local" | "redis" | "none"（默认 "none"，不缓存）
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// TTL 允许结果的缓存时间（默认 5s）
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// DeniedTTL 拒绝结果的缓存时间，0 表示与 TTL 相同，负数表示不缓存拒绝
	DeniedTTL time.Duration `json:"denied_ttl" yaml:"denied_ttl" mapstructure:"denied_ttl"`

	// Capacity 本地缓存最大条目数（默认 10000）
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`

	// Prefix Redis 键前缀（默认 "authz:decision:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Serializer Redis 值编码: "msgpack" | "json"（默认 "msgpack"）
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`

	// Redis 共享存储连接配置，仅 redis 驱动使用
	Redis RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr         string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password     string        `json:"password" yaml:"password" mapstructure:"password"`
	DB           int           `json:"db" yaml:"db" mapstructure:"db"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`

	// Tracing 为 Redis 命令创建 Span，挂在调用方的 check Span 之下（默认：false）
	Tracing bool `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// Enabled 报告是否启用缓存
func (c *Config) Enabled() bool {
	if c == nil {
		return false
	}
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	return d != "" && d != DriverNone
}

func (c *Config) setDefaults() {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.TTL <= 0 {
		c.TTL = 5 * time.Second
	}
	if c.DeniedTTL == 0 {
		c.DeniedTTL = c.TTL
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.Prefix == "" {
		c.Prefix = "authz:decision:"
	}
	if c.Serializer == "" {
		c.Serializer = "msgpack"
	}
	if c.Redis.DialTimeout <= 0 {
		c.Redis.DialTimeout = 2 * time.Second
	}
	if c.Redis.ReadTimeout <= 0 {
		c.Redis.ReadTimeout = 500 * time.Millisecond
	}
	if c.Redis.WriteTimeout <= 0 {
		c.Redis.WriteTimeout = 500 * time.Millisecond
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverLocal:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return xerrors.Wrap(ErrRedisAddr, "cache")
		}
	default:
		return xerrors.Wrapf(ErrUnknownDriver, "%q", c.Driver)
	}
	return nil
}
