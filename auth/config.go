package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/authzkit/xerrors"
)

// Config 出站凭证配置。Token 与 JWT 二选一，都为空表示不注入凭证。
type Config struct {
	// Token 静态 Bearer Token（预共享密钥）
	Token string `json:"token" yaml:"token" mapstructure:"token"`

	// Header 凭证所在的头，默认 authorization
	Header string `json:"header" yaml:"header" mapstructure:"header"`

	// Scheme 凭证前缀，默认 Bearer
	Scheme string `json:"scheme" yaml:"scheme" mapstructure:"scheme"`

	// JWT 自签发断言
	JWT JWTConfig `json:"jwt" yaml:"jwt" mapstructure:"jwt"`
}

// JWTConfig 自签发 JWT 配置
type JWTConfig struct {
	SecretKey     string   `json:"secret_key" yaml:"secret_key" mapstructure:"secret_key"`             // 签名密钥（至少 32 字符）
	SigningMethod string   `json:"signing_method" yaml:"signing_method" mapstructure:"signing_method"` // HS256 | HS384 | HS512
	Issuer        string   `json:"issuer" yaml:"issuer" mapstructure:"issuer"`
	Subject       string   `json:"subject" yaml:"subject" mapstructure:"subject"`
	Audience      []string `json:"audience" yaml:"audience" mapstructure:"audience"`
	Scopes        []string `json:"scopes" yaml:"scopes" mapstructure:"scopes"`

	// TTL 单个 Token 的有效期，默认 5m
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	// RefreshBefore 距离过期多久时重新签发，默认 TTL 的五分之一
	RefreshBefore time.Duration `json:"refresh_before" yaml:"refresh_before" mapstructure:"refresh_before"`
}

// Enabled 报告是否配置了凭证
func (c *Config) Enabled() bool {
	return c != nil && (c.Token != "" || c.JWT.SecretKey != "")
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Header == "" {
		c.Header = "authorization"
	}
	if c.Scheme == "" {
		c.Scheme = "Bearer"
	}
	if c.JWT.SigningMethod == "" {
		c.JWT.SigningMethod = jwt.SigningMethodHS256.Alg()
	}
	if c.JWT.TTL == 0 {
		c.JWT.TTL = 5 * time.Minute
	}
	if c.JWT.RefreshBefore == 0 {
		c.JWT.RefreshBefore = c.JWT.TTL / 5
	}
}

// validate 验证配置
func (c *Config) validate() error {
	if c.Token != "" && c.JWT.SecretKey != "" {
		return xerrors.Wrapf(ErrInvalidConfig, "token and jwt are mutually exclusive")
	}
	if c.Token != "" || c.JWT.SecretKey == "" {
		return nil
	}

	if len(c.JWT.SecretKey) < 32 {
		return xerrors.Wrapf(ErrInvalidConfig, "jwt.secret_key must be at least 32 characters")
	}
	switch c.JWT.SigningMethod {
	case jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg():
	default:
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported jwt.signing_method: %s", c.JWT.SigningMethod)
	}
	if c.JWT.TTL <= 0 {
		return xerrors.Wrapf(ErrInvalidConfig, "jwt.ttl must be positive")
	}
	if c.JWT.RefreshBefore < 0 || c.JWT.RefreshBefore >= c.JWT.TTL {
		return xerrors.Wrapf(ErrInvalidConfig, "jwt.refresh_before must be within [0, ttl)")
	}
	return nil
}
