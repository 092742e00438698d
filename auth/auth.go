// Package auth 为出站调用注入凭证。
//
// 支持两种凭证：
//   - 静态 Bearer Token
//   - 客户端用共享密钥自签发的 JWT，过期前自动重新签发
//
// 基本使用：
//
//	creds, _ := auth.New(&auth.Config{JWT: auth.JWTConfig{
//	    SecretKey: "...", Issuer: "billing", Audience: []string{"authz"},
//	}})
//	p := middleware.New(middleware.Dispatcher(d), creds.Interceptor())
//
// 调用方在请求上已经设置了凭证头时，拦截器不会覆盖。
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/xerrors"
)

// Credentials 出站凭证提供者，并发安全
type Credentials struct {
	cfg    Config
	logger clog.Logger
	now    func() time.Time
	method jwt.SigningMethod

	mu      sync.Mutex
	token   string
	expires time.Time
}

// New 创建凭证提供者
func New(cfg *Config, opts ...Option) (*Credentials, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Credentials{
		cfg:    c,
		logger: o.logger,
		now:    o.now,
		method: jwt.GetSigningMethod(c.JWT.SigningMethod),
	}, nil
}

// Token 返回当前有效的凭证（不含 Scheme 前缀），未配置时返回空串
func (c *Credentials) Token(ctx context.Context) (string, error) {
	if c.cfg.Token != "" {
		return c.cfg.Token, nil
	}
	if c.cfg.JWT.SecretKey == "" {
		return "", nil
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && now.Before(c.expires.Add(-c.cfg.JWT.RefreshBefore)) {
		return c.token, nil
	}

	token, expires, err := c.sign(now)
	if err != nil {
		return "", err
	}
	c.token, c.expires = token, expires
	c.logger.DebugContext(ctx, "jwt assertion issued",
		clog.String("subject", c.cfg.JWT.Subject),
		clog.Time("expires_at", expires))
	return token, nil
}

func (c *Credentials) sign(now time.Time) (string, time.Time, error) {
	expires := now.Add(c.cfg.JWT.TTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.cfg.JWT.Issuer,
			Subject:   c.cfg.JWT.Subject,
			Audience:  c.cfg.JWT.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Scopes: c.cfg.JWT.Scopes,
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString([]byte(c.cfg.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, xerrors.E(xerrors.KindInternal, err, "sign jwt assertion")
	}
	return signed, expires, nil
}

// Verify 用同一密钥校验断言，返回载荷。服务端或测试替身用它校验客户端凭证。
func (c *Credentials) Verify(token string) (*Claims, error) {
	if c.cfg.JWT.SecretKey == "" {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "verify requires jwt.secret_key")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.cfg.JWT.SigningMethod}),
		jwt.WithTimeFunc(c.now),
	}
	if c.cfg.JWT.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.JWT.Issuer))
	}
	if len(c.cfg.JWT.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(c.cfg.JWT.Audience[0]))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(c.cfg.JWT.SecretKey), nil
	}, opts...)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrInvalidSignature
	default:
		return nil, xerrors.Wrapf(ErrInvalidToken, "%v", err)
	}
}

// Interceptor 返回注入凭证头的拦截器
func (c *Credentials) Interceptor() middleware.Interceptor {
	return func(ctx context.Context, req *middleware.Request, next middleware.Handler) (*middleware.Response, error) {
		if req.Header(c.cfg.Header) == "" {
			token, err := c.Token(ctx)
			if err != nil {
				return middleware.Failure(err), err
			}
			if token != "" {
				req.SetHeader(c.cfg.Header, c.cfg.Scheme+" "+token)
			}
		}
		return next(ctx, req)
	}
}
