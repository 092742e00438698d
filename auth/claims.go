package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims 客户端自签发断言的载荷。
//
// 内嵌 jwt.RegisteredClaims 以支持标准声明（sub, iss, aud, exp 等），
// Scopes 声明调用方请求的 API 范围，例如 "relationships:write"。
type Claims struct {
	jwt.RegisteredClaims

	Scopes []string `json:"scopes,omitempty"`
}
