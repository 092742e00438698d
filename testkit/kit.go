// Package testkit 提供测试共用的依赖：日志、上下文，以及按环境变量启用的外部服务连接。
//
// 外部服务（Redis、NATS）的测试在对应环境变量未设置或服务不可达时跳过，
// 默认的 go test 只运行进程内的测试。
package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/authzkit/clog"
)

// NewLogger 返回一个用于测试的 logger
// 输出到开发环境格式，适合本地调试
func NewLogger() clog.Logger {
	logger, err := clog.New(clog.NewDevDefaultConfig(), clog.WithNamespace("test"))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewContext 返回一个带有超时的测试上下文，随测试结束取消
func NewContext(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
// 用于生成唯一的 Key 前缀或 Subject，避免测试间数据冲突
func NewID() string {
	return uuid.New().String()[0:8]
}

func envOrSkip(t testing.TB, name string) string {
	v := os.Getenv(name)
	if v == "" {
		t.Skipf("%s not set", name)
	}
	return v
}
