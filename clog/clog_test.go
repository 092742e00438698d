package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ceyewan/authzkit/tracectx"
	"github.com/ceyewan/authzkit/xerrors"
)

func newBufferLogger(t *testing.T, buf *bytes.Buffer, level string, opts ...Option) Logger {
	t.Helper()
	opts = append([]Option{WithWriter(buf)}, opts...)
	logger, err := New(&Config{Level: level, Format: "json"}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return logger
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("解析日志失败: %v, line=%s", err, line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"合法配置", &Config{Level: "info", Format: "console", Output: "stdout"}, false},
		{"nil 配置", nil, false},
		{"空配置使用默认值", &Config{}, false},
		{"非法级别", &Config{Level: "invalid"}, true},
		{"非法格式", &Config{Level: "info", Format: "xml"}, true},
		{"输出目录不存在", &Config{Output: "/nonexistent-authzkit-dir/app.log"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(t, &buf, "warn")

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("日志条数 = %d，期望 2", len(entries))
	}
	if entries[0]["level"] != "WARN" || entries[1]["level"] != "ERROR" {
		t.Errorf("级别 = %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(t, &buf, "error")
	child := logger.WithNamespace("child")

	logger.Info("hidden")
	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	// 子 Logger 共享级别
	child.Debug("visible")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["msg"] != "visible" {
		t.Errorf("entries = %v", entries)
	}
}

func TestLoggerWithNamespace(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(t, &buf, "debug", WithNamespace("authzkit"))

	logger.WithNamespace("dispatch", "grpc").Info("namespaced")
	logger.Info("root")

	entries := decodeLines(t, &buf)
	if entries[0][NamespaceKey] != "authzkit.dispatch.grpc" {
		t.Errorf("namespace = %v", entries[0][NamespaceKey])
	}
	if entries[1][NamespaceKey] != "authzkit" {
		t.Errorf("父 Logger 的 namespace 被修改: %v", entries[1][NamespaceKey])
	}
}

func TestLoggerWith_DerivedLoggerDoesNotMutateSiblings(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(t, &buf, "debug").With(String("component", "breaker"))

	a := base.With(String("route", "grpc@a"))
	b := base.With(String("route", "rest@b"))
	a.Info("a")
	b.Info("b")

	entries := decodeLines(t, &buf)
	if entries[0]["route"] != "grpc@a" || entries[1]["route"] != "rest@b" {
		t.Errorf("routes = %v, %v", entries[0]["route"], entries[1]["route"])
	}
	if entries[1]["component"] != "breaker" {
		t.Errorf("component = %v", entries[1]["component"])
	}
}

type tenantKey struct{}

func TestLoggerWithContextField(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(t, &buf, "debug", WithContextField(tenantKey{}, "tenant"))

	ctx := context.WithValue(context.Background(), tenantKey{}, "acme")
	logger.InfoContext(ctx, "with tenant")

	entries := decodeLines(t, &buf)
	if entries[0]["tenant"] != "acme" {
		t.Errorf("tenant = %v", entries[0]["tenant"])
	}
}

func TestLoggerWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(t, &buf, "debug", WithTraceContext())

	tc, err := tracectx.ParseTraceparent("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	if err != nil {
		t.Fatalf("ParseTraceparent() error = %v", err)
	}
	ctx := tracectx.NewContext(context.Background(), tc)
	ctx = tracectx.WithRequestID(ctx, "req-42")
	logger.InfoContext(ctx, "traced")

	entries := decodeLines(t, &buf)
	if entries[0]["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", entries[0]["trace_id"])
	}
	if entries[0]["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v", entries[0]["span_id"])
	}
	if entries[0]["request_id"] != "req-42" {
		t.Errorf("request_id = %v", entries[0]["request_id"])
	}
}

func TestErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(t, &buf, "debug")

	logger.Error("plain", Error(errors.New("boom")))
	logger.Error("kinded", ErrorWithKind(&xerrors.Error{Kind: xerrors.KindTimeout, Message: "slow", RequestID: "r1"}))
	logger.Error("nil error", Error(nil))

	entries := decodeLines(t, &buf)
	if entries[0]["err_msg"] != "boom" {
		t.Errorf("err_msg = %v", entries[0]["err_msg"])
	}
	group, ok := entries[1]["error"].(map[string]any)
	if !ok {
		t.Fatalf("error 字段类型 = %T", entries[1]["error"])
	}
	if group["kind"] != "timeout" || group["request_id"] != "r1" {
		t.Errorf("error group = %v", group)
	}
	if _, exists := entries[2][""]; exists {
		t.Error("nil 错误不应输出空键")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "Warn", "warning", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) error = %v", s, err)
		}
	}
	if level, err := ParseLevel("verbose"); err == nil || level != InfoLevel {
		t.Errorf("ParseLevel(verbose) = %v, %v", level, err)
	}
	if DebugLevel.String() != "debug" || ErrorLevel.String() != "error" {
		t.Error("Level.String() 不符合预期")
	}
	if _, err := ParseLevel("fatal"); err == nil {
		t.Error("ParseLevel(fatal) 应返回错误")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.With(String("k", "v")).WithNamespace("x").Info("nothing")
	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Errorf("SetLevel() error = %v", err)
	}
}

func TestEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(t, &buf, "warn")
	if logger.Enabled(InfoLevel) || !logger.Enabled(ErrorLevel) {
		t.Error("warn 级别下 Enabled 不符合预期")
	}
	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if !logger.Enabled(DebugLevel) {
		t.Error("SetLevel(debug) 后应启用 debug")
	}
	if Discard().Enabled(ErrorLevel) {
		t.Error("Discard 不应启用任何级别")
	}
}
