package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/xerrors"
)

type Limits struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type appConfig struct {
	Strategy string        `mapstructure:"strategy"`
	Timeout  time.Duration `mapstructure:"timeout"`
	GRPC     struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"grpc"`
	Trace struct {
		Formats []string `mapstructure:"formats"`
	} `mapstructure:"trace"`
	RateLimit struct {
		Limits `mapstructure:",squash"`
		Wait   bool `mapstructure:"wait"`
	} `mapstructure:"ratelimit"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	impl := l.(*loader)
	assert.Equal(t, "authz", impl.cfg.Name)
	assert.Equal(t, []string{".", "./config"}, impl.cfg.Paths)
	assert.Equal(t, "yaml", impl.cfg.FileType)
	assert.Equal(t, "AUTHZ", impl.cfg.EnvPrefix)

	l, err = New(&Config{EnvPrefix: "svc"})
	require.NoError(t, err)
	assert.Equal(t, "SVC", l.(*loader).cfg.EnvPrefix)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "authz.yaml", `
strategy: prefer_grpc
timeout: 2s
grpc:
  address: authz.internal:50051
trace:
  formats: [w3c]
ratelimit:
  rate: 100
  burst: 10
`)
	t.Setenv("AUTHZ_TIMEOUT", "750ms")
	t.Setenv("AUTHZ_RATELIMIT_WAIT", "true")
	t.Setenv("AUTHZ_TRACE_FORMATS", "w3c,b3")

	var cfg appConfig
	l, err := Load(context.Background(), &Config{Paths: []string{dir}}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "authz.yaml"), l.ConfigFileUsed())
	assert.Equal(t, "prefer_grpc", cfg.Strategy)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "authz.internal:50051", cfg.GRPC.Address)
	assert.Equal(t, []string{"w3c", "b3"}, cfg.Trace.Formats)
	assert.Equal(t, 100.0, cfg.RateLimit.Rate)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	// 文件中没有的 key 也能从环境变量读取
	assert.True(t, cfg.RateLimit.Wait)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv("AUTHZ_GRPC_ADDRESS", "env:50051")

	var cfg appConfig
	_, err := Load(context.Background(), &Config{Paths: []string{t.TempDir()}}, &cfg,
		WithDefaults(map[string]any{"strategy": "rest_only", "timeout": "5s"}))
	require.NoError(t, err)
	assert.Equal(t, "rest_only", cfg.Strategy)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "env:50051", cfg.GRPC.Address)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("配置为空", func(t *testing.T) {
		l, err := New(&Config{Paths: []string{t.TempDir()}})
		require.NoError(t, err)
		err = l.Load(context.Background())
		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.True(t, IsInvalid(err))
	})

	t.Run("指定的文件不存在", func(t *testing.T) {
		l, err := New(&Config{File: filepath.Join(t.TempDir(), "missing.yaml")})
		require.NoError(t, err)
		err = l.Load(context.Background())
		assert.True(t, IsNotFound(err))
		assert.Equal(t, xerrors.KindConfiguration, xerrors.KindOf(err))
	})

	t.Run("格式错误", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bad.yaml", "strategy: [unterminated")
		l, err := New(&Config{File: path})
		require.NoError(t, err)
		err = l.Load(context.Background())
		assert.True(t, IsInvalid(err))
	})
}

func TestLoad_EnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "authz.yaml", "strategy: prefer_grpc\ntimeout: 1s\n")
	writeFile(t, dir, "authz.prod.yaml", "timeout: 3s\n")
	t.Setenv("AUTHZ_ENV", "prod")

	var cfg appConfig
	_, err := Load(context.Background(), &Config{Paths: []string{dir}}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "prefer_grpc", cfg.Strategy)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "authz.yaml", "strategy: prefer_grpc\n")
	writeFile(t, dir, ".env", "AUTHZ_DOTENV_PROBE=from-dotenv\n")
	t.Cleanup(func() { _ = os.Unsetenv("AUTHZ_DOTENV_PROBE") })

	l, err := New(&Config{Paths: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, "from-dotenv", l.Get("dotenv_probe"))
}

func TestUnmarshalKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "authz.json", `{"grpc": {"address": "file:1"}}`)
	t.Setenv("AUTHZ_GRPC_ADDRESS", "env:2")

	l, err := New(&Config{Paths: []string{dir}, FileType: "json"})
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	var grpc struct {
		Address string `mapstructure:"address"`
	}
	require.NoError(t, l.UnmarshalKey("grpc", &grpc))
	assert.Equal(t, "env:2", grpc.Address)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "authz.yaml", "log:\n  level: info\n")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	l, err := New(&Config{File: path})
	require.NoError(t, err)
	require.NoError(t, l.Load(ctx))

	levelCh, err := l.Watch(ctx, "log.level")
	require.NoError(t, err)
	allCh, err := l.Watch(ctx, "")
	require.NoError(t, err)

	// 先写临时文件再改名，避免监听到写了一半的文件
	tmp := writeFile(t, dir, "authz.yaml.tmp", "log:\n  level: debug\n")
	require.NoError(t, os.Rename(tmp, path))

	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-levelCh:
			assert.Equal(t, "log.level", ev.Key)
			assert.Equal(t, "file", ev.Source)
			done = ev.Value == "debug"
		case <-deadline:
			t.Fatal("timeout waiting for log.level change")
		}
	}

	select {
	case ev := <-allCh:
		_, ok := ev.Value.(map[string]any)
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for full config change")
	}

	t.Run("取消后通道关闭", func(t *testing.T) {
		watchCtx, stop := context.WithCancel(context.Background())
		ch, err := l.Watch(watchCtx, "log.level")
		require.NoError(t, err)
		stop()
		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, time.Second, 10*time.Millisecond)
	})
}
