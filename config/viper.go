package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/xerrors"
)

// allKeys Watch 监听全部配置时使用的内部 key
const allKeys = ""

// loader 实现 Loader 接口
type loader struct {
	v      *viper.Viper
	cfg    *Config
	logger clog.Logger
	file   string

	mu        sync.RWMutex
	watches   map[string][]chan Event
	oldValues map[string]any
}

// newLoader 创建一个新的配置加载器（内部使用）
func newLoader(cfg *Config, opts ...Option) *loader {
	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	for k, val := range o.defaults {
		v.SetDefault(k, val)
	}
	return &loader{
		v:         v,
		cfg:       cfg,
		logger:    o.logger,
		watches:   make(map[string][]chan Event),
		oldValues: make(map[string]any),
	}
}

// Load 初始化并从所有来源加载配置
func (l *loader) Load(ctx context.Context) error {
	// 1. 配置文件位置
	if l.cfg.File != "" {
		l.v.SetConfigFile(l.cfg.File)
	} else {
		l.v.SetConfigName(l.cfg.Name)
		l.v.SetConfigType(l.cfg.FileType)
		for _, path := range l.cfg.Paths {
			l.v.AddConfigPath(path)
		}
	}

	// 2. 环境变量（最高优先级）
	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// 3. .env 文件，不覆盖已存在的环境变量
	if err := l.loadDotEnv(); err != nil {
		l.logger.Debug("no .env file loaded", clog.Error(err))
	}

	// 4. 基础配置
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case l.cfg.File != "" && errors.Is(err, os.ErrNotExist):
			return xerrors.Wrapf(ErrFileNotFound, "%s", l.cfg.File)
		case errors.As(err, &notFound):
			l.logger.Info("no configuration file found, using defaults and environment",
				clog.String("name", l.cfg.Name),
				clog.Any("paths", l.cfg.Paths))
		default:
			return xerrors.E(xerrors.KindConfiguration, err, "read config file")
		}
	} else {
		l.file = l.v.ConfigFileUsed()
		l.logger.Info("configuration file loaded", clog.String("file", l.file))
	}

	// 5. 环境特定配置
	if err := l.loadEnvironmentConfig(); err != nil {
		return err
	}

	// 6. 验证配置
	if err := l.Validate(); err != nil {
		return err
	}

	// 7. 保存当前值作为基线
	l.captureCurrentValues()

	// 8. 文件存在时启动监听
	if l.file != "" {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			if err := l.loadEnvironmentConfig(); err != nil {
				l.logger.Error("failed to reload environment config", clog.Error(err))
			}
			l.logger.Info("configuration file changed",
				clog.String("file", e.Name),
				clog.String("op", e.Op.String()))
			l.notifyWatches()
		})
		l.v.WatchConfig()
	}

	return nil
}

// loadDotEnv 尝试从工作目录和搜索路径加载 .env 文件
func (l *loader) loadDotEnv() error {
	candidates := []string{".env"}
	if l.cfg.File != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(l.cfg.File), ".env"))
	}
	for _, path := range l.cfg.Paths {
		candidates = append(candidates, filepath.Join(path, ".env"))
	}

	var loaded bool
	var lastErr error
	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			loaded = true
			l.logger.Debug(".env file loaded", clog.String("file", path))
		} else {
			lastErr = err
		}
	}
	if !loaded && lastErr != nil {
		return lastErr
	}
	return nil
}

// loadEnvironmentConfig 加载 <name>.<AUTHZ_ENV> 配置并合并
func (l *loader) loadEnvironmentConfig() error {
	env := os.Getenv(l.cfg.EnvPrefix + "_ENV")
	if env == "" || l.cfg.File != "" {
		return nil
	}

	envConfigName := l.cfg.Name + "." + env
	l.v.SetConfigName(envConfigName)
	// SetConfigName 会清空已定位的文件，合并后恢复主配置文件
	defer func() {
		if l.file != "" {
			l.v.SetConfigFile(l.file)
		} else {
			l.v.SetConfigName(l.cfg.Name)
		}
	}()

	if err := l.v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return xerrors.E(xerrors.KindConfiguration, err, "merge environment config "+envConfigName)
		}
		l.logger.Debug("no environment configuration file", clog.String("env", env))
		return nil
	}
	l.logger.Info("environment configuration merged", clog.String("env", env))
	return nil
}

// captureCurrentValues 保存当前配置值用于变更检测
func (l *loader) captureCurrentValues() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key := range l.watches {
		l.oldValues[key] = l.value(key)
	}
}

func (l *loader) value(key string) any {
	if key == allKeys {
		return l.v.AllSettings()
	}
	return l.v.Get(key)
}

// Get 根据 key 获取配置值
func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

// Unmarshal 将整个配置反序列化到结构体，先按结构体字段绑定环境变量
func (l *loader) Unmarshal(v any) error {
	if err := bindEnvs(l.v, reflect.TypeOf(v), ""); err != nil {
		return err
	}
	if err := l.v.Unmarshal(v); err != nil {
		return xerrors.E(xerrors.KindConfiguration, err, "unmarshal config")
	}
	return nil
}

// UnmarshalKey 将特定配置 key 反序列化到结构体。
// viper 的 UnmarshalKey 不会合并子 key 的环境变量，这里按叶子 key 逐个取值后再解码。
func (l *loader) UnmarshalKey(key string, v any) error {
	if err := bindEnvs(l.v, reflect.TypeOf(v), key); err != nil {
		return err
	}
	sub := viper.New()
	prefix := strings.ToLower(key) + "."
	for _, k := range l.v.AllKeys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			sub.Set(rest, l.v.Get(k))
		}
	}
	if err := sub.Unmarshal(v); err != nil {
		return xerrors.E(xerrors.KindConfiguration, err, "unmarshal config key "+key)
	}
	return nil
}

// ConfigFileUsed 返回实际读取的配置文件
func (l *loader) ConfigFileUsed() string {
	return l.file
}

// Watch 订阅特定配置 key 的变更
func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, 10)
	l.watches[key] = append(l.watches[key], ch)
	l.oldValues[key] = l.value(key)

	go func() {
		<-ctx.Done()
		l.removeWatch(key, ch)
	}()

	return ch, nil
}

// removeWatch 从注册表中移除监听通道并关闭
func (l *loader) removeWatch(key string, ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chans := l.watches[key]
	for i, c := range chans {
		if c == ch {
			l.watches[key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(l.watches[key]) == 0 {
		delete(l.watches, key)
		delete(l.oldValues, key)
	}
	// 只在持锁时发送，关闭后不会再有写入
	close(ch)
}

// Validate 验证配置
func (l *loader) Validate() error {
	if len(l.v.AllSettings()) == 0 {
		return xerrors.Wrapf(ErrValidationFailed, "configuration is empty")
	}
	return nil
}

// notifyWatches 通知所有监听者
func (l *loader) notifyWatches() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, channels := range l.watches {
		newValue := l.value(key)
		oldValue := l.oldValues[key]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		l.oldValues[key] = newValue

		event := Event{Key: key, Value: newValue, OldValue: oldValue, Source: "file", Timestamp: now}
		for _, ch := range channels {
			select {
			case ch <- event:
			default:
				l.logger.Warn("watch channel is full, event dropped", clog.String("key", key))
			}
		}
	}
}
