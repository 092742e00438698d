package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// clogHandler 封装 slog.Handler，提供动态级别调整
type clogHandler struct {
	slog.Handler
	levelVar *slog.LevelVar
	closer   io.Closer
}

// newHandler 构造顺序：writer -> handler options -> json/text handler -> wrapper
func newHandler(config *Config, o *options) (*clogHandler, error) {
	w, closer, err := resolveWriter(config, o)
	if err != nil {
		return nil, err
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	opts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: newReplaceAttr(config),
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &clogHandler{Handler: handler, levelVar: levelVar, closer: closer}, nil
}

// resolveWriter 注入的 writer 优先，其次按 Output 选择标准输出或追加写文件
func resolveWriter(config *Config, o *options) (io.Writer, io.Closer, error) {
	if o.writer != nil {
		return o.writer, nil, nil
	}
	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
}

// newReplaceAttr 统一处理 Level/Time/Source 字段
func newReplaceAttr(config *Config) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			level, ok := a.Value.Any().(slog.Level)
			if !ok {
				return a
			}
			a.Value = slog.StringValue(strings.ToUpper(Level(level).String()))
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
			}
		case slog.SourceKey:
			if source, ok := a.Value.Any().(*slog.Source); ok {
				return slog.String("caller", fmt.Sprintf("%s:%d", trimSourcePath(source.File, config.SourceRoot), source.Line))
			}
		}
		return a
	}
}

func trimSourcePath(fileName, sourceRoot string) string {
	if sourceRoot != "" {
		relPath, err := filepath.Rel(sourceRoot, fileName)
		if err == nil && !strings.HasPrefix(relPath, "..") {
			return relPath
		}
	}
	if idx := strings.Index(fileName, "authzkit"); idx != -1 {
		return fileName[idx:]
	}
	return fileName
}

func (h *clogHandler) SetLevel(level Level) error {
	h.levelVar.Set(level.slogLevel())
	return nil
}

// Flush 对文件输出执行 Sync，标准输出为空操作
func (h *clogHandler) Flush() {
	if f, ok := h.closer.(*os.File); ok {
		_ = f.Sync()
	}
}
