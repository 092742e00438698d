package trace

import (
	"github.com/ceyewan/authzkit/tracectx"
	"github.com/ceyewan/authzkit/xerrors"
)

// Config 配置
type Config struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampler     float64 `mapstructure:"sampler"`
	Batcher     string  `mapstructure:"batcher"`
	Insecure    bool    `mapstructure:"insecure"`

	// Formats 出站注入和入站提取使用的头格式：w3c、b3、b3multi，按顺序尝试
	Formats []string `mapstructure:"formats"`
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
		Formats:     []string{"w3c"},
	}
}

// ParseFormats 解析头格式名称，为空时只使用 W3C
func ParseFormats(names []string) ([]tracectx.Format, error) {
	if len(names) == 0 {
		return []tracectx.Format{tracectx.FormatW3C}, nil
	}
	formats := make([]tracectx.Format, 0, len(names))
	for _, name := range names {
		f, err := tracectx.ParseFormat(name)
		if err != nil {
			return nil, xerrors.WithKind(err, xerrors.KindConfiguration)
		}
		formats = append(formats, f)
	}
	return formats, nil
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return xerrors.Newf(xerrors.KindConfiguration, "trace config is required")
	}
	if cfg.ServiceName == "" {
		return xerrors.Newf(xerrors.KindConfiguration, "service_name is required")
	}
	if cfg.Endpoint == "" {
		return xerrors.Newf(xerrors.KindConfiguration, "endpoint is required")
	}
	if cfg.Sampler < 0 || cfg.Sampler > 1 {
		return xerrors.Newf(xerrors.KindConfiguration, "sampler must be between 0 and 1, got %v", cfg.Sampler)
	}
	if cfg.Batcher != "" && cfg.Batcher != "batch" && cfg.Batcher != "simple" {
		return xerrors.Newf(xerrors.KindConfiguration, "batcher must be \"batch\" or \"simple\", got %q", cfg.Batcher)
	}
	if _, err := ParseFormats(cfg.Formats); err != nil {
		return err
	}
	return nil
}
