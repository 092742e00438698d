package config

import (
	"context"
	"strings"
)

// Config 加载器配置
type Config struct {
	Name      string   `json:"name" yaml:"name" mapstructure:"name"`                   // 配置文件名称（不含扩展名），默认 "authz"
	Paths     []string `json:"paths" yaml:"paths" mapstructure:"paths"`                // 配置文件搜索路径，默认 [".", "./config"]
	File      string   `json:"file" yaml:"file" mapstructure:"file"`                   // 配置文件完整路径，设置后忽略 Name 和 Paths
	FileType  string   `json:"file_type" yaml:"file_type" mapstructure:"file_type"`    // 配置文件类型 (yaml, json, toml)，默认 "yaml"
	EnvPrefix string   `json:"env_prefix" yaml:"env_prefix" mapstructure:"env_prefix"` // 环境变量前缀，默认 "AUTHZ"
}

// validate 设置默认值并验证配置
func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "authz"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "AUTHZ"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// New 创建配置加载器。
//
// 如果 cfg 为 nil，使用默认配置。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	return newLoader(&c, opts...), nil
}

// Load 创建加载器、加载配置并反序列化到 v
func Load(ctx context.Context, cfg *Config, v any, opts ...Option) (Loader, error) {
	l, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	if err := l.Unmarshal(v); err != nil {
		return nil, err
	}
	return l, nil
}
