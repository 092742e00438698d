// Package tlsutil 根据配置构造客户端 TLS 配置，供 gRPC 和 REST 传输共用。
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/ceyewan/authzkit/xerrors"
)

// Config TLS 材料配置
type Config struct {
	// CAFile 自定义根证书，为空时使用系统根证书
	CAFile string `json:"ca_file" yaml:"ca_file" mapstructure:"ca_file"`

	// CertFile、KeyFile 客户端证书，用于双向 TLS，必须同时设置
	CertFile string `json:"cert_file" yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file" mapstructure:"key_file"`

	// InsecureSkipVerify 跳过服务端证书校验，仅用于开发环境
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`

	// ServerName 覆盖 SNI 和证书校验使用的主机名
	ServerName string `json:"server_name" yaml:"server_name" mapstructure:"server_name"`

	// Enabled 显式开启 TLS；设置了任何文件时自动视为开启
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// IsEnabled 报告是否需要 TLS
func (c *Config) IsEnabled() bool {
	if c == nil {
		return false
	}
	return c.Enabled || c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.InsecureSkipVerify || c.ServerName != ""
}

// Build 构造 *tls.Config。未开启时返回 nil, nil。
func Build(c *Config) (*tls.Config, error) {
	if !c.IsEnabled() {
		return nil, nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return nil, xerrors.Newf(xerrors.KindConfiguration, "tls cert_file and key_file must be set together")
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // 仅开发环境
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, xerrors.E(xerrors.KindConfiguration, err, "read tls ca_file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, xerrors.Newf(xerrors.KindConfiguration, "no certificates found in %s", c.CAFile)
		}
		cfg.RootCAs = pool
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, xerrors.E(xerrors.KindConfiguration, err, "load tls client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
