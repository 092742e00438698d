package config

import (
	"errors"

	"github.com/ceyewan/authzkit/xerrors"
)

var (
	// ErrValidationFailed 验证失败
	ErrValidationFailed = xerrors.Newf(xerrors.KindConfiguration, "configuration validation failed")
	// ErrFileNotFound 显式指定的配置文件不存在
	ErrFileNotFound = xerrors.Newf(xerrors.KindConfiguration, "configuration file not found")
)

// IsNotFound 检查错误是否为配置文件未找到
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}

// IsInvalid 检查错误是否为配置格式无效或验证失败
func IsInvalid(err error) bool {
	return xerrors.KindOf(err) == xerrors.KindConfiguration && !IsNotFound(err)
}
