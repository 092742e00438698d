package cache

import "github.com/ceyewan/authzkit/xerrors"

var (
	ErrConfigNil     = xerrors.Newf(xerrors.KindConfiguration, "cache: config is nil")
	ErrUnknownDriver = xerrors.Newf(xerrors.KindConfiguration, "cache: unknown driver")
	ErrRedisAddr     = xerrors.Newf(xerrors.KindConfiguration, "cache: redis.addr is required")
)
