package ratelimit

import "github.com/ceyewan/authzkit/xerrors"

var (
	ErrConfigNil    = xerrors.Newf(xerrors.KindConfiguration, "ratelimit: config is nil")
	ErrInvalidLimit = xerrors.Newf(xerrors.KindConfiguration, "ratelimit: rate and burst must be positive")
)
