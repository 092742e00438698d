package audit

import "github.com/ceyewan/authzkit/xerrors"

var (
	ErrConfigNil     = xerrors.Newf(xerrors.KindConfiguration, "audit: config is nil")
	ErrInvalidConfig = xerrors.Newf(xerrors.KindConfiguration, "audit: invalid config")
	ErrUnknownSink   = xerrors.Newf(xerrors.KindConfiguration, "audit: unknown sink")
)
