package dispatch

import "github.com/ceyewan/authzkit/xerrors"

var (
	ErrConfigNil   = xerrors.Newf(xerrors.KindConfiguration, "dispatch config is nil")
	ErrNoTransport = xerrors.Newf(xerrors.KindConfiguration, "no transport configured for strategy")
)
