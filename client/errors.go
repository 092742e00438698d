package client

import "github.com/ceyewan/authzkit/xerrors"

var (
	ErrConfigNil   = xerrors.Newf(xerrors.KindConfiguration, "client config is nil")
	ErrNoTransport = xerrors.Newf(xerrors.KindConfiguration, "neither grpc.address nor rest.base_url is configured")
)
