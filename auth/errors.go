package auth

import "github.com/ceyewan/authzkit/xerrors"

var (
	ErrInvalidConfig    = xerrors.Newf(xerrors.KindConfiguration, "auth: invalid config")
	ErrInvalidToken     = xerrors.Newf(xerrors.KindUnauthorized, "auth: invalid token")
	ErrExpiredToken     = xerrors.Newf(xerrors.KindUnauthorized, "auth: token expired")
	ErrInvalidSignature = xerrors.Newf(xerrors.KindUnauthorized, "auth: invalid signature")
)
