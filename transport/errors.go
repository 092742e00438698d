package transport

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/ceyewan/authzkit/xerrors"
)

// ErrClosed 传输已关闭
var ErrClosed = xerrors.New("transport: closed")

// Closed 返回关闭后调用的错误
func Closed(op Operation) error {
	return &xerrors.Error{Kind: xerrors.KindUnavailable, Op: string(op), Message: "transport closed", Cause: ErrClosed}
}

// NetworkError 翻译连接层错误：context 错误按超时或取消处理，
// 网络超时为 Timeout，其余为 Connection。已经带有 Kind 的错误原样返回。
func NetworkError(ctx context.Context, op Operation, err error) error {
	if err == nil {
		return nil
	}
	var e *xerrors.Error
	if errors.As(err, &e) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return opError(op, xerrors.FromContext(ctxErr))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &xerrors.Error{Kind: xerrors.KindTimeout, Op: string(op), Message: err.Error(), Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &xerrors.Error{Kind: xerrors.KindCancelled, Op: string(op), Message: err.Error(), Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &xerrors.Error{Kind: xerrors.KindTimeout, Op: string(op), Message: err.Error(), Cause: err}
	}
	return &xerrors.Error{Kind: xerrors.KindConnection, Op: string(op), Message: err.Error(), Cause: err}
}

func opError(op Operation, err error) error {
	var e *xerrors.Error
	if errors.As(err, &e) {
		return e.WithOp(string(op))
	}
	return err
}
