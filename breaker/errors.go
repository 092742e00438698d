package breaker

import "github.com/ceyewan/authzkit/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrKeyEmpty 路由键为空
	ErrKeyEmpty = xerrors.New("breaker: route key is empty")

	// ErrOpenState 熔断器处于打开状态，或半开状态下已有探测在进行
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")

	errProbeBusy = xerrors.New("breaker: half-open probe in progress")
)

func openError(route string) error {
	return &xerrors.Error{
		Kind:    xerrors.KindCircuitOpen,
		Message: "route " + route + " rejected",
		Cause:   ErrOpenState,
	}
}
