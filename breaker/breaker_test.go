package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/authzkit/xerrors"
)

var (
	errUnavailable = xerrors.Newf(xerrors.KindUnavailable, "backend down")
	errNotFound    = xerrors.Newf(xerrors.KindNotFound, "no such object")
)

const testRoute = "grpc@authz:50051"

func newTestBreaker(t *testing.T, cfg *Config, opts ...Option) *Breaker {
	t.Helper()
	brk, err := New(cfg, opts...)
	require.NoError(t, err)
	return brk
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func ok(context.Context) error { return nil }

func TestNew(t *testing.T) {
	t.Run("nil 配置", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, ErrConfigNil)
	})

	t.Run("默认值", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, uint32(5), cfg.FailureThreshold)
		assert.Equal(t, uint32(1), cfg.SuccessThreshold)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, 0.6, cfg.FailureRateThreshold)
		assert.Equal(t, uint32(10), cfg.MinimumRequests)
	})

	t.Run("失败率越界", func(t *testing.T) {
		_, err := New(&Config{FailureRateThreshold: 1.5})
		assert.Equal(t, xerrors.KindConfiguration, xerrors.KindOf(err))
	})

	t.Run("未知错误类型", func(t *testing.T) {
		_, err := New(&Config{Include: []string{"bogus"}})
		assert.ErrorIs(t, err, xerrors.ErrInvalidKind)
	})

	t.Run("空路由键", func(t *testing.T) {
		brk := newTestBreaker(t, DefaultConfig())
		assert.ErrorIs(t, brk.Execute(context.Background(), "", ok), ErrKeyEmpty)
	})
}

func TestFailurePredicate(t *testing.T) {
	p, err := NewFailurePredicate(nil, []string{"internal"})
	require.NoError(t, err)

	assert.True(t, p.IsFailure(errUnavailable))
	assert.True(t, p.IsFailure(context.DeadlineExceeded))
	assert.True(t, p.IsFailure(errors.New("plain")))
	assert.False(t, p.IsFailure(errNotFound))
	assert.False(t, p.IsFailure(xerrors.Newf(xerrors.KindInternal, "boom")))
	assert.False(t, p.IsFailure(nil))
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, brk.Execute(ctx, testRoute, fail(errUnavailable)), errUnavailable)
	}
	assert.Equal(t, StateClosed, brk.State(testRoute))

	assert.ErrorIs(t, brk.Execute(ctx, testRoute, fail(errUnavailable)), errUnavailable)
	assert.Equal(t, StateOpen, brk.State(testRoute))

	called := false
	err := brk.Execute(ctx, testRoute, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called, "打开状态下不应调用 fn")
	assert.Equal(t, xerrors.KindCircuitOpen, xerrors.KindOf(err))
	assert.ErrorIs(t, err, ErrOpenState)

	// 其他路由不受影响
	assert.NoError(t, brk.Execute(ctx, "rest@authz:8080", ok))
	assert.Equal(t, StateClosed, brk.State("rest@authz:8080"))
}

func TestBreaker_NonClassifiedErrorsCountAsSuccess(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, brk.Execute(ctx, testRoute, fail(errNotFound)), errNotFound)
	}
	assert.Equal(t, StateClosed, brk.State(testRoute))

	// 成功之间穿插的失败不会累积为连续失败
	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	_ = brk.Execute(ctx, testRoute, fail(errNotFound))
	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	assert.Equal(t, StateClosed, brk.State(testRoute))
}

func TestBreaker_CancelledIsExcluded(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = brk.Execute(ctx, testRoute, fail(context.Canceled))
	}
	snap := brk.Snapshot(testRoute)
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.TotalFailures)
}

func TestBreaker_FailureRate(t *testing.T) {
	brk := newTestBreaker(t, &Config{
		FailureRateThreshold: 0.5,
		MinimumRequests:      4,
		Timeout:              time.Minute,
	})
	ctx := context.Background()

	_ = brk.Execute(ctx, testRoute, ok)
	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	_ = brk.Execute(ctx, testRoute, ok)
	assert.Equal(t, StateClosed, brk.State(testRoute), "请求数不足时不触发")

	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	assert.Equal(t, StateOpen, brk.State(testRoute))
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	brk := newTestBreaker(t, &Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	}, WithListener(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	ctx := context.Background()

	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	require.Equal(t, StateOpen, brk.State(testRoute))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, brk.State(testRoute))

	require.NoError(t, brk.Execute(ctx, testRoute, ok))
	assert.Equal(t, StateHalfOpen, brk.State(testRoute), "需要连续两次成功")
	require.NoError(t, brk.Execute(ctx, testRoute, ok))
	assert.Equal(t, StateClosed, brk.State(testRoute))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, EventOpened, events[0].Type)
	assert.Equal(t, uint32(1), events[0].Failures)
	assert.Contains(t, events[0].LastError, "backend down")
	assert.Equal(t, EventHalfOpened, events[1].Type)
	assert.Equal(t, EventClosed, events[2].Type)
	assert.Equal(t, uint32(2), events[2].Successes)
	assert.Equal(t, testRoute, events[2].Route)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureThreshold: 1, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, brk.State(testRoute))

	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	assert.Equal(t, StateOpen, brk.State(testRoute))
	assert.False(t, brk.Allow(testRoute))
}

func TestBreaker_SingleProbe(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureThreshold: 1, SuccessThreshold: 3, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, brk.State(testRoute))

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- brk.Execute(ctx, testRoute, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := brk.Execute(ctx, testRoute, ok)
	assert.Equal(t, xerrors.KindCircuitOpen, xerrors.KindOf(err), "探测进行中应拒绝其他调用")

	close(release)
	assert.NoError(t, <-done)
}

func TestBreaker_ConcurrentProbesAcrossTimeout(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureThreshold: 1, SuccessThreshold: 3, Timeout: 20 * time.Millisecond})
	ctx := context.Background()
	_ = brk.Execute(ctx, testRoute, fail(errUnavailable))
	require.Equal(t, StateOpen, brk.State(testRoute))

	// 探测总是失败，熔断器在 Open 与 HalfOpen 之间往复，任何时刻最多一个调用触达后端
	var (
		mu       sync.Mutex
		inflight int
		peak     int
		probes   int
	)
	probe := func(context.Context) error {
		mu.Lock()
		inflight++
		probes++
		peak = max(peak, inflight)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return errUnavailable
	}

	deadline := time.Now().Add(150 * time.Millisecond)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				err := brk.Execute(ctx, testRoute, probe)
				assert.Error(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak, "同一时刻只允许一个探测")
	assert.Positive(t, probes)
	assert.NotEqual(t, StateClosed, brk.State(testRoute))
}

func TestBreaker_SnapshotsAndReset(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	_ = brk.Execute(ctx, "rest@b", ok)
	_ = brk.Execute(ctx, "grpc@a", fail(errUnavailable))

	snaps := brk.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "grpc@a", snaps[0].Route)
	assert.Equal(t, StateOpen, snaps[0].State)
	assert.False(t, snaps[0].OpenedAt.IsZero())
	assert.Equal(t, "rest@b", snaps[1].Route)
	assert.Equal(t, uint32(1), snaps[1].TotalSuccesses)

	brk.Reset("grpc@a")
	assert.Equal(t, StateClosed, brk.State("grpc@a"))
}

func TestRouteKey(t *testing.T) {
	assert.Equal(t, "grpc@localhost:50051", RouteKey("grpc", "localhost:50051"))
}
