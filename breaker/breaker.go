// Package breaker 提供按路由隔离的熔断器，基于 gobreaker 实现。
//
// 每个路由（传输类型 + 后端地址）拥有独立的熔断状态：
//
//	Closed --(连续失败达到阈值 或 失败率达到阈值)--> Open
//	Open --(Timeout 到期)--> HalfOpen
//	HalfOpen --(连续 SuccessThreshold 次探测成功)--> Closed
//	HalfOpen --(任意一次探测失败)--> Open
//
// 只有 FailurePredicate 判定为失败的错误类型才会计入失败；调用方取消的请求不计入统计。
// Open 期间调用立即返回 xerrors.KindCircuitOpen，不会触达网络。
//
// 基本使用：
//
//	brk, _ := breaker.New(&breaker.Config{
//		FailureThreshold: 5,
//		SuccessThreshold: 2,
//		Timeout:          30 * time.Second,
//	}, breaker.WithLogger(logger))
//
//	err := brk.Execute(ctx, breaker.RouteKey("grpc", "authz:50051"), func(ctx context.Context) error {
//		return transport.HealthCheck(ctx)
//	})
package breaker

import (
	"time"

	"github.com/ceyewan/authzkit/xerrors"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// FailureThreshold 连续失败多少次后打开，0 表示关闭该触发条件（默认：5）
	FailureThreshold uint32 `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// SuccessThreshold 半开状态下连续成功多少次后闭合（默认：1）
	SuccessThreshold uint32 `json:"success_threshold" yaml:"success_threshold" mapstructure:"success_threshold"`

	// Timeout 打开状态持续时间，到期后允许探测（默认：30s）
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// FailureRateThreshold 失败率阈值，取值 (0,1]，0 表示关闭失败率触发（默认：0.6）
	FailureRateThreshold float64 `json:"failure_rate_threshold" yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`

	// MinimumRequests 失败率触发前窗口内至少需要的请求数（默认：10）
	MinimumRequests uint32 `json:"minimum_requests" yaml:"minimum_requests" mapstructure:"minimum_requests"`

	// Window 闭合状态下的滚动统计窗口，0 表示不清空统计（默认：60s）
	Window time.Duration `json:"window" yaml:"window" mapstructure:"window"`

	// Include 计入失败的错误类型名称，为空时使用 DefaultFailureKinds
	Include []string `json:"include" yaml:"include" mapstructure:"include"`

	// Exclude 从 Include 中排除的错误类型名称
	Exclude []string `json:"exclude" yaml:"exclude" mapstructure:"exclude"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.FailureThreshold == 0 && c.FailureRateThreshold == 0 {
		c.FailureThreshold = 5
		c.FailureRateThreshold = 0.6
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
	if c.Window < 0 {
		c.Window = 0
	}
}

func (c *Config) validate() error {
	if c.FailureRateThreshold < 0 || c.FailureRateThreshold > 1 {
		return xerrors.Newf(xerrors.KindConfiguration, "breaker: failure_rate_threshold %v out of range [0,1]", c.FailureRateThreshold)
	}
	return nil
}

// EventType 状态迁移事件类型
type EventType int

const (
	EventOpened EventType = iota
	EventHalfOpened
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventHalfOpened:
		return "half_opened"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event 状态迁移事件
//
// Opened 事件携带触发时的失败次数和最后一次失败描述；Closed 事件携带连续成功次数。
type Event struct {
	Route     string
	Type      EventType
	From      State
	To        State
	Failures  uint32
	Successes uint32
	LastError string
	At        time.Time
}

// Listener 接收状态迁移事件。
// 在状态迁移时同步调用，不得阻塞，也不得回调同一个 Breaker。
type Listener func(Event)

// Snapshot 路由熔断状态快照
type Snapshot struct {
	Route                string
	State                State
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	LastError            string
	OpenedAt             time.Time
	ClosedAt             time.Time
}
