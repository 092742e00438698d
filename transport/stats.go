package transport

import "sync"

// Stats 单个传输实例的请求计数
type Stats struct {
	mu     sync.Mutex
	sent   uint64
	failed uint64
}

// StatsSnapshot 统计快照
type StatsSnapshot struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// Begin 在方法入口调用
func (s *Stats) Begin() {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
}

// End 在方法返回前调用，err 非 nil 时计为失败。返回 err 本身，便于 return s.End(err)。
func (s *Stats) End(err error) error {
	if err != nil {
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
	}
	return err
}

// Snapshot 返回当前计数的副本
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{Sent: s.sent, Failed: s.failed}
}
