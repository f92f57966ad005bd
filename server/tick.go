package server

import (
	"time"

	"possync/protocol"
)

// Ticker 抽象定时器，测试中可替换为手动触发
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// tickLoop 运行中的 Tick 句柄；存在即 ACTIVE
type tickLoop struct {
	ticker Ticker
	last   time.Time
	seq    uint64
}

// TickInfo 单次 Tick 的统计信息（只用于指标和日志）
type TickInfo struct {
	Seq   uint64
	Delta time.Duration
}

// startLoop 幂等：已运行时什么也不做
func (s *Simulation) startLoop() {
	if s.loop != nil {
		return
	}
	s.loop = &tickLoop{
		ticker: s.newTicker(s.interval),
		last:   s.now(),
	}
	s.state.Status = protocol.StatusActive
}

// stopLoop 幂等：停止定时器并清空句柄
func (s *Simulation) stopLoop() {
	if s.loop == nil {
		return
	}
	s.loop.ticker.Stop()
	s.loop = nil
	s.state.Status = protocol.StatusStopped
}

// Running 当前是否在推进
func (s *Simulation) Running() bool { return s.loop != nil }

// TickC STOPPED 时返回 nil，select 中永远不会触发
func (s *Simulation) TickC() <-chan time.Time {
	if s.loop == nil {
		return nil
	}
	return s.loop.ticker.C()
}

// Tick 推进一帧并返回快照；快照内容与 delta 无关
func (s *Simulation) Tick(now time.Time) (TickInfo, bool) {
	if s.loop == nil {
		return TickInfo{}, false
	}
	delta := now.Sub(s.loop.last)
	s.loop.last = now
	s.loop.seq++
	return TickInfo{Seq: s.loop.seq, Delta: delta}, true
}
