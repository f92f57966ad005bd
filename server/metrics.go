package server

import (
	"sync/atomic"
	"time"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount       int64 // Tick 次数
	TotalTickNs     int64 // Tick 处理累计耗时
	LastDeltaNs     int64 // 最近一次 Tick 间隔
	MaxDeltaNs      int64
	Snapshots       int64 // 已广播的快照数
	SendDropped     int64 // 发送队列满或连接已关闭而丢弃的帧
	InputsApplied   int64
	InputsUnknown   int64 // 未知玩家的输入
	MovesRejected   int64 // 越界被拒绝的移动
	InputsInvalid   int64
	FramesMalformed int64 // 解码失败的入站帧
	InboxFull       int64 // 收件箱满被丢弃的输入
	Joins           int64
	Leaves          int64
}

func (m *RoomMetrics) IncSnapshot()         { atomic.AddInt64(&m.Snapshots, 1) }
func (m *RoomMetrics) AddSendDropped(n int) { atomic.AddInt64(&m.SendDropped, int64(n)) }
func (m *RoomMetrics) IncMalformed()        { atomic.AddInt64(&m.FramesMalformed, 1) }
func (m *RoomMetrics) IncInboxFull()        { atomic.AddInt64(&m.InboxFull, 1) }
func (m *RoomMetrics) IncJoin()             { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncLeave()            { atomic.AddInt64(&m.Leaves, 1) }

// AddMove 按处理结果计数
func (m *RoomMetrics) AddMove(r MoveResult) {
	switch r {
	case MoveApplied:
		atomic.AddInt64(&m.InputsApplied, 1)
	case MoveUnknownPlayer:
		atomic.AddInt64(&m.InputsUnknown, 1)
	case MoveRejected:
		atomic.AddInt64(&m.MovesRejected, 1)
	case MoveInvalid:
		atomic.AddInt64(&m.InputsInvalid, 1)
	}
}

func (m *RoomMetrics) AddTick(delta, elapsed time.Duration) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, elapsed.Nanoseconds())
	atomic.StoreInt64(&m.LastDeltaNs, delta.Nanoseconds())
	for {
		cur := atomic.LoadInt64(&m.MaxDeltaNs)
		if delta.Nanoseconds() <= cur || atomic.CompareAndSwapInt64(&m.MaxDeltaNs, cur, delta.Nanoseconds()) {
			return
		}
	}
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":            tick,
		"avg_tick_ms":           avgMs,
		"last_delta_ms":         float64(atomic.LoadInt64(&m.LastDeltaNs)) / 1e6,
		"max_delta_ms":          float64(atomic.LoadInt64(&m.MaxDeltaNs)) / 1e6,
		"snapshots":             atomic.LoadInt64(&m.Snapshots),
		"send_dropped":          atomic.LoadInt64(&m.SendDropped),
		"inputs_applied":        atomic.LoadInt64(&m.InputsApplied),
		"inputs_unknown_player": atomic.LoadInt64(&m.InputsUnknown),
		"moves_rejected":        atomic.LoadInt64(&m.MovesRejected),
		"inputs_invalid":        atomic.LoadInt64(&m.InputsInvalid),
		"frames_malformed":      atomic.LoadInt64(&m.FramesMalformed),
		"inbox_full":            atomic.LoadInt64(&m.InboxFull),
		"joins":                 atomic.LoadInt64(&m.Joins),
		"leaves":                atomic.LoadInt64(&m.Leaves),
	}
}
