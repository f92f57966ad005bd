package client

// PendingMove 已本地应用、尚未被服务端确认的一步
type PendingMove struct {
	EventID int64
	DX, DY  float64
}

// PendingQueue 按 eventId 严格递增排列的待确认队列
type PendingQueue struct {
	moves []PendingMove
}

func (q *PendingQueue) Push(m PendingMove) {
	q.moves = append(q.moves, m)
}

func (q *PendingQueue) Len() int { return len(q.moves) }

// Items 返回副本
func (q *PendingQueue) Items() []PendingMove {
	return append([]PendingMove(nil), q.moves...)
}

// DropThrough 丢弃 eventId <= id 的前缀，返回丢弃数量
func (q *PendingQueue) DropThrough(id int64) int {
	n := 0
	for n < len(q.moves) && q.moves[n].EventID <= id {
		n++
	}
	if n == 0 {
		return 0
	}
	q.moves = append(q.moves[:0], q.moves[n:]...)
	return n
}

func (q *PendingQueue) Clear() {
	q.moves = q.moves[:0]
}

// Sum 剩余队列的位移总和
func (q *PendingQueue) Sum() (dx, dy float64) {
	for _, m := range q.moves {
		dx += m.DX
		dy += m.DY
	}
	return dx, dy
}
