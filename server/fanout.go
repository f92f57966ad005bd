package server

import "errors"

var (
	ErrQueueFull  = errors.New("send queue full")
	ErrPeerClosed = errors.New("peer closed")
)

// Peer 一个可以接收已编码帧的连接端点
type Peer interface {
	Send(frame []byte) error
}

// Fanout 把帧投递给房间内的连接；只在 Room 协程中调用
type Fanout interface {
	Add(id PlayerID, p Peer) error
	Remove(id PlayerID)
	SendTo(id PlayerID, frame []byte) error
	// Broadcast 发给除 except 以外的所有连接，返回投递失败数
	Broadcast(frame []byte, except PlayerID) int
	Close() error
}

// directFanout 进程内直接写入各连接的发送队列
type directFanout struct {
	peers map[PlayerID]Peer
}

func NewDirectFanout() Fanout {
	return &directFanout{peers: make(map[PlayerID]Peer)}
}

func (f *directFanout) Add(id PlayerID, p Peer) error {
	f.peers[id] = p
	return nil
}

func (f *directFanout) Remove(id PlayerID) {
	delete(f.peers, id)
}

func (f *directFanout) SendTo(id PlayerID, frame []byte) error {
	p, ok := f.peers[id]
	if !ok {
		return ErrPeerClosed
	}
	return p.Send(frame)
}

func (f *directFanout) Broadcast(frame []byte, except PlayerID) int {
	failed := 0
	for id, p := range f.peers {
		if id == except {
			continue
		}
		if err := p.Send(frame); err != nil {
			failed++
		}
	}
	return failed
}

func (f *directFanout) Close() error {
	clear(f.peers)
	return nil
}
