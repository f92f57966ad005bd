package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"possync/protocol"
)

var ErrRoomClosed = errors.New("room closed")

// Room 单协程 actor：独占 Simulation，所有变更经由收件箱串行处理
type Room struct {
	sim     *Simulation
	fanout  Fanout
	codec   protocol.Codec
	metrics *RoomMetrics

	inbox chan any
	done  chan struct{}
}

// NewRoom 创建房间，Run 之前不处理任何命令
func NewRoom(sim *Simulation, fanout Fanout, codec protocol.Codec, metrics *RoomMetrics, inboxSize int) *Room {
	if metrics == nil {
		metrics = &RoomMetrics{}
	}
	return &Room{
		sim:     sim,
		fanout:  fanout,
		codec:   codec,
		metrics: metrics,
		inbox:   make(chan any, inboxSize), // 足够缓冲，避免网络读阻塞影响 Tick
		done:    make(chan struct{}),
	}
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Run 核心循环：命令与 Tick 在同一协程内交替处理；ctx 结束时停止 Tick 并返回
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.fanout.Close()
	defer r.sim.stopLoop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-r.inbox:
			r.handle(cmd)
		case now := <-r.sim.TickC():
			r.tick(now)
		}
	}
}

func (r *Room) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		p, err := r.join(c.id, c.peer)
		c.reply <- joinReply{player: p, err: err}
	case leaveCmd:
		r.leave(c.id)
	case inputCmd:
		res := r.sim.ApplyInput(c.id, c.move.Direction, c.move.EventID)
		r.metrics.AddMove(res)
		if res != MoveApplied {
			Log.Debugw("move not applied", "player", c.id, "direction", c.move.Direction, "result", res)
		}
	case configCmd:
		if c.patch.BoundsCheck != nil {
			r.sim.SetBoundsCheck(*c.patch.BoundsCheck)
			Log.Infof("config updated: boundsCheck=%v", *c.patch.BoundsCheck)
		}
		c.reply <- RoomConfig{BoundsCheck: r.sim.BoundsCheck()}
	case statusCmd:
		st := RoomStatus{Status: r.sim.Status(), Players: r.sim.NumPlayers()}
		if r.sim.loop != nil {
			st.TickSeq = r.sim.loop.seq
		}
		c.reply <- st
	default:
		Log.Warnf("room: unexpected command %T", cmd)
	}
}

// join 新玩家先收到 initial-info，其他人再收到 player-connected；
// 任何一步失败都撤销加入，其他玩家不会看到它
func (r *Room) join(id PlayerID, peer Peer) (protocol.Player, error) {
	p := r.sim.AddPlayer(id).Wire()
	if err := r.fanout.Add(id, peer); err != nil {
		r.sim.RemovePlayer(id)
		return protocol.Player{}, fmt.Errorf("adding %s to fanout: %w", id, err)
	}

	snap := r.sim.Snapshot()
	info := protocol.InitialInfo{
		Player:  p,
		Players: snap.Players,
		Status:  snap.Status,
		Map:     r.sim.Map(),
	}
	frame, err := protocol.Encode(r.codec, protocol.MsgInitialInfo, info)
	if err == nil {
		err = r.fanout.SendTo(id, frame)
	}
	if err != nil {
		r.fanout.Remove(id)
		r.sim.RemovePlayer(id)
		return protocol.Player{}, fmt.Errorf("sending initial-info to %s: %w", id, err)
	}
	r.metrics.IncJoin()

	r.broadcast(protocol.MsgPlayerConnected, protocol.PlayerConnected{Player: p}, id)
	Log.Infow("player joined", "player", id, "players", r.sim.NumPlayers(), "status", r.sim.Status())
	return p, nil
}

// leave 未知 id 直接忽略，重复离开无副作用
func (r *Room) leave(id PlayerID) {
	r.fanout.Remove(id)
	p, ok := r.sim.RemovePlayer(id)
	if !ok {
		return
	}
	r.metrics.IncLeave()
	if r.sim.NumPlayers() > 0 {
		r.broadcast(protocol.MsgPlayerDisconnected, protocol.PlayerDisconnected{Player: p.Wire()}, "")
	}
	Log.Infow("player left", "player", id, "players", r.sim.NumPlayers(), "status", r.sim.Status())
}

func (r *Room) tick(now time.Time) {
	start := time.Now()
	info, ok := r.sim.Tick(now)
	if !ok {
		return
	}
	r.broadcast(protocol.MsgGameState, r.sim.Snapshot(), "")
	r.metrics.IncSnapshot()
	r.metrics.AddTick(info.Delta, time.Since(start))
	if info.Seq%600 == 0 {
		Log.Debugw("tick", "seq", info.Seq, "delta", info.Delta, "players", r.sim.NumPlayers())
	}
}

// broadcast 编码一次，发给 except 以外的所有连接
func (r *Room) broadcast(t string, payload any, except PlayerID) {
	frame, err := protocol.Encode(r.codec, t, payload)
	if err != nil {
		Log.Errorw("encode failed", "type", t, "err", err)
		return
	}
	if failed := r.fanout.Broadcast(frame, except); failed > 0 {
		r.metrics.AddSendDropped(failed)
	}
}

// Join 请求加入并等待 actor 完成 initial-info 的投递。
// 返回错误时调用方仍需 Leave：超时后排队中的 join 依然会被处理
func (r *Room) Join(ctx context.Context, id PlayerID, peer Peer) (protocol.Player, error) {
	reply := make(chan joinReply, 1)
	if err := r.send(ctx, joinCmd{id: id, peer: peer, reply: reply}); err != nil {
		return protocol.Player{}, err
	}
	select {
	case res := <-reply:
		return res.player, res.err
	case <-r.done:
		return protocol.Player{}, ErrRoomClosed
	case <-ctx.Done():
		return protocol.Player{}, ctx.Err()
	}
}

// Leave 阻塞式写入，保证移除一定生效；房间已关闭时直接返回
func (r *Room) Leave(id PlayerID) {
	select {
	case r.inbox <- leaveCmd{id: id}:
	case <-r.done:
	}
}

// Input 不阻塞：收件箱满时丢弃，保证 Tick 准时
func (r *Room) Input(id PlayerID, mv protocol.PlayerMove) {
	select {
	case r.inbox <- inputCmd{id: id, move: mv}:
	default:
		r.metrics.IncInboxFull()
	}
}

// Config patch 为空时只读取
func (r *Room) Config(ctx context.Context, patch RoomConfigPatch) (RoomConfig, error) {
	reply := make(chan RoomConfig, 1)
	if err := r.send(ctx, configCmd{patch: patch, reply: reply}); err != nil {
		return RoomConfig{}, err
	}
	select {
	case c := <-reply:
		return c, nil
	case <-r.done:
		return RoomConfig{}, ErrRoomClosed
	case <-ctx.Done():
		return RoomConfig{}, ctx.Err()
	}
}

func (r *Room) Status(ctx context.Context) (RoomStatus, error) {
	reply := make(chan RoomStatus, 1)
	if err := r.send(ctx, statusCmd{reply: reply}); err != nil {
		return RoomStatus{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return RoomStatus{}, ErrRoomClosed
	case <-ctx.Done():
		return RoomStatus{}, ctx.Err()
	}
}

func (r *Room) send(ctx context.Context, cmd any) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
