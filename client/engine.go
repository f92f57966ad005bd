package client

import (
	"fmt"
	"time"

	"github.com/yohamta/donburi"
	dmath "github.com/yohamta/donburi/features/math"
	"go.uber.org/zap"

	"possync/gamemap"
	"possync/protocol"
)

// MoveSender 把一次 player-move 发给服务端
type MoveSender interface {
	SendMove(protocol.PlayerMove) error
}

// Stats 客户端侧计数
type Stats struct {
	MovesSent  int64
	SendErrors int64
	Snapshots  int64
	Acked      int64 // 因确认而出队的事件数
	Resyncs    int64
	Blocked    int64 // 客户端边界检查拦下的步
}

// Engine 客户端预测与校正；非并发安全，只在一个协程中使用
type Engine struct {
	send     MoveSender
	log      *zap.SugaredLogger
	bounds   bool
	smoother Smoother
	camera   Camera

	world   *World
	input   InputState
	pending PendingQueue

	ready   bool
	localID string
	gameMap gamemap.Map
	status  protocol.Status

	// lastIssued 本客户端发出的最大 eventId；lastAck 只增不减
	lastIssued int64
	lastAck    int64

	stats Stats
}

type Option func(*Engine)

// WithBoundsCheck 与服务端策略保持一致时打开
func WithBoundsCheck(on bool) Option {
	return func(e *Engine) { e.bounds = on }
}

func WithSmoother(s Smoother) Option {
	return func(e *Engine) { e.smoother = s }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithViewport 相机视口大小与跟随系数
func WithViewport(w, h, followSmoothing float64) Option {
	return func(e *Engine) {
		e.camera.ViewW, e.camera.ViewH = w, h
		e.camera.FollowSmoothing = followSmoothing
	}
}

func NewEngine(send MoveSender, opts ...Option) *Engine {
	e := &Engine{
		send:     send,
		log:      zap.NewNop().Sugar(),
		smoother: ExponentialSmoother{Factor: DefaultSmoothingFactor},
		camera:   Camera{ViewW: 800, ViewH: 600, FollowSmoothing: DefaultFollowSmoothing},
		world:    NewWorld(),
		status:   protocol.StatusStopped,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Press 按下边沿；返回是否发生变化
func (e *Engine) Press(d protocol.Direction) bool { return e.input.Press(d) }

// Release 松开边沿；返回是否发生变化
func (e *Engine) Release(d protocol.Direction) bool { return e.input.Release(d) }

// SimTick 每个按住的方向生成一个事件：本地先走一步，入队，再发送
func (e *Engine) SimTick() int {
	if !e.ready {
		return 0
	}
	entry, ok := e.world.Entry(e.localID)
	if !ok {
		return 0
	}
	pd := Player.Get(entry)
	pos := Position.Get(entry)

	issued := 0
	for _, d := range e.input.Active() {
		dx, dy := d.Step(pd.Velocity)
		nx, ny := pos.Display.X+dx, pos.Display.Y+dy
		if e.bounds && !e.gameMap.Contains(nx, ny, pd.Width, pd.Height) {
			e.stats.Blocked++
			continue
		}

		e.lastIssued++
		id := e.lastIssued
		pos.Display.X, pos.Display.Y = nx, ny
		e.pending.Push(PendingMove{EventID: id, DX: dx, DY: dy})
		issued++

		// 发送失败不回滚，下一帧快照会收敛
		if err := e.send.SendMove(protocol.PlayerMove{Direction: d, EventID: &id}); err != nil {
			e.stats.SendErrors++
			e.log.Debugw("send move failed", "direction", d, "eventId", id, "err", err)
			continue
		}
		e.stats.MovesSent++
	}
	return issued
}

// HandleInitialInfo 重建本地镜像
func (e *Engine) HandleInitialInfo(info protocol.InitialInfo) {
	e.world.Clear()
	e.pending.Clear()

	e.localID = info.Player.ID
	e.gameMap = info.Map
	e.status = info.Status
	e.lastAck = info.Player.LastProcessedEventID
	e.lastIssued = e.lastAck

	e.world.Add(info.Player, false)
	for _, p := range info.Players {
		if p.ID == e.localID {
			continue
		}
		e.world.Add(p, true)
	}
	e.camera.Snap(dmath.Vec2{X: info.Player.X, Y: info.Player.Y}, e.gameMap)
	e.ready = true

	e.log.Infow("joined", "player", e.localID, "players", e.world.Len(), "status", e.status)
}

func (e *Engine) HandlePlayerConnected(p protocol.Player) {
	if !e.ready || p.ID == e.localID {
		return
	}
	if _, added := e.world.Add(p, true); added {
		e.log.Debugw("player connected", "player", p.ID)
	}
}

func (e *Engine) HandlePlayerDisconnected(p protocol.Player) {
	if !e.ready || p.ID == e.localID {
		return
	}
	if e.world.Remove(p.ID) {
		e.log.Debugw("player disconnected", "player", p.ID)
	}
}

// HandleGameState 权威快照：本地玩家校正，远端玩家设置平滑目标
func (e *Engine) HandleGameState(st protocol.GameState) {
	if !e.ready {
		return
	}
	e.status = st.Status
	e.stats.Snapshots++

	for _, p := range st.Players {
		entry, ok := e.world.Entry(p.ID)
		if !ok {
			continue
		}
		pos := Position.Get(entry)
		target := dmath.Vec2{X: p.X, Y: p.Y}
		pos.Server = target

		if p.ID == e.localID {
			e.reconcile(pos, p.LastProcessedEventID)
			continue
		}
		e.smoother.Retarget(pos, Remote.Get(entry), target)
	}
}

func (e *Engine) reconcile(pos *PositionData, ack int64) {
	switch {
	case ack > e.lastIssued:
		// 服务端确认了本客户端从未发出的事件：清空并对齐
		e.log.Warnw("ack beyond issued events, resyncing", "ack", ack, "lastIssued", e.lastIssued, "pending", e.pending.Len())
		e.pending.Clear()
		e.lastIssued = ack
		e.lastAck = ack
		e.stats.Resyncs++
	case ack <= e.lastAck:
		// 重复或过期的确认
	default:
		e.stats.Acked += int64(e.pending.DropThrough(ack))
		e.lastAck = ack
	}

	dx, dy := e.pending.Sum()
	pos.Display.X = pos.Server.X + dx
	pos.Display.Y = pos.Server.Y + dy
}

// RenderTick 只推进平滑与相机，不触碰队列与权威位置
func (e *Engine) RenderTick(dt time.Duration) {
	if !e.ready {
		return
	}
	e.world.EachRemote(func(entry *donburi.Entry) {
		e.smoother.Advance(Position.Get(entry), Remote.Get(entry), dt)
	})
	if entry, ok := e.world.Entry(e.localID); ok {
		e.camera.Follow(Position.Get(entry).Display, e.gameMap)
	}
}

// HandleEnvelope 按消息类型分发
func (e *Engine) HandleEnvelope(c protocol.Codec, env protocol.Envelope) error {
	switch env.T {
	case protocol.MsgInitialInfo:
		v, err := protocol.DecodePayload[protocol.InitialInfo](c, env)
		if err != nil {
			return err
		}
		e.HandleInitialInfo(v)
	case protocol.MsgPlayerConnected:
		v, err := protocol.DecodePayload[protocol.PlayerConnected](c, env)
		if err != nil {
			return err
		}
		e.HandlePlayerConnected(v.Player)
	case protocol.MsgPlayerDisconnected:
		v, err := protocol.DecodePayload[protocol.PlayerDisconnected](c, env)
		if err != nil {
			return err
		}
		e.HandlePlayerDisconnected(v.Player)
	case protocol.MsgGameState:
		v, err := protocol.DecodePayload[protocol.GameState](c, env)
		if err != nil {
			return err
		}
		e.HandleGameState(v)
	default:
		return fmt.Errorf("%w: %q not expected by client", protocol.ErrUnknownType, env.T)
	}
	return nil
}

func (e *Engine) Ready() bool             { return e.ready }
func (e *Engine) LocalID() string         { return e.localID }
func (e *Engine) Status() protocol.Status { return e.status }
func (e *Engine) Map() gamemap.Map        { return e.gameMap }
func (e *Engine) Pending() []PendingMove  { return e.pending.Items() }
func (e *Engine) LastAck() int64          { return e.lastAck }
func (e *Engine) LastIssued() int64       { return e.lastIssued }
func (e *Engine) Stats() Stats            { return e.stats }
func (e *Engine) Camera() dmath.Vec2      { return e.camera.Position }

// Local 本地玩家视图
func (e *Engine) Local() (PlayerView, bool) {
	return e.Player(e.localID)
}

func (e *Engine) Player(id string) (PlayerView, bool) {
	entry, ok := e.world.Entry(id)
	if !ok {
		return PlayerView{}, false
	}
	return view(entry), true
}

func (e *Engine) NumPlayers() int { return e.world.Len() }
