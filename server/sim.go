package server

import (
	"sort"
	"time"

	"possync/gamemap"
	"possync/protocol"
)

// MoveResult 单次输入的处理结果
type MoveResult int

const (
	MoveApplied MoveResult = iota
	MoveUnknownPlayer
	MoveRejected // 越界，位置不变但 eventId 已记录
	MoveInvalid
)

func (r MoveResult) String() string {
	switch r {
	case MoveApplied:
		return "applied"
	case MoveUnknownPlayer:
		return "unknown_player"
	case MoveRejected:
		return "rejected"
	case MoveInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// GameState 权威世界状态
type GameState struct {
	Status  protocol.Status
	Players map[PlayerID]*Player
}

// Simulation 唯一的权威模拟；只允许 Room 的协程访问
type Simulation struct {
	state  GameState
	world  gamemap.Map
	spawn  PlayerSpec
	bounds bool

	interval  time.Duration
	newTicker func(time.Duration) Ticker
	now       func() time.Time

	// loop == nil 即 STOPPED
	loop *tickLoop
}

// NewSimulation 创建处于 STOPPED 状态的模拟
func NewSimulation(world gamemap.Map, spawn PlayerSpec, interval time.Duration, boundsCheck bool) *Simulation {
	return &Simulation{
		state: GameState{
			Status:  protocol.StatusStopped,
			Players: make(map[PlayerID]*Player),
		},
		world:     world,
		spawn:     spawn,
		bounds:    boundsCheck,
		interval:  interval,
		newTicker: newTimeTicker,
		now:       time.Now,
	}
}

// AddPlayer 在出生点创建玩家；第一个玩家进入时启动 Tick
func (s *Simulation) AddPlayer(id PlayerID) *Player {
	if p, ok := s.state.Players[id]; ok {
		return p
	}
	p := &Player{
		ID:       id,
		X:        s.spawn.X,
		Y:        s.spawn.Y,
		Width:    s.spawn.Width,
		Height:   s.spawn.Height,
		Velocity: s.spawn.Velocity,
	}
	s.state.Players[id] = p
	if len(s.state.Players) == 1 {
		s.startLoop()
	}
	return p
}

// RemovePlayer 移除玩家；最后一个玩家离开时停止 Tick
func (s *Simulation) RemovePlayer(id PlayerID) (Player, bool) {
	p, ok := s.state.Players[id]
	if !ok {
		return Player{}, false
	}
	delete(s.state.Players, id)
	if len(s.state.Players) == 0 {
		s.stopLoop()
	}
	return *p, true
}

// ApplyInput 按方向移动一步，并记录客户端 eventId
func (s *Simulation) ApplyInput(id PlayerID, dir protocol.Direction, eventID *int64) MoveResult {
	p, ok := s.state.Players[id]
	if !ok {
		return MoveUnknownPlayer
	}
	if !dir.Valid() {
		return MoveInvalid
	}
	// 0 与缺省一样不更新
	if eventID != nil && *eventID > 0 {
		p.LastProcessedEventID = *eventID
	}

	dx, dy := dir.Step(p.Velocity)
	nx, ny := p.X+dx, p.Y+dy
	if s.bounds && !s.world.Contains(nx, ny, p.Width, p.Height) {
		return MoveRejected
	}
	p.X, p.Y = nx, ny
	return MoveApplied
}

// Player 按 id 查找
func (s *Simulation) Player(id PlayerID) (Player, bool) {
	p, ok := s.state.Players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (s *Simulation) NumPlayers() int { return len(s.state.Players) }

func (s *Simulation) Status() protocol.Status { return s.state.Status }

func (s *Simulation) Map() gamemap.Map { return s.world }

func (s *Simulation) BoundsCheck() bool { return s.bounds }

func (s *Simulation) SetBoundsCheck(on bool) { s.bounds = on }

// Snapshot 全量快照，玩家按 id 排序
func (s *Simulation) Snapshot() protocol.GameState {
	players := make([]protocol.Player, 0, len(s.state.Players))
	for _, p := range s.state.Players {
		players = append(players, p.Wire())
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return protocol.GameState{Status: s.state.Status, Players: players}
}
