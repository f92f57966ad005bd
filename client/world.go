package client

import (
	"github.com/tanema/gween"
	"github.com/yohamta/donburi"
	dmath "github.com/yohamta/donburi/features/math"

	"possync/protocol"
)

// PlayerData 玩家的静态属性
type PlayerData struct {
	ID       string
	Width    float64
	Height   float64
	Velocity float64
}

// PositionData Server 为最近一次权威位置，Display 为渲染位置
type PositionData struct {
	Server  dmath.Vec2
	Display dmath.Vec2
}

// RemoteData 远端玩家的平滑状态
type RemoteData struct {
	Target dmath.Vec2
	tweenX *gween.Tween
	tweenY *gween.Tween
}

var (
	Player   = donburi.NewComponentType[PlayerData]()
	Position = donburi.NewComponentType[PositionData]()
	Remote   = donburi.NewComponentType[RemoteData]()
)

// World 客户端镜像世界，按玩家 id 索引实体
type World struct {
	w     donburi.World
	index map[string]donburi.Entity
}

func NewWorld() *World {
	return &World{
		w:     donburi.NewWorld(),
		index: make(map[string]donburi.Entity),
	}
}

// Add 创建玩家实体；已存在时返回 false
func (w *World) Add(p protocol.Player, remote bool) (*donburi.Entry, bool) {
	if e, ok := w.Entry(p.ID); ok {
		return e, false
	}

	comps := []donburi.IComponentType{Player, Position}
	if remote {
		comps = append(comps, Remote)
	}
	entity := w.w.Create(comps...)
	entry := w.w.Entry(entity)

	pos := dmath.Vec2{X: p.X, Y: p.Y}
	Player.Set(entry, &PlayerData{ID: p.ID, Width: p.Width, Height: p.Height, Velocity: p.Velocity})
	Position.Set(entry, &PositionData{Server: pos, Display: pos})
	if remote {
		Remote.Set(entry, &RemoteData{Target: pos})
	}

	w.index[p.ID] = entity
	return entry, true
}

func (w *World) Entry(id string) (*donburi.Entry, bool) {
	entity, ok := w.index[id]
	if !ok || !w.w.Valid(entity) {
		return nil, false
	}
	return w.w.Entry(entity), true
}

func (w *World) Remove(id string) bool {
	entity, ok := w.index[id]
	if !ok {
		return false
	}
	delete(w.index, id)
	if w.w.Valid(entity) {
		w.w.Remove(entity)
	}
	return true
}

func (w *World) Len() int { return len(w.index) }

// EachRemote 遍历所有远端玩家
func (w *World) EachRemote(fn func(*donburi.Entry)) {
	Remote.Each(w.w, fn)
}

func (w *World) Clear() {
	for id := range w.index {
		w.Remove(id)
	}
}

// PlayerView 只读视图，供渲染和测试使用
type PlayerView struct {
	ID      string
	Width   float64
	Height  float64
	Server  dmath.Vec2
	Display dmath.Vec2
}

func view(e *donburi.Entry) PlayerView {
	pd := Player.Get(e)
	pos := Position.Get(e)
	return PlayerView{
		ID:      pd.ID,
		Width:   pd.Width,
		Height:  pd.Height,
		Server:  pos.Server,
		Display: pos.Display,
	}
}
