package server

import "possync/protocol"

// PlayerID 表示玩家唯一标识（每个连接一个）
type PlayerID string

// PlayerSpec 新玩家的出生参数
type PlayerSpec struct {
	X, Y          float64
	Width, Height float64
	Velocity      float64
}

// Player 房间内的玩家实体（服务端权威状态）
type Player struct {
	ID                   PlayerID
	X                    float64
	Y                    float64
	Width                float64
	Height               float64
	Velocity             float64
	LastProcessedEventID int64
}

// Wire 转为广播给客户端的记录
func (p *Player) Wire() protocol.Player {
	return protocol.Player{
		ID:                   string(p.ID),
		X:                    p.X,
		Y:                    p.Y,
		Width:                p.Width,
		Height:               p.Height,
		Velocity:             p.Velocity,
		LastProcessedEventID: p.LastProcessedEventID,
	}
}
