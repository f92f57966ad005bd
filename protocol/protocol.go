package protocol

import "possync/gamemap"

// Version 线协议版本号，每个信封都携带（v 字段）
const Version = 1

// 服务端 -> 客户端
const (
	MsgInitialInfo        = "initial-info"
	MsgPlayerConnected    = "player-connected"
	MsgPlayerDisconnected = "player-disconnected"
	MsgGameState          = "game-state"
)

// 客户端 -> 服务端
const (
	MsgPlayerMove = "player-move"
)

// KnownType 判断消息名是否属于协议
func KnownType(t string) bool {
	switch t {
	case MsgInitialInfo, MsgPlayerConnected, MsgPlayerDisconnected, MsgGameState, MsgPlayerMove:
		return true
	}
	return false
}

// Status 游戏状态：有玩家时 ACTIVE，空房间 STOPPED
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusStopped Status = "STOPPED"
)

// Player 广播给客户端的玩家记录
type Player struct {
	ID                   string  `json:"id"`
	X                    float64 `json:"x"`
	Y                    float64 `json:"y"`
	Width                float64 `json:"width"`
	Height               float64 `json:"height"`
	Velocity             float64 `json:"velocity"`
	LastProcessedEventID int64   `json:"lastProcessedEventId"`
}

// GameState 每个 Tick 的完整快照
type GameState struct {
	Status  Status   `json:"status"`
	Players []Player `json:"players"`
}

// InitialInfo 连接建立后只发送一次：自身记录 + 当前快照 + 地图
type InitialInfo struct {
	Player  Player      `json:"player"`
	Players []Player    `json:"players"`
	Status  Status      `json:"status"`
	Map     gamemap.Map `json:"map"`
}

// PlayerConnected 其他玩家加入
type PlayerConnected struct {
	Player Player `json:"player"`
}

// PlayerDisconnected 其他玩家离开（携带最后已知记录）
type PlayerDisconnected struct {
	Player Player `json:"player"`
}

// PlayerMove 客户端移动输入；EventID 可缺省（例如停止信号）
type PlayerMove struct {
	Direction Direction `json:"direction"`
	EventID   *int64    `json:"eventId,omitempty"`
}

// Find 按 id 查找快照中的玩家
func (s GameState) Find(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
