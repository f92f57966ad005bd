package server

import "possync/protocol"

// 房间收件箱里的命令；全部由 Room.Run 所在协程串行处理

type joinCmd struct {
	id    PlayerID
	peer  Peer
	reply chan joinReply
}

type joinReply struct {
	player protocol.Player
	err    error
}

type leaveCmd struct {
	id PlayerID
}

// inputCmd 客户端的一次 player-move
type inputCmd struct {
	id   PlayerID
	move protocol.PlayerMove
}

// RoomConfig 可热更新的房间规则
type RoomConfig struct {
	BoundsCheck bool `json:"boundsCheck"`
}

// RoomConfigPatch 为 nil 的字段保持不变
type RoomConfigPatch struct {
	BoundsCheck *bool `json:"boundsCheck,omitempty"`
}

type configCmd struct {
	patch RoomConfigPatch
	reply chan RoomConfig
}

// RoomStatus 只读状态查询结果
type RoomStatus struct {
	Status  protocol.Status `json:"status"`
	Players int             `json:"players"`
	TickSeq uint64          `json:"tick"`
}

type statusCmd struct {
	reply chan RoomStatus
}
