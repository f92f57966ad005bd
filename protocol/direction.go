package protocol

import (
	"fmt"
	"strings"
)

// Direction 移动方向（服务端权威解释客户端“意图”）
type Direction string

const (
	DirUp    Direction = "UP"
	DirDown  Direction = "DOWN"
	DirLeft  Direction = "LEFT"
	DirRight Direction = "RIGHT"
)

// Directions 固定的处理顺序，客户端每个本地 Tick 按此顺序生成事件
var Directions = [...]Direction{DirUp, DirDown, DirLeft, DirRight}

// Valid 是否为四个合法方向之一
func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}

// Step 返回按速度缩放后的一步位移
func (d Direction) Step(velocity float64) (dx, dy float64) {
	switch d {
	case DirUp:
		return 0, -velocity
	case DirDown:
		return 0, velocity
	case DirLeft:
		return -velocity, 0
	case DirRight:
		return velocity, 0
	}
	return 0, 0
}

// ParseDirection 宽松解析（大小写不敏感）
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}
