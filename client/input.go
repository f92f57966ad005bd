package client

import "possync/protocol"

// InputState 四个方向的按住状态，只在按下/松开的边沿变化
type InputState struct {
	held [len(protocol.Directions)]bool
}

func dirIndex(d protocol.Direction) (int, bool) {
	for i, v := range protocol.Directions {
		if v == d {
			return i, true
		}
	}
	return 0, false
}

// Press 返回是否发生了边沿；重复按下不产生变化
func (s *InputState) Press(d protocol.Direction) bool {
	i, ok := dirIndex(d)
	if !ok || s.held[i] {
		return false
	}
	s.held[i] = true
	return true
}

// Release 返回是否发生了边沿
func (s *InputState) Release(d protocol.Direction) bool {
	i, ok := dirIndex(d)
	if !ok || !s.held[i] {
		return false
	}
	s.held[i] = false
	return true
}

func (s *InputState) Held(d protocol.Direction) bool {
	i, ok := dirIndex(d)
	return ok && s.held[i]
}

// Active 当前按住的方向，固定顺序 UP, DOWN, LEFT, RIGHT
func (s *InputState) Active() []protocol.Direction {
	var out []protocol.Direction
	for i, d := range protocol.Directions {
		if s.held[i] {
			out = append(out, d)
		}
	}
	return out
}
