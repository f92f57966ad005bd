package client

import (
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	dmath "github.com/yohamta/donburi/features/math"
)

// DefaultSmoothingFactor 每步向目标靠近的比例
const DefaultSmoothingFactor = 0.2

// Smoother 远端玩家的显示位置如何追赶权威位置
type Smoother interface {
	// Retarget 收到新快照时调用
	Retarget(pos *PositionData, r *RemoteData, target dmath.Vec2)
	// Advance 每个渲染帧调用
	Advance(pos *PositionData, r *RemoteData, dt time.Duration)
}

// ExponentialSmoother 收到时走一步，之后每个渲染帧再走一步
type ExponentialSmoother struct {
	Factor float64
}

func (s ExponentialSmoother) step(pos *PositionData, target dmath.Vec2) {
	pos.Display.X += (target.X - pos.Display.X) * s.Factor
	pos.Display.Y += (target.Y - pos.Display.Y) * s.Factor
}

func (s ExponentialSmoother) Retarget(pos *PositionData, r *RemoteData, target dmath.Vec2) {
	r.Target = target
	s.step(pos, target)
}

func (s ExponentialSmoother) Advance(pos *PositionData, r *RemoteData, _ time.Duration) {
	s.step(pos, r.Target)
}

// TweenSmoother 固定时长的线性补间，每次收到快照从当前显示位置重新开始
type TweenSmoother struct {
	Duration time.Duration
}

func (s TweenSmoother) Retarget(pos *PositionData, r *RemoteData, target dmath.Vec2) {
	r.Target = target
	if s.Duration <= 0 {
		pos.Display = target
		r.tweenX, r.tweenY = nil, nil
		return
	}
	d := float32(s.Duration.Seconds())
	r.tweenX = gween.New(float32(pos.Display.X), float32(target.X), d, ease.Linear)
	r.tweenY = gween.New(float32(pos.Display.Y), float32(target.Y), d, ease.Linear)
}

func (s TweenSmoother) Advance(pos *PositionData, r *RemoteData, dt time.Duration) {
	if r.tweenX == nil || r.tweenY == nil {
		return
	}
	x, doneX := r.tweenX.Update(float32(dt.Seconds()))
	y, doneY := r.tweenY.Update(float32(dt.Seconds()))
	pos.Display.X, pos.Display.Y = float64(x), float64(y)
	if doneX && doneY {
		// 结束时精确落到目标，避免 float32 误差
		pos.Display = r.Target
		r.tweenX, r.tweenY = nil, nil
	}
}
