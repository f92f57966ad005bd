package client

import (
	"math"

	dmath "github.com/yohamta/donburi/features/math"

	"possync/gamemap"
)

// DefaultFollowSmoothing 相机每帧追赶比例
const DefaultFollowSmoothing = 0.1

// Camera 跟随本地玩家的视口中心，只在本地使用
type Camera struct {
	Position        dmath.Vec2
	ViewW, ViewH    float64
	FollowSmoothing float64
}

// Target 将目标限制在地图内，视口大于地图时居中
func (c *Camera) Target(p dmath.Vec2, m gamemap.Map) dmath.Vec2 {
	minX, maxX := c.ViewW/2, float64(m.Width)-c.ViewW/2
	minY, maxY := c.ViewH/2, float64(m.Height)-c.ViewH/2
	if minX > maxX {
		minX = float64(m.Width) / 2
		maxX = minX
	}
	if minY > maxY {
		minY = float64(m.Height) / 2
		maxY = minY
	}
	return dmath.Vec2{
		X: math.Max(minX, math.Min(maxX, p.X)),
		Y: math.Max(minY, math.Min(maxY, p.Y)),
	}
}

func (c *Camera) Follow(p dmath.Vec2, m gamemap.Map) {
	t := c.Target(p, m)
	c.Position.X += (t.X - c.Position.X) * c.FollowSmoothing
	c.Position.Y += (t.Y - c.Position.Y) * c.FollowSmoothing
}

func (c *Camera) Snap(p dmath.Vec2, m gamemap.Map) {
	c.Position = c.Target(p, m)
}
