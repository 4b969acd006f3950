package sim

import (
	"math"
	"time"

	"github.com/opencity/server/internal/world"
)

// Movement runs at the position tick: path following, Euler integration
// with wall-sliding collision, and stuck detection.
type Movement struct {
	world *world.State
}

func NewMovement(w *world.State) *Movement {
	return &Movement{world: w}
}

func (m *Movement) Update(dt time.Duration) {
	secs := dt.Seconds()
	m.world.All(func(r *world.Resident) {
		if r.Status != world.StatusAlive || r.Sleeping {
			return
		}
		if r.Imprisoned(m.world.Clock.WorldSecs) || r.ArrestedBy != "" {
			return
		}
		if r.Path != nil {
			m.followPath(r)
		}
		m.integrate(r, secs)
	})
}

// followPath steers toward the current waypoint, advancing within the
// waypoint radius. After the final waypoint the resident stops and, if the
// route targeted a building door, steps inside.
func (m *Movement) followPath(r *world.Resident) {
	p := r.Path
	for p.Index < len(p.Waypoints) {
		wp := p.Waypoints[p.Index]
		if math.Hypot(wp[0]-r.X, wp[1]-r.Y) > WaypointRadius {
			break
		}
		p.Index++
	}
	if p.Index >= len(p.Waypoints) {
		target := p.EnterTarget
		r.CancelPath()
		if target != "" {
			if b, d := m.world.Map.DoorNear(r.X, r.Y, 2*float64(m.world.Map.TileSize)); d != nil && b.ID == target {
				r.Building = target
				r.Dirty = true
			}
		}
		return
	}

	wp := p.Waypoints[p.Index]
	dx, dy := wp[0]-r.X, wp[1]-r.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return
	}
	speed := WalkSpeed
	r.Speed = world.SpeedWalking
	if p.Speed == world.SpeedRunning {
		speed = RunSpeed
		r.Speed = world.SpeedRunning
	}
	r.VelX = dx / dist * speed
	r.VelY = dy / dist * speed
	r.Facing = headingDegrees(dx, dy)
}

// integrate applies velocity with collision resolution: full move, then
// x-only, then y-only (wall sliding), else blocked in place.
func (m *Movement) integrate(r *world.Resident, secs float64) {
	if r.VelX == 0 && r.VelY == 0 {
		r.Blocked = false
		return
	}
	nx := r.X + r.VelX*secs
	ny := r.Y + r.VelY*secs

	moved := false
	switch {
	case !m.world.Map.IsPositionBlocked(nx, ny, HitboxHalf):
		r.X, r.Y = nx, ny
		moved = true
	case nx != r.X && !m.world.Map.IsPositionBlocked(nx, r.Y, HitboxHalf):
		r.X = nx
		moved = true
	case ny != r.Y && !m.world.Map.IsPositionBlocked(r.X, ny, HitboxHalf):
		r.Y = ny
		moved = true
	}
	r.Blocked = !moved
	if moved {
		r.Dirty = true
		if r.Path != nil {
			r.Path.BlockedFor = 0
		}
		return
	}
	if r.Path != nil {
		r.Path.BlockedFor++
		if r.Path.BlockedFor >= MaxBlockedTicks {
			r.CancelPath()
			r.Notify("Your route is blocked; stopping.")
		}
	}
}

// MoveCost returns the distance-proportional energy cost for a gait.
func MoveCost(speed world.SpeedMode, distPx float64) float64 {
	switch speed {
	case world.SpeedRunning:
		return distPx * RunCostPerPx
	case world.SpeedWalking:
		return distPx * WalkCostPerPx
	default:
		return 0
	}
}

// headingDegrees converts a direction vector to integer degrees 0-359,
// 0 = +x, counter-clockwise positive in screen space.
func headingDegrees(dx, dy float64) int {
	deg := math.Atan2(dy, dx) * 180 / math.Pi
	d := int(math.Round(deg))
	for d < 0 {
		d += 360
	}
	return d % 360
}
