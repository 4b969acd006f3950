// Package perception computes what each resident can see and hear, and
// assembles the per-tick perception packets for players and spectators.
// Everything here is read-only over world state; the scheduler owns all
// mutation.
package perception

import (
	"math"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/world"
)

// Vision tuning.
const (
	FOVDegrees     = 120.0
	FOVRadius      = 320.0 // px
	AmbientRadius  = 96.0  // px, always visible inside this disk
	BuildingRadius = 480.0 // px, buildings and forage nodes
	NightMin       = 0.4
	dayStart       = 7.0
	dayEnd         = 17.0
	nightStart     = 19.0
	nightEnd       = 5.0
)

// NightMultiplier scales vision ranges by the in-world hour: 1.0 during the
// day, NightMin at night, linear through dawn and dusk.
func NightMultiplier(hour float64) float64 {
	switch {
	case hour >= dayStart && hour <= dayEnd:
		return 1.0
	case hour >= nightStart || hour <= nightEnd:
		return NightMin
	case hour > dayEnd && hour < nightStart:
		// dusk: 17 → 19
		t := (hour - dayEnd) / (nightStart - dayEnd)
		return 1.0 - t*(1.0-NightMin)
	default:
		// dawn: 5 → 7
		t := (hour - nightEnd) / (dayStart - nightEnd)
		return NightMin + t*(1.0-NightMin)
	}
}

// CanSee reports whether viewer sees target: always within the scaled
// ambient disk; within the scaled FOV disk only when the target sits inside
// the facing cone and the map grants line of sight.
func CanSee(m *data.GameMap, viewer, target *world.Resident, nightMult float64) bool {
	dx, dy := target.X-viewer.X, target.Y-viewer.Y
	dist := math.Hypot(dx, dy)
	if dist <= AmbientRadius*nightMult {
		return true
	}
	if dist > FOVRadius*nightMult {
		return false
	}
	if !withinCone(viewer.Facing, dx, dy) {
		return false
	}
	return m.HasLineOfSight(viewer.X, viewer.Y, target.X, target.Y)
}

// CanSeeStatic covers buildings and forage nodes: a longer disk, no cone,
// no LOS.
func CanSeeStatic(viewer *world.Resident, x, y, nightMult float64) bool {
	return math.Hypot(x-viewer.X, y-viewer.Y) <= BuildingRadius*nightMult
}

func withinCone(facing int, dx, dy float64) bool {
	angle := math.Atan2(dy, dx) * 180 / math.Pi
	diff := math.Mod(angle-float64(facing)+540, 360) - 180
	return math.Abs(diff) <= FOVDegrees/2
}
