package handler

import (
	"math"

	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("move", handleMove)
	register("stop", handleStop)
	register("face", handleFace)
	register("move_to", handleMoveTo)
}

// canMove covers the shared movement gates.
func canMove(r *world.Resident) string {
	if r.ArrestedBy != "" {
		return ReasonArrested
	}
	if r.Sleeping {
		return ReasonSleeping
	}
	if r.Needs.Energy <= 0 {
		return ReasonExhausted
	}
	return ""
}

// handleMove sets a heading velocity: {direction: degrees, speed: walk|run}.
func handleMove(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Direction int    `json:"direction"`
		Speed     string `json:"speed"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if reason := canMove(r); reason != "" {
		return fail(msg, reason)
	}
	speed, mode := sim.WalkSpeed, world.SpeedWalking
	if p.Speed == "run" {
		speed, mode = sim.RunSpeed, world.SpeedRunning
	}
	r.CancelPath()
	dir := ((p.Direction % 360) + 360) % 360
	rad := float64(dir) * math.Pi / 180
	r.Facing = dir
	r.VelX = math.Cos(rad) * speed
	r.VelY = math.Sin(rad) * speed
	r.Speed = mode
	return ok(msg, map[string]any{"direction": dir, "speed": string(mode)})
}

func handleStop(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	r.CancelPath()
	return ok(msg, nil)
}

func handleFace(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Direction int `json:"direction"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if r.Sleeping {
		return fail(msg, ReasonSleeping)
	}
	r.Facing = ((p.Direction % 360) + 360) % 360
	return ok(msg, map[string]any{"facing": r.Facing})
}

// handleMoveTo computes an A* route: {x, y} in pixels or {building: id}.
// Routing to a building heads for its door and steps inside on arrival.
func handleMoveTo(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		Building string   `json:"building"`
		Speed    string   `json:"speed"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if reason := canMove(r); reason != "" {
		return fail(msg, reason)
	}

	var tx, ty float64
	enterTarget := ""
	switch {
	case p.Building != "":
		b := d.World.Map.BuildingByID(p.Building)
		if b == nil || len(b.Doors) == 0 {
			return fail(msg, ReasonNotFound)
		}
		tx, ty = d.World.Map.DoorExit(&b.Doors[0])
		enterTarget = b.ID
	case p.X != nil && p.Y != nil:
		tx, ty = *p.X, *p.Y
	default:
		return fail(msg, ReasonBadParams)
	}

	// Routes run on the street grid; when indoors, plan from the door exit
	// and only step outside once a route exists.
	sx, sy := r.X, r.Y
	if r.Building != "" {
		if b := d.World.Map.BuildingByID(r.Building); b != nil && len(b.Doors) > 0 {
			sx, sy = d.World.Map.DoorExit(&b.Doors[0])
		}
	}
	waypoints := world.FindPath(d.World.Map, sx, sy, tx, ty)
	if waypoints == nil {
		return fail(msg, ReasonNoPath)
	}
	if r.Building != "" {
		placeOutside(d, r)
	}
	mode := world.SpeedWalking
	if p.Speed == "run" {
		mode = world.SpeedRunning
	}
	r.Path = &world.PathState{
		Waypoints:   waypoints,
		Speed:       mode,
		EnterTarget: enterTarget,
	}
	return ok(msg, map[string]any{"waypoints": len(waypoints)})
}
