package handler

import (
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("enter_building", handleEnterBuilding)
	register("exit_building", handleExitBuilding)
	register("use_toilet", handleUseToilet)
}

// placeOutside puts a resident on the street tile in front of their
// building's door.
func placeOutside(d *Deps, r *world.Resident) {
	if b := d.World.Map.BuildingByID(r.Building); b != nil && len(b.Doors) > 0 {
		r.X, r.Y = d.World.Map.DoorExit(&b.Doors[0])
	}
	r.Building = ""
	r.Dirty = true
}

func handleEnterBuilding(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Building string `json:"building"`
	}
	if err := params(msg, &p); err != nil {
		return fail(msg, ReasonBadParams)
	}
	if reason := canMove(r); reason != "" {
		return fail(msg, reason)
	}
	if r.Building != "" {
		return fail(msg, ReasonWrongBuilding)
	}
	b, door := d.World.Map.DoorNear(r.X, r.Y, 2*float64(d.World.Map.TileSize))
	if b == nil || door == nil {
		return fail(msg, ReasonOutOfRange)
	}
	if p.Building != "" && p.Building != b.ID {
		return fail(msg, ReasonOutOfRange)
	}
	r.CancelPath()
	r.Building = b.ID
	cx, cy := d.World.Map.TileCenter(b.X+b.W/2, b.Y+b.H/2)
	r.X, r.Y = cx, cy
	r.Dirty = true
	return ok(msg, map[string]any{"building": b.ID, "name": b.Name})
}

func handleExitBuilding(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Building == "" {
		return fail(msg, ReasonWrongBuilding)
	}
	if reason := canMove(r); reason != "" {
		return fail(msg, reason)
	}
	r.CancelPath()
	placeOutside(d, r)
	return ok(msg, nil)
}

// handleUseToilet empties the bladder; requires a building whose zone offers
// the action.
func handleUseToilet(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Building == "" {
		return fail(msg, ReasonWrongBuilding)
	}
	b := d.World.Map.BuildingByID(r.Building)
	if b == nil || !buildingOffers(d, r, b.ID, "use_toilet") {
		return fail(msg, ReasonWrongBuilding)
	}
	r.Needs.Bladder = 0
	r.Dirty = true
	return ok(msg, map[string]any{"bladder": 0})
}

// buildingOffers reports whether the building's zone under the resident (or
// anywhere inside it) carries an interaction tag.
func buildingOffers(d *Deps, r *world.Resident, buildingID, action string) bool {
	b := d.World.Map.BuildingByID(buildingID)
	if b == nil {
		return false
	}
	for _, z := range b.Zones {
		for _, a := range z.Actions {
			if a == action {
				return true
			}
		}
	}
	return false
}
