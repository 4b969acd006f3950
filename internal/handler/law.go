package handler

import (
	"math"
	"strconv"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("arrest", handleArrest)
	register("book_suspect", handleBookSuspect)
	register("collect_body", handleCollectBody)
	register("process_body", handleProcessBody)
}

// hasRole reports whether the resident holds a job with the given role tag.
func hasRole(d *Deps, r *world.Resident, role string) bool {
	if r.Employment == nil {
		return false
	}
	job := d.Jobs.Get(r.Employment.JobID)
	return job != nil && job.Role == role
}

// handleArrest seizes an offender within arrest range: {target}.
func handleArrest(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Target string `json:"target"`
	}
	if err := params(msg, &p); err != nil || p.Target == "" {
		return fail(msg, ReasonBadParams)
	}
	if !hasRole(d, r, data.RolePolice) {
		return fail(msg, ReasonNotAllowed)
	}
	if r.CarryingSuspect != "" || r.CarryingBody != "" {
		return fail(msg, "hands_full")
	}
	if r.Needs.Energy < sim.ArrestEnergyCost {
		return fail(msg, ReasonExhausted)
	}
	t := d.World.Get(p.Target)
	if t == nil || !t.Alive() {
		return fail(msg, ReasonNotFound)
	}
	if t.ArrestedBy != "" || t.Imprisoned(d.World.Clock.WorldSecs) {
		return fail(msg, "already_in_custody")
	}
	if len(t.Offenses) == 0 {
		return fail(msg, "no_offense")
	}
	if math.Hypot(t.X-r.X, t.Y-r.Y) > sim.ArrestRange {
		return fail(msg, ReasonOutOfRange)
	}

	t.ArrestedBy = r.ID
	t.CancelPath()
	t.Sleeping = false
	r.CarryingSuspect = t.ID
	r.Needs.Energy -= sim.ArrestEnergyCost
	r.Needs.Clamp()
	r.Dirty, t.Dirty = true, true

	t.Notify("You have been arrested by " + r.Name + ".")
	d.Hooks.Enqueue(t.WebhookURL, webhook.Notification{
		Kind:       webhook.KindArrested,
		ResidentID: t.ID,
		WorldSecs:  d.World.Clock.WorldSecs,
		Data:       map[string]any{"officer": r.ID, "offenses": t.Offenses},
	}, true)
	d.Events.Append(event.Record{
		Type:       event.TypeArrest,
		ResidentID: r.ID,
		TargetID:   t.ID,
		Payload:    map[string]any{"offenses": t.Offenses},
	})
	return ok(msg, map[string]any{"suspect": t.ID})
}

// handleBookSuspect files the escorted suspect into a cell and pays the
// bounty. Requires the police station.
func handleBookSuspect(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Building != "police_station" {
		return fail(msg, ReasonWrongBuilding)
	}
	if r.CarryingSuspect == "" {
		return fail(msg, ReasonNotFound)
	}
	t := d.World.Get(r.CarryingSuspect)
	r.CarryingSuspect = ""
	if t == nil || !t.Alive() {
		return fail(msg, ReasonNotFound)
	}

	worldSecs := d.World.Clock.WorldSecs
	t.PrisonUntil = worldSecs + sim.SentenceSecs
	t.ArrestedBy = ""
	t.Building = "police_station"
	t.CancelPath()
	r.Wallet += sim.BookingBounty
	r.Dirty, t.Dirty = true, true

	t.Notify("You have been booked. Release at world-second " + strconv.FormatInt(t.PrisonUntil, 10) + ".")
	d.Events.Append(event.Record{
		Type:       event.TypeBooking,
		ResidentID: r.ID,
		TargetID:   t.ID,
		BuildingID: "police_station",
		Payload:    map[string]any{"release_ws": t.PrisonUntil, "bounty": sim.BookingBounty},
	})
	return ok(msg, map[string]any{"wallet": r.Wallet, "release_ws": t.PrisonUntil})
}

// handleCollectBody picks up a deceased resident nearby: {target}.
func handleCollectBody(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	var p struct {
		Target string `json:"target"`
	}
	if err := params(msg, &p); err != nil || p.Target == "" {
		return fail(msg, ReasonBadParams)
	}
	if r.CarryingBody != "" || r.CarryingSuspect != "" {
		return fail(msg, "hands_full")
	}
	t := d.World.Get(p.Target)
	if t == nil || t.Status != world.StatusDeceased {
		return fail(msg, ReasonNotFound)
	}
	if math.Hypot(t.X-r.X, t.Y-r.Y) > sim.BodyRange {
		return fail(msg, ReasonOutOfRange)
	}
	carried := false
	d.World.All(func(o *world.Resident) {
		if o.CarryingBody == t.ID {
			carried = true
		}
	})
	if carried {
		return fail(msg, "already_carried")
	}

	r.CarryingBody = t.ID
	t.X, t.Y = world.CorpseX, world.CorpseY
	t.Dirty = true
	return ok(msg, map[string]any{"body": t.ID})
}

// handleProcessBody finalises a carried corpse at the mortuary and pays the
// processing fee.
func handleProcessBody(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Building != "mortuary" {
		return fail(msg, ReasonWrongBuilding)
	}
	if r.CarryingBody == "" {
		return fail(msg, ReasonNotFound)
	}
	t := d.World.Get(r.CarryingBody)
	r.CarryingBody = ""
	if t == nil || t.Status != world.StatusDeceased {
		return fail(msg, ReasonNotFound)
	}

	t.Status = world.StatusProcessed
	t.Dirty = true
	r.Wallet += sim.BodyProcessFee
	r.Dirty = true
	d.Events.Append(event.Record{
		Type:       event.TypeBodyProcess,
		ResidentID: r.ID,
		TargetID:   t.ID,
		BuildingID: "mortuary",
		Payload:    map[string]any{"fee": sim.BodyProcessFee},
	})
	return ok(msg, map[string]any{"wallet": r.Wallet})
}
