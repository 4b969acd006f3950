package handler

import (
	"time"

	"go.uber.org/zap"

	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/world"
)

func init() {
	register("sleep", handleSleep)
	register("wake", handleWake)
	register("depart", handleDepart)
}

func handleSleep(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.Sleeping {
		return fail(msg, ReasonSleeping)
	}
	if r.ArrestedBy != "" {
		return fail(msg, ReasonArrested)
	}
	if r.Needs.Energy >= 90 {
		return fail(msg, "not_tired")
	}
	r.CancelPath()
	r.Sleeping = true
	r.SleepStarted = time.Now()
	r.Dirty = true
	return ok(msg, nil)
}

func handleWake(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if !r.Sleeping {
		return fail(msg, ReasonNotSleeping)
	}
	r.Sleeping = false
	r.Dirty = true
	return ok(msg, nil)
}

// handleDepart leaves the city for good: the resident is marked departed,
// saved, and removed from the world at the next cleanup phase.
func handleDepart(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult {
	if r.ArrestedBy != "" {
		return fail(msg, ReasonArrested)
	}
	if r.CarryingSuspect != "" {
		if s := d.World.Get(r.CarryingSuspect); s != nil {
			s.ArrestedBy = ""
			s.Notify("You have been released.")
		}
		r.CarryingSuspect = ""
	}
	r.Status = world.StatusDeparted
	r.CancelPath()
	r.Dirty = true
	d.Events.Append(event.Record{Type: event.TypeDeparture, ResidentID: r.ID})
	d.Log.Info("resident departed", zap.String("resident", r.ID), zap.String("passport", r.PassportNo))
	return ok(msg, map[string]any{"farewell": "The train carries you away."})
}
