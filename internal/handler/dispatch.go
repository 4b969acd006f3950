package handler

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/world"
)

// Machine-readable failure reasons surfaced in action_result.
const (
	ReasonUnknownAction = "unknown_action"
	ReasonBadParams     = "bad_params"
	ReasonDeceased      = "deceased"
	ReasonImprisoned    = "imprisoned"
	ReasonArrested      = "arrested"
	ReasonSleeping      = "sleeping"
	ReasonNotSleeping   = "not_sleeping"
	ReasonExhausted     = "exhausted"
	ReasonTooSoon       = "too_soon"
	ReasonDuplicate     = "duplicate_speech"
	ReasonAwaitingReply = "awaiting_reply"
	ReasonNotFound      = "not_found"
	ReasonOutOfRange    = "out_of_range"
	ReasonWrongBuilding = "wrong_building"
	ReasonNoFunds       = "insufficient_funds"
	ReasonNoStock       = "out_of_stock"
	ReasonNoVacancy     = "no_vacancy"
	ReasonNoPath        = "no_path"
	ReasonDepleted      = "depleted"
	ReasonNotAllowed    = "not_allowed"
	ReasonAlreadyVoted  = "already_voted"
	ReasonInternal      = "internal_error"
)

// HandlerFunc validates and applies one action. sess may be nil in tests;
// handlers that emit extra messages (inspect_result) must tolerate that.
type HandlerFunc func(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult

var registry = map[string]HandlerFunc{}

func register(tag string, fn HandlerFunc) {
	registry[tag] = fn
}

// imprisonedAllowed lists the actions an imprisoned resident keeps.
var imprisonedAllowed = map[string]bool{
	"inspect":         true,
	"speak":           true,
	"submit_feedback": true,
}

// Dispatch runs the arbiter pipeline for one inbound command: request-id
// dedup, status gating, then the per-tag handler. Panics are contained here;
// the scheduler never dies to a handler bug.
func Dispatch(d *Deps, sess *net.Session, r *world.Resident, msg net.ClientMessage) (res *net.ActionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			d.Log.Error("handler panic",
				zap.String("action", msg.Type),
				zap.String("resident", r.ID),
				zap.Any("panic", rec))
			res = fail(msg, ReasonInternal)
		}
	}()

	now := time.Now()
	if msg.RequestID != "" {
		gcRequests(r, now)
		if _, seen := r.SeenRequests[msg.RequestID]; seen {
			return &net.ActionResult{
				Type: "action_result", RequestID: msg.RequestID,
				Status: "ok", Reason: "duplicate_request",
			}
		}
		r.SeenRequests[msg.RequestID] = now
	}

	if r.Status == world.StatusDeceased {
		return fail(msg, ReasonDeceased)
	}
	if r.Status != world.StatusAlive {
		return fail(msg, ReasonNotAllowed)
	}
	if r.Imprisoned(d.World.Clock.WorldSecs) && !imprisonedAllowed[msg.Type] {
		return fail(msg, ReasonImprisoned)
	}

	fn, found := registry[msg.Type]
	if !found {
		return fail(msg, ReasonUnknownAction)
	}
	return fn(d, sess, r, msg)
}

func gcRequests(r *world.Resident, now time.Time) {
	for id, at := range r.SeenRequests {
		if now.Sub(at) > sim.RequestTTL {
			delete(r.SeenRequests, id)
		}
	}
}

func ok(msg net.ClientMessage, data any) *net.ActionResult {
	return &net.ActionResult{
		Type: "action_result", RequestID: msg.RequestID,
		Status: "ok", Data: data,
	}
}

func fail(msg net.ClientMessage, reason string) *net.ActionResult {
	return &net.ActionResult{
		Type: "action_result", RequestID: msg.RequestID,
		Status: "error", Reason: reason,
	}
}

func failData(msg net.ClientMessage, reason string, data any) *net.ActionResult {
	return &net.ActionResult{
		Type: "action_result", RequestID: msg.RequestID,
		Status: "error", Reason: reason, Data: data,
	}
}

// params decodes msg.Params into dst, tolerating an absent params object.
func params(msg net.ClientMessage, dst any) error {
	if len(msg.Params) == 0 {
		return nil
	}
	return json.Unmarshal(msg.Params, dst)
}
