package sim

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

// Law runs prison release, loitering detection, and suspect escort each
// simulation tick. Custody links are one-directional ids; the reconciliation
// pass at the top of the tick drops anything dangling.
type Law struct {
	world  *world.State
	events *event.Log
	hooks  *webhook.Dispatcher
	log    *zap.Logger
}

func NewLaw(w *world.State, events *event.Log, hooks *webhook.Dispatcher, log *zap.Logger) *Law {
	return &Law{world: w, events: events, hooks: hooks, log: log}
}

func (l *Law) Update(dt time.Duration) {
	worldSecs := l.world.Clock.WorldSecs
	worldDt := dt.Seconds() * world.TimeScale

	l.reconcile()

	l.world.All(func(r *world.Resident) {
		if r.Status != world.StatusAlive {
			return
		}
		l.releaseIfServed(r, worldSecs)
		l.detectLoitering(r, worldSecs, worldDt)
		if r.CarryingSuspect != "" {
			l.placeSuspect(r)
		}
	})
}

// reconcile drops dangling custody links: an officer whose suspect vanished
// or died, and a suspect whose officer no longer escorts them.
func (l *Law) reconcile() {
	escorts := make(map[string]string) // suspect id → officer id
	l.world.All(func(r *world.Resident) {
		if r.CarryingSuspect == "" {
			return
		}
		s := l.world.Get(r.CarryingSuspect)
		if s == nil || s.Status != world.StatusAlive || r.Status != world.StatusAlive {
			r.CarryingSuspect = ""
			return
		}
		escorts[s.ID] = r.ID
	})
	l.world.All(func(r *world.Resident) {
		if r.ArrestedBy == "" || r.Imprisoned(l.world.Clock.WorldSecs) {
			return
		}
		if escorts[r.ID] == "" {
			r.ArrestedBy = ""
			r.Notify("You have been released.")
		}
	})
}

// releaseIfServed frees a resident whose sentence has run out, placing them
// just outside the police station.
func (l *Law) releaseIfServed(r *world.Resident, worldSecs int64) {
	if r.PrisonUntil == 0 || worldSecs < r.PrisonUntil {
		return
	}
	r.PrisonUntil = 0
	r.ArrestedBy = ""
	r.Offenses = nil
	r.Building = ""
	if b := l.world.Map.BuildingByID("police_station"); b != nil && len(b.Doors) > 0 {
		r.X, r.Y = l.world.Map.DoorExit(&b.Doors[0])
	}
	r.Dirty = true
	r.Notify("You have served your sentence and are free to go.")
	l.events.Append(event.Record{Type: event.TypeRelease, ResidentID: r.ID})
	l.hooks.Enqueue(r.WebhookURL, webhook.Notification{
		Kind:       webhook.KindReleased,
		ResidentID: r.ID,
		WorldSecs:  worldSecs,
	}, true)
}

// detectLoitering tracks an anchor position and accumulates world-time spent
// inside the loiter radius.
func (l *Law) detectLoitering(r *world.Resident, worldSecs int64, worldDt float64) {
	if r.Imprisoned(worldSecs) || r.ArrestedBy != "" || r.Sleeping || r.Building != "" {
		return
	}
	if math.Hypot(r.X-r.LoiterAnchorX, r.Y-r.LoiterAnchorY) > LoiterRadius {
		r.LoiterAnchorX, r.LoiterAnchorY = r.X, r.Y
		r.LoiterSecs = 0
		r.ClearOffense(world.OffenseLoitering)
		return
	}
	r.LoiterSecs += worldDt
	if r.LoiterSecs >= LoiterThreshold && !r.HasOffense(world.OffenseLoitering) {
		r.AddOffense(world.OffenseLoitering)
		r.Notify("You are loitering. This is an offense.")
		l.events.Append(event.Record{
			Type:       "law_violation",
			ResidentID: r.ID,
			Payload:    map[string]any{"offense": world.OffenseLoitering},
		})
		l.log.Debug("loitering offense",
			zap.String("resident", r.ID),
			zap.Float64("secs", r.LoiterSecs))
	}
}

// placeSuspect computes the escorted suspect's position from the officer's
// facing: one tile behind, never stored independently.
func (l *Law) placeSuspect(officer *world.Resident) {
	s := l.world.Get(officer.CarryingSuspect)
	if s == nil {
		return
	}
	rad := float64(officer.Facing) * math.Pi / 180
	offset := float64(l.world.Map.TileSize)
	s.X = officer.X - math.Cos(rad)*offset
	s.Y = officer.Y - math.Sin(rad)*offset
	s.VelX, s.VelY = 0, 0
	s.Speed = world.SpeedStopped
	s.Building = officer.Building
}
