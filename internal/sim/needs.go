package sim

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/perception"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

// Needs applies decay, sleep recovery, collapse, health drain and death at
// each simulation tick.
type Needs struct {
	world  *world.State
	items  *data.ItemTable
	events *event.Log
	hooks  *webhook.Dispatcher
	log    *zap.Logger
	rng    *rand.Rand

	tick int
}

func NewNeeds(w *world.State, items *data.ItemTable, events *event.Log, hooks *webhook.Dispatcher, log *zap.Logger) *Needs {
	return &Needs{
		world:  w,
		items:  items,
		events: events,
		hooks:  hooks,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (n *Needs) Update(dt time.Duration) {
	n.tick++
	secs := dt.Seconds()
	now := time.Now()

	n.world.All(func(r *world.Resident) {
		if r.Status != world.StatusAlive {
			return
		}

		if n.tick%SocialRefreshTicks == 0 {
			n.refreshNearby(r)
		}
		conversing := now.Sub(r.LastConversation) < ConversationWindow

		mult := 1.0
		switch {
		case conversing:
			mult = 1 - StrongSocialBonus
		case r.NearbyAwake > 0:
			mult = 1 - WeakSocialBonus
		}

		r.Needs.Hunger -= HungerDecay * mult * secs
		r.Needs.Thirst -= ThirstDecay * mult * secs
		r.Needs.Bladder += BladderFill * secs
		r.Needs.Social -= SocialDecay * secs
		if conversing {
			r.Needs.Social += SocialRecoveryRate * secs
			r.Needs.Energy += ConversingEnergyUp * secs
		}

		if r.Sleeping {
			rate := SleepRecovery
			if bag := r.ItemByType("sleeping_bag"); bag != nil && bag.Durability != 0 {
				rate = SleepRecoveryBag
			}
			r.Needs.Energy += rate * secs
			if r.Needs.Energy >= AutoWakeEnergy {
				r.Sleeping = false
				r.Dirty = true
				r.Notify("You wake up feeling rested.")
			}
		} else {
			r.Needs.Energy -= EnergyPassive * secs
			dist := math.Hypot(r.VelX, r.VelY) * secs
			r.Needs.Energy -= MoveCost(r.Speed, dist)
		}

		if r.Needs.Energy <= 0 && !r.Sleeping {
			n.collapse(r)
		}

		n.applyHealth(r, secs)
		r.Needs.Clamp()

		if r.Needs.Bladder >= 100 {
			n.bladderAccident(r)
		}

		if r.Needs.Health < 20 {
			r.WasBelowHealth20 = true
		}
		if r.Needs.Health <= HealthPainSevere && n.rng.Float64() < secs/10 {
			n.hooks.Enqueue(r.WebhookURL, webhook.Notification{
				Kind:       webhook.KindHealthCritical,
				ResidentID: r.ID,
				WorldSecs:  n.world.Clock.WorldSecs,
				Data:       map[string]any{"health": round1(r.Needs.Health)},
			}, false)
		}

		EmitPain(r, now)

		if r.Needs.Health <= 0 {
			n.die(r)
		}
		r.Dirty = true
	})
}

func (n *Needs) refreshNearby(r *world.Resident) {
	count := 0
	for _, other := range n.world.Within(r.X, r.Y, SocialRadius, r.ID) {
		if !other.Sleeping {
			count++
		}
	}
	r.NearbyAwake = count
}

func (n *Needs) applyHealth(r *world.Resident, secs float64) {
	drained := false
	if r.Needs.Hunger <= 0 {
		r.Needs.Health -= HealthDrainHunger * secs
		drained = true
	}
	if r.Needs.Thirst <= 0 {
		r.Needs.Health -= HealthDrainThirst * secs
		drained = true
	}
	if r.Needs.Social <= 0 {
		r.Needs.Health -= HealthDrainSocial * secs
		drained = true
	}
	if !drained &&
		r.Needs.Hunger > RecoveryThreshold &&
		r.Needs.Thirst > RecoveryThreshold &&
		r.Needs.Energy > RecoveryThreshold &&
		r.Needs.Social > 0 {
		r.Needs.Health += HealthRecovery * secs
	}
}

// collapse immobilises an exhausted resident and forces sleep.
func (n *Needs) collapse(r *world.Resident) {
	r.CancelPath()
	r.Sleeping = true
	r.SleepStarted = time.Now()
	r.Dirty = true
	r.Notify("You collapse from exhaustion.")
	n.events.Append(event.Record{
		Type:       "collapse",
		ResidentID: r.ID,
	})
	n.hooks.Enqueue(r.WebhookURL, webhook.Notification{
		Kind:       webhook.KindPain,
		ResidentID: r.ID,
		WorldSecs:  n.world.Clock.WorldSecs,
		Data:       map[string]any{"event": "collapse"},
	}, true)
}

func (n *Needs) bladderAccident(r *world.Resident) {
	r.Needs.Bladder = BladderAccidentReset
	fine := BladderAccidentFine
	if r.Wallet < fine {
		fine = r.Wallet
	}
	r.Wallet -= fine
	r.Dirty = true
	r.Notify("You had an accident. A cleaning fee was deducted.")
	n.events.Append(event.Record{
		Type:       "bladder_accident",
		ResidentID: r.ID,
		Payload:    map[string]any{"fine": fine},
	})
}

func (n *Needs) die(r *world.Resident) {
	r.Status = world.StatusDeceased
	r.CancelPath()
	r.Sleeping = false
	r.Building = ""
	r.Dirty = true
	n.log.Info("resident died",
		zap.String("resident", r.ID),
		zap.String("passport", r.PassportNo))
	n.events.Append(event.Record{
		Type:       event.TypeDeath,
		ResidentID: r.ID,
	})
	n.world.NotifyNearby(r.X, r.Y, perception.NormalRange, r.Name+" has died.")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
