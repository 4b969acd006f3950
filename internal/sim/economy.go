package sim

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/perception"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

// Economy advances shift accrual, the shop restock and train timers, forage
// regrowth, and petition expiry each simulation tick.
type Economy struct {
	world     *world.State
	items     *data.ItemTable
	jobs      *data.JobTable
	petitions *persist.PetitionRepo
	events    *event.Log
	hooks     *webhook.Dispatcher
	log       *zap.Logger

	// ShopStock is owned by the scheduler; handlers read and mutate it
	// through Deps.
	ShopStock map[string]int
}

func NewEconomy(w *world.State, items *data.ItemTable, jobs *data.JobTable,
	petitions *persist.PetitionRepo, events *event.Log, hooks *webhook.Dispatcher, log *zap.Logger) *Economy {
	e := &Economy{
		world:     w,
		items:     items,
		jobs:      jobs,
		petitions: petitions,
		events:    events,
		hooks:     hooks,
		log:       log,
		ShopStock: make(map[string]int),
	}
	for _, it := range items.ShopItems() {
		e.ShopStock[it.Type] = it.DefaultStock
	}
	return e
}

func (e *Economy) Update(dt time.Duration) {
	worldDt := dt.Seconds() * world.TimeScale
	worldSecs := e.world.Clock.WorldSecs

	e.world.Alive(func(r *world.Resident) {
		e.accrueShift(r, worldDt, worldSecs)
	})

	for _, n := range e.world.Forage {
		if n.TickRegrow(worldSecs) {
			e.world.NotifyNearby(n.X, n.Y, perception.AmbientRadius, "The "+n.Type+" has regrown.")
		}
	}

	if e.world.Clock.RestockTimer <= 0 {
		e.restock()
		e.world.Clock.RestockTimer = RestockSecs
	}
	if e.world.Clock.TrainTimer <= 0 {
		e.trainArrives()
		e.world.Clock.TrainTimer = TrainSecs
	} else if e.world.DevMode && len(e.world.TrainQueue) > 0 {
		// Development mode: nobody waits at the platform.
		e.trainArrives()
	}
	e.expirePetitions(worldSecs)
}

// accrueShift grows the shift counter while the resident is on shift inside
// the employer building, and pays the wage on crossing the threshold.
func (e *Economy) accrueShift(r *world.Resident, worldDt float64, worldSecs int64) {
	if r.Employment == nil || !r.Employment.OnShift {
		return
	}
	job := e.jobs.Get(r.Employment.JobID)
	if job == nil || r.Building != job.Building {
		return
	}
	r.Employment.ShiftSecs += worldDt
	if r.Employment.ShiftSecs < ShiftSecs {
		return
	}
	r.Employment.ShiftSecs -= ShiftSecs
	r.Wallet += job.Wage
	r.Dirty = true
	r.Notify("Shift complete. You earned " + strconv.Itoa(job.Wage) + ".")
	e.events.Append(event.Record{
		Type:       event.TypeWagePaid,
		ResidentID: r.ID,
		BuildingID: job.Building,
		Payload:    map[string]any{"job": job.ID, "wage": job.Wage},
	})
	e.hooks.Enqueue(r.WebhookURL, webhook.Notification{
		Kind:       webhook.KindWageReceived,
		ResidentID: r.ID,
		WorldSecs:  worldSecs,
		Data:       map[string]any{"wage": job.Wage, "job": job.ID},
	}, true)
}

// restock resets every shop item to its default stock and tells anyone close
// to the shop.
func (e *Economy) restock() {
	for _, it := range e.items.ShopItems() {
		e.ShopStock[it.Type] = it.DefaultStock
	}
	e.events.Append(event.Record{Type: event.TypeRestock, BuildingID: "shop"})
	if b := e.world.Map.BuildingByID("shop"); b != nil && len(b.Doors) > 0 {
		x, y := e.world.Map.DoorExit(&b.Doors[0])
		e.world.NotifyNearby(x, y, perception.BuildingRadius, "The shop has been restocked.")
	}
	e.log.Debug("shop restocked")
}

// trainArrives spawns everyone waiting in the arrival queue.
func (e *Economy) trainArrives() {
	spawned := e.world.DrainTrain()
	for _, r := range spawned {
		r.Notify("Welcome to the city. You arrive at the station.")
		e.events.Append(event.Record{Type: event.TypeArrival, ResidentID: r.ID})
	}
	if len(spawned) > 0 {
		e.log.Info("train arrived", zap.Int("passengers", len(spawned)))
	}
}

func (e *Economy) expirePetitions(worldSecs int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ids, err := e.petitions.CloseExpired(ctx, worldSecs)
	if err != nil {
		e.log.Error("petition expiry", zap.Error(err))
		return
	}
	for _, id := range ids {
		e.events.Append(event.Record{
			Type:    event.TypePetition,
			Payload: map[string]any{"petition": id, "closed": true},
		})
	}
}
