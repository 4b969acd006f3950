package sim

import (
	"context"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/core/system"
	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/metrics"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/perception"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

// simEvery is how many position ticks make one simulation tick.
const simEvery = 3

// Dispatch routes one client action through the arbiter. Injected by main so
// the scheduler does not depend on the handler registry.
type Dispatch func(sess *net.Session, r *world.Resident, msg net.ClientMessage) *net.ActionResult

// ResidentSummary is the public row published to the HTTP surface.
type ResidentSummary struct {
	ID         string `json:"id"`
	PassportNo string `json:"passport_no"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Building   string `json:"building,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	Wanted     bool   `json:"wanted"`
	Bio        string `json:"bio,omitempty"`
}

// Snapshot is an immutable copy of public world state, republished every
// simulation tick for lock-free HTTP reads.
type Snapshot struct {
	WorldSecs int64
	Hour      float64
	Alive     int
	Residents map[string]ResidentSummary
	Occupancy map[string]int // building id -> alive occupants
}

// SchedulerConfig wires the scheduler's collaborators.
type SchedulerConfig struct {
	World       *world.State
	Jobs        *data.JobTable
	Movement    *Movement
	Needs       *Needs
	Law         *Law
	Economy     *Economy
	Reflections *Reflections
	Builder     *perception.Builder
	Events      *event.Log
	Hooks       *webhook.Dispatcher
	Metrics     *metrics.Set

	Residents *persist.ResidentRepo
	Inventory *persist.InventoryRepo
	WorldRepo *persist.WorldRepo

	Commands      <-chan net.Command
	Dispatch      Dispatch
	MaxCmdPerTick int
	MapURL        string
	Announcement  *net.SystemAnnouncement

	Log *zap.Logger
}

// Scheduler owns the world. Everything that mutates state runs on its
// goroutine: inbound commands, the position sub-tick, the simulation tick,
// and the batched save. Other goroutines reach it only through the command
// channel, the task queue, and the published snapshot.
type Scheduler struct {
	world   *world.State
	jobs    *data.JobTable
	economy *Economy
	runner  *system.Runner
	builder *perception.Builder
	events  *event.Log
	hooks   *webhook.Dispatcher
	met     *metrics.Set
	log     *zap.Logger

	residents *persist.ResidentRepo
	inventory *persist.InventoryRepo
	worldRepo *persist.WorldRepo

	commands  <-chan net.Command
	dispatch  Dispatch
	cmdBudget int
	mapURL    string
	announce  *net.SystemAnnouncement

	tasks chan func()

	players    map[string]*net.Session // resident id -> bound session
	spectators map[uint64]*net.Session

	snapshot atomic.Value // *Snapshot

	tick     int
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		world:      cfg.World,
		jobs:       cfg.Jobs,
		economy:    cfg.Economy,
		runner:     system.NewRunner(),
		builder:    cfg.Builder,
		events:     cfg.Events,
		hooks:      cfg.Hooks,
		met:        cfg.Metrics,
		log:        cfg.Log,
		residents:  cfg.Residents,
		inventory:  cfg.Inventory,
		worldRepo:  cfg.WorldRepo,
		commands:   cfg.Commands,
		dispatch:   cfg.Dispatch,
		cmdBudget:  cfg.MaxCmdPerTick,
		mapURL:     cfg.MapURL,
		announce:   cfg.Announcement,
		tasks:      make(chan func(), 64),
		players:    make(map[string]*net.Session),
		spectators: make(map[uint64]*net.Session),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if s.cmdBudget <= 0 {
		s.cmdBudget = 64
	}

	// Movement integrates on the position sub-tick; everything else runs on
	// the simulation tick in phase order.
	s.runner.Register(system.Func{P: system.PhaseInput, Fn: cfg.Movement.Update})
	s.runner.Register(system.Func{P: system.PhaseUpdate, Fn: cfg.Needs.Update})
	s.runner.Register(system.Func{P: system.PhaseUpdate, Fn: cfg.Law.Update})
	s.runner.Register(system.Func{P: system.PhaseUpdate, Fn: cfg.Economy.Update})
	s.runner.Register(system.Func{P: system.PhaseUpdate, Fn: cfg.Reflections.Update})
	s.runner.Register(system.Func{P: system.PhasePerception, Fn: s.speechPass})
	s.runner.Register(system.Func{P: system.PhasePerception, Fn: s.broadcast})
	s.runner.Register(system.Func{P: system.PhaseOutput, Fn: s.deliverPain})
	s.runner.Register(system.Func{P: system.PhaseOutput, Fn: s.clearTransient})
	s.runner.Register(system.Func{P: system.PhasePersist, Fn: s.maybeSave})
	s.runner.Register(system.Func{P: system.PhaseCleanup, Fn: s.reap})

	s.publishSnapshot()
	return s
}

// Run drives the loop until Stop. Call from its own goroutine.
func (s *Scheduler) Run() {
	defer close(s.done)
	ticker := time.NewTicker(PositionTick)
	defer ticker.Stop()

	s.world.Clock.LastSave = time.Now()
	for {
		select {
		case <-s.stop:
			s.save()
			s.log.Info("scheduler stopped",
				zap.Int64("world_secs", s.world.Clock.WorldSecs),
				zap.Int("residents", s.world.Count()))
			return
		case <-ticker.C:
			s.safeTick()
		}
	}
}

// Stop signals the loop, waits for it to exit, and leaves a final save
// behind.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Do runs fn on the scheduler goroutine and waits for it. Used by the HTTP
// surface for anything that touches world state.
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case s.tasks <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return context.Canceled
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published world snapshot.
func (s *Scheduler) Snapshot() *Snapshot {
	return s.snapshot.Load().(*Snapshot)
}

// safeTick wraps one tick in panic recovery; a bad tick is dropped, not
// fatal.
func (s *Scheduler) safeTick() {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("tick panic",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	start := time.Now()
	s.drainTasks()
	s.drainCommands()
	s.runner.TickPhase(system.PhaseInput, PositionTick)
	if s.met != nil {
		s.met.TickDuration.Observe(time.Since(start).Seconds())
	}

	s.tick++
	if s.tick%simEvery == 0 {
		s.simTick()
	}
}

// simTick advances world time and runs the simulation phases.
func (s *Scheduler) simTick() {
	start := time.Now()
	dt := simEvery * PositionTick
	s.world.Clock.Advance(dt)

	for _, phase := range []system.Phase{
		system.PhaseUpdate,
		system.PhasePerception,
		system.PhaseOutput,
		system.PhasePersist,
		system.PhaseCleanup,
	} {
		s.runner.TickPhase(phase, dt)
	}

	s.publishSnapshot()
	if s.met != nil {
		s.met.SimTickDuration.Observe(time.Since(start).Seconds())
		s.met.Players.Set(float64(len(s.players)))
		s.met.Spectators.Set(float64(len(s.spectators)))
		alive := 0
		s.world.Alive(func(*world.Resident) { alive++ })
		s.met.ResidentsAlive.Set(float64(alive))
	}
}

func (s *Scheduler) drainTasks() {
	for {
		select {
		case fn := <-s.tasks:
			fn()
		default:
			return
		}
	}
}

func (s *Scheduler) drainCommands() {
	for i := 0; i < s.cmdBudget; i++ {
		select {
		case c := <-s.commands:
			s.handleCommand(c)
		default:
			return
		}
	}
}

func (s *Scheduler) handleCommand(c net.Command) {
	switch c.Kind {
	case net.CmdBind:
		s.bind(c)
	case net.CmdSpectate:
		s.spectate(c)
	case net.CmdAction:
		s.action(c)
	case net.CmdClose:
		s.dropSession(c.Session)
	}
}

func (s *Scheduler) bind(c net.Command) {
	r := s.world.Get(c.Claims.ResidentID)
	if r == nil || r.Status == world.StatusDeparted || r.Status == world.StatusProcessed {
		c.Session.Send(net.ErrorMsg{Type: "error", Code: "unknown_resident", Message: "no such resident"})
		c.Session.CloseWith(net.CloseUnknownTarget, "unknown resident")
		return
	}
	if r.Status == world.StatusDeceased {
		c.Session.Send(net.ErrorMsg{Type: "error", Code: "deceased", Message: "resident is deceased"})
		c.Session.CloseWith(net.CloseDeceased, "resident deceased")
		return
	}

	if old, dup := s.players[r.ID]; dup && old != c.Session {
		old.Send(net.ErrorMsg{Type: "error", Code: "session_replaced", Message: "connected elsewhere"})
		old.CloseWith(websocket.CloseNormalClosure, "session replaced")
	}
	c.Session.ResidentID = r.ID
	c.Session.Claims = c.Claims
	s.players[r.ID] = c.Session

	pkt := s.builder.Build(r, time.Now())
	c.Session.Send(net.Welcome{
		Type:      "welcome",
		Resident:  pkt.Self,
		MapURL:    s.mapURL,
		WorldSecs: s.world.Clock.WorldSecs,
	})
	if s.announce != nil {
		c.Session.Send(*s.announce)
	}
	s.log.Info("resident connected",
		zap.String("resident", r.ID),
		zap.String("passport", r.PassportNo))
}

func (s *Scheduler) spectate(c net.Command) {
	if c.Session.TargetID != "" && s.world.Get(c.Session.TargetID) == nil {
		c.Session.Send(net.ErrorMsg{Type: "error", Code: "unknown_resident", Message: "no such resident"})
		c.Session.CloseWith(net.CloseUnknownTarget, "unknown resident")
		return
	}
	s.spectators[c.Session.ID] = c.Session
}

func (s *Scheduler) action(c net.Command) {
	r := s.world.Get(c.Session.ResidentID)
	if r == nil {
		c.Session.Send(net.ErrorMsg{Type: "error", Code: "not_bound", Message: "authenticate first"})
		return
	}
	res := s.dispatch(c.Session, r, c.Msg)
	c.Session.Send(res)
	if s.met != nil {
		s.met.Actions.Inc()
	}
}

// dropSession unbinds a closed connection. The resident stays in the world;
// an escorting officer's suspect is released so nobody hangs in custody
// behind a dead socket.
func (s *Scheduler) dropSession(sess *net.Session) {
	if sess.Spectator {
		delete(s.spectators, sess.ID)
		return
	}
	id := sess.ResidentID
	if id == "" || s.players[id] != sess {
		return
	}
	delete(s.players, id)
	if r := s.world.Get(id); r != nil {
		r.CancelPath()
		if r.CarryingSuspect != "" {
			if suspect := s.world.Get(r.CarryingSuspect); suspect != nil {
				suspect.ArrestedBy = ""
				suspect.Notify("You have been released.")
			}
			r.CarryingSuspect = ""
		}
		s.log.Info("resident disconnected", zap.String("resident", id))
	}
}

// speechPass delivers buffered speech: conversation anchors for everyone in
// range, webhook notifications for audible listeners. The packets built right
// after read the same buffers; clearTransient empties them once both
// consumers have run.
func (s *Scheduler) speechPass(time.Duration) {
	now := time.Now()
	ws := s.world.Clock.WorldSecs
	s.world.Alive(func(sp *world.Resident) {
		for i := range sp.PendingSpeech {
			sp2 := &sp.PendingSpeech[i]
			directed := sp2.To != ""
			conversed := false
			for _, ls := range s.world.Within(sp.X, sp.Y, perception.ShoutRange, sp.ID) {
				if ls.Sleeping {
					continue
				}
				if directed && ls.ID != sp2.To {
					continue
				}
				if !perception.CanHear(s.world.Map, sp.X, sp.Y, ls.X, ls.Y, sp2.Volume) {
					continue
				}
				if math.Hypot(ls.X-sp.X, ls.Y-sp.Y) <= ConversationRange {
					conversed = true
					ls.LastConversation = now
					ls.ConversationCount++
				}
				s.hooks.Enqueue(ls.WebhookURL, webhook.Notification{
					Kind:       webhook.KindSpeechHeard,
					ResidentID: ls.ID,
					WorldSecs:  ws,
					Data: map[string]any{
						"from":      sp.ID,
						"from_name": sp.Name,
						"text":      sp2.Text,
						"volume":    sp2.Volume,
						"directed":  directed,
					},
				}, directed)
			}
			// One utterance is one conversation, however many people heard it.
			if conversed {
				sp.LastConversation = now
				sp.ConversationCount++
			}
		}
	})
}

func (s *Scheduler) broadcast(time.Duration) {
	now := time.Now()
	for id, sess := range s.players {
		if sess.IsClosed() {
			continue
		}
		r := s.world.Get(id)
		if r == nil || !r.Alive() {
			continue
		}
		sess.Send(net.PerceptionMsg{Type: "perception", Packet: s.builder.Build(r, now)})
	}
	if len(s.spectators) == 0 {
		return
	}
	msg := net.PerceptionMsg{Type: "perception", Packet: s.builder.BuildSpectator(now)}
	for _, sess := range s.spectators {
		if !sess.IsClosed() {
			sess.Send(msg)
		}
	}
}

func (s *Scheduler) deliverPain(time.Duration) {
	for id, sess := range s.players {
		r := s.world.Get(id)
		if r == nil || len(r.PendingPain) == 0 {
			continue
		}
		for _, p := range r.PendingPain {
			sess.Send(net.PainMsg{
				Type:      "pain",
				Message:   p.Message,
				Source:    p.Source,
				Intensity: p.Intensity,
				Needs: perception.NeedsView{
					Hunger:  r.Needs.Hunger,
					Thirst:  r.Needs.Thirst,
					Energy:  r.Needs.Energy,
					Bladder: r.Needs.Bladder,
					Health:  r.Needs.Health,
					Social:  r.Needs.Social,
				},
			})
		}
	}
}

// clearTransient empties the per-tick buffers after every consumer has seen
// them.
func (s *Scheduler) clearTransient(time.Duration) {
	s.world.All(func(r *world.Resident) {
		r.PendingSpeech = nil
		r.PendingNotifications = nil
		r.PendingPain = nil
	})
}

func (s *Scheduler) maybeSave(time.Duration) {
	if time.Since(s.world.Clock.LastSave) < SaveEvery {
		return
	}
	s.save()
}

// save writes every dirty resident, the world clock, shop stock, and the
// pending event batch.
func (s *Scheduler) save() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rows []*persist.ResidentRow
	var dirty []*world.Resident
	s.world.All(func(r *world.Resident) {
		if r.Dirty {
			rows = append(rows, r.Row())
			dirty = append(dirty, r)
		}
	})
	if len(rows) > 0 {
		if err := s.residents.SaveBatch(ctx, rows); err != nil {
			s.log.Error("resident batch save failed", zap.Error(err), zap.Int("rows", len(rows)))
		} else {
			for _, r := range dirty {
				if err := s.inventory.Replace(ctx, r.ID, r.InventoryRows()); err != nil {
					s.log.Error("inventory save failed", zap.Error(err), zap.String("resident", r.ID))
					continue
				}
				r.Dirty = false
			}
		}
	}

	clock := &s.world.Clock
	if err := s.worldRepo.Save(ctx, &persist.WorldStateRow{
		WorldSecs:    clock.WorldSecs,
		TrainTimer:   clock.TrainTimer,
		RestockTimer: clock.RestockTimer,
		PassportCtr:  s.world.PassportCounter,
	}); err != nil {
		s.log.Error("world state save failed", zap.Error(err))
	}
	if err := s.worldRepo.SaveShopStock(ctx, s.economy.ShopStock); err != nil {
		s.log.Error("shop stock save failed", zap.Error(err))
	}
	s.events.Flush(ctx)
	clock.LastSave = time.Now()
}

// reap closes sessions of the newly deceased and removes departed or
// processed residents from the world, leaving their final rows behind.
func (s *Scheduler) reap(time.Duration) {
	var gone []string
	s.world.All(func(r *world.Resident) {
		switch r.Status {
		case world.StatusDeceased:
			if sess := s.players[r.ID]; sess != nil {
				sess.CloseWith(net.CloseDeceased, "resident deceased")
				delete(s.players, r.ID)
			}
		case world.StatusDeparted, world.StatusProcessed:
			gone = append(gone, r.ID)
		}
	})
	if len(gone) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range gone {
		r := s.world.RemoveResident(id)
		if r == nil {
			continue
		}
		if err := s.residents.Save(ctx, r.Row()); err != nil {
			s.log.Error("final resident save failed", zap.Error(err), zap.String("resident", id))
		}
		if err := s.inventory.Replace(ctx, id, r.InventoryRows()); err != nil {
			s.log.Error("final inventory save failed", zap.Error(err), zap.String("resident", id))
		}
		s.hooks.Forget(id)
		if sess := s.players[id]; sess != nil {
			sess.CloseWith(websocket.CloseNormalClosure, "departed")
			delete(s.players, id)
		}
	}
}

func (s *Scheduler) publishSnapshot() {
	snap := &Snapshot{
		WorldSecs: s.world.Clock.WorldSecs,
		Hour:      s.world.Clock.HourOfDay(),
		Residents: make(map[string]ResidentSummary, s.world.Count()),
		Occupancy: make(map[string]int),
	}
	s.world.All(func(r *world.Resident) {
		sum := ResidentSummary{
			ID:         r.ID,
			PassportNo: r.PassportNo,
			Name:       r.Name,
			Type:       string(r.Type),
			Status:     string(r.Status),
			Building:   r.Building,
			Wanted:     len(r.Offenses) > 0,
			Bio:        r.Bio,
		}
		if r.Employment != nil {
			if job := s.jobs.Get(r.Employment.JobID); job != nil {
				sum.JobTitle = job.Title
			}
		}
		snap.Residents[r.ID] = sum
		if r.Alive() {
			snap.Alive++
			if r.Building != "" {
				snap.Occupancy[r.Building]++
			}
		}
	})
	s.snapshot.Store(snap)
}
