package world

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/persist"
)

// State is the in-memory authoritative world: every resident, every forage
// node, the clock, and the train arrival queue. Owned by the scheduler
// goroutine — no locks, single-writer by construction.
type State struct {
	Map   *data.GameMap
	Clock Clock

	residents  map[string]*Resident
	byPassport map[string]*Resident

	Forage map[string]*ForageNode

	// TrainQueue holds resident ids waiting for the next arrival.
	TrainQueue []string

	// PassportCounter backs passport allocation, monotonic with population.
	PassportCounter int64

	// DevMode makes train spawns immediate.
	DevMode bool
}

// NewState builds an empty world over the map artifact and seeds forage
// nodes from its spawn list.
func NewState(m *data.GameMap) *State {
	s := &State{
		Map:        m,
		residents:  make(map[string]*Resident),
		byPassport: make(map[string]*Resident),
		Forage:     make(map[string]*ForageNode),
	}
	for i, f := range m.Forage {
		cx, cy := m.TileCenter(f.X, f.Y)
		n := &ForageNode{
			ID:      fmt.Sprintf("forage-%d", i+1),
			X:       cx,
			Y:       cy,
			Type:    f.Type,
			Uses:    f.MaxUses,
			MaxUses: f.MaxUses,
			Regrow:  f.Regrow,
		}
		s.Forage[n.ID] = n
	}
	return s
}

// NextPassport allocates the next passport number (format OC-NNNNNNN).
func (s *State) NextPassport() string {
	s.PassportCounter++
	return fmt.Sprintf("OC-%07d", s.PassportCounter)
}

// AddResident registers a resident in the world.
func (s *State) AddResident(r *Resident) {
	s.residents[r.ID] = r
	s.byPassport[r.PassportNo] = r
}

// RemoveResident drops a resident from the world (departure or processed
// body). Persisted rows survive; only the in-memory entity goes.
func (s *State) RemoveResident(id string) *Resident {
	r, ok := s.residents[id]
	if !ok {
		return nil
	}
	delete(s.residents, id)
	delete(s.byPassport, r.PassportNo)
	return r
}

// Get returns a resident by id, or nil.
func (s *State) Get(id string) *Resident { return s.residents[id] }

// GetByPassport returns a resident by passport number, or nil.
func (s *State) GetByPassport(no string) *Resident { return s.byPassport[no] }

// Count returns the number of residents in the world (bodies included).
func (s *State) Count() int { return len(s.residents) }

// All iterates every resident, bodies included.
func (s *State) All(fn func(*Resident)) {
	for _, r := range s.residents {
		fn(r)
	}
}

// Alive iterates residents with status alive.
func (s *State) Alive(fn func(*Resident)) {
	for _, r := range s.residents {
		if r.Status == StatusAlive {
			fn(r)
		}
	}
}

// Within returns alive residents within Euclidean rangePx of a point,
// excluding excludeID.
func (s *State) Within(x, y, rangePx float64, excludeID string) []*Resident {
	var out []*Resident
	for _, r := range s.residents {
		if r.ID == excludeID || r.Status != StatusAlive {
			continue
		}
		if math.Hypot(r.X-x, r.Y-y) <= rangePx {
			out = append(out, r)
		}
	}
	return out
}

// NotifyNearby pushes a notification to every alive resident within range.
func (s *State) NotifyNearby(x, y, rangePx float64, msg string) {
	for _, r := range s.Within(x, y, rangePx, "") {
		r.Notify(msg)
	}
}

// QueueForTrain appends a resident to the arrival queue. The economy drains
// it when the train arrives; in development mode it drains every tick, so
// arrivals always flow through the same path and event.
func (s *State) QueueForTrain(id string) {
	s.TrainQueue = append(s.TrainQueue, id)
}

// SpawnAtStation places a resident on the station platform.
func (s *State) SpawnAtStation(r *Resident) {
	x, y := s.Map.TileCenter(s.Map.Spawn.X, s.Map.Spawn.Y)
	r.X, r.Y = x, y
	r.Facing = 90
	r.Speed = SpeedStopped
	r.Building = ""
	r.Dirty = true
}

// DrainTrain spawns every queued resident and clears the queue. Returns the
// spawned residents.
func (s *State) DrainTrain() []*Resident {
	var spawned []*Resident
	for _, id := range s.TrainQueue {
		r := s.residents[id]
		if r == nil || r.Status != StatusAlive {
			continue
		}
		s.SpawnAtStation(r)
		spawned = append(spawned, r)
	}
	s.TrainQueue = s.TrainQueue[:0]
	return spawned
}

// AddResidentFromRow materialises an in-memory resident from a persisted
// record. Older rows with absent fields fall back to defaults; sleep anchors
// are always fresh (sleep_started_at is runtime-only).
func (s *State) AddResidentFromRow(row *persist.ResidentRow, inv []persist.InventoryRow) (*Resident, error) {
	r := &Resident{
		ID:         row.ID,
		PassportNo: row.PassportNo,
		Name:       row.Name,
		Type:       ResidentType(row.Type),
		Status:     Status(row.Status),
		X:          row.X,
		Y:          row.Y,
		Facing:     row.Facing,
		Speed:      SpeedStopped,
		Building:   row.Building,
		Wallet:     row.Wallet,
		WebhookURL: row.WebhookURL,
		Bio:        row.Bio,
		Needs: Needs{
			Hunger:  row.Hunger,
			Thirst:  row.Thirst,
			Energy:  row.Energy,
			Bladder: row.Bladder,
			Health:  row.Health,
			Social:  row.Social,
		},
		PrisonUntil:   row.PrisonUntil,
		Sleeping:      row.Sleeping,
		SleepStarted:  time.Now(),
		LastUBIWS:     row.LastUBIWS,
		ReferralCode:  row.Referral,
		JoinedAt:      row.CreatedAt,
		RecentSpeech:  make(map[string]time.Time),
		AwaitingReply: make(map[string]time.Time),
		SeenRequests:  make(map[string]time.Time),
		PainCooldowns: make(map[string]time.Time),
	}
	r.Needs.Clamp()
	if row.Offenses != "" {
		if err := json.Unmarshal([]byte(row.Offenses), &r.Offenses); err != nil {
			return nil, fmt.Errorf("resident %s: decode offenses: %w", row.ID, err)
		}
	}
	if row.JobID != "" {
		r.Employment = &Employment{JobID: row.JobID, OnShift: row.OnShift, ShiftSecs: row.ShiftSecs}
	}
	for _, ir := range inv {
		r.Inv = append(r.Inv, &ItemStack{
			ID:         ir.ID,
			Type:       ir.ItemType,
			Quantity:   ir.Quantity,
			Durability: ir.Durability,
		})
	}
	// Dangling custody links from a crash resolve on the first law tick;
	// arrest escort state itself is not persisted.
	s.AddResident(r)
	if no := passportOrdinal(row.PassportNo); no > s.PassportCounter {
		s.PassportCounter = no
	}
	return r, nil
}

// Row converts a resident back into its persisted record.
func (r *Resident) Row() *persist.ResidentRow {
	offenses := ""
	if len(r.Offenses) > 0 {
		b, _ := json.Marshal(r.Offenses)
		offenses = string(b)
	}
	row := &persist.ResidentRow{
		ID:          r.ID,
		PassportNo:  r.PassportNo,
		Name:        r.Name,
		Type:        string(r.Type),
		Status:      string(r.Status),
		X:           r.X,
		Y:           r.Y,
		Facing:      r.Facing,
		Building:    r.Building,
		Wallet:      r.Wallet,
		WebhookURL:  r.WebhookURL,
		Bio:         r.Bio,
		Hunger:      r.Needs.Hunger,
		Thirst:      r.Needs.Thirst,
		Energy:      r.Needs.Energy,
		Bladder:     r.Needs.Bladder,
		Health:      r.Needs.Health,
		Social:      r.Needs.Social,
		Offenses:    offenses,
		PrisonUntil: r.PrisonUntil,
		Sleeping:    r.Sleeping,
		LastUBIWS:   r.LastUBIWS,
		Referral:    r.ReferralCode,
		CreatedAt:   r.JoinedAt,
	}
	if r.Employment != nil {
		row.JobID = r.Employment.JobID
		row.OnShift = r.Employment.OnShift
		row.ShiftSecs = r.Employment.ShiftSecs
	}
	return row
}

// InventoryRows converts the inventory for persistence.
func (r *Resident) InventoryRows() []persist.InventoryRow {
	rows := make([]persist.InventoryRow, 0, len(r.Inv))
	for _, s := range r.Inv {
		rows = append(rows, persist.InventoryRow{
			ID:         s.ID,
			ResidentID: r.ID,
			ItemType:   s.Type,
			Quantity:   s.Quantity,
			Durability: s.Durability,
		})
	}
	return rows
}

func passportOrdinal(no string) int64 {
	var n int64
	if _, err := fmt.Sscanf(no, "OC-%07d", &n); err != nil {
		return 0
	}
	return n
}
