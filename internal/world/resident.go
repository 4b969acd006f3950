package world

import "time"

// Status is a resident's lifecycle state. Exactly one applies at a time;
// deceased → processed is one-way, and every non-alive status removes the
// resident from interactive queries.
type Status string

const (
	StatusAlive     Status = "alive"
	StatusDeceased  Status = "deceased"
	StatusProcessed Status = "processed"
	StatusDeparted  Status = "departed"
)

// ResidentType distinguishes agent clients from human players.
type ResidentType string

const (
	TypeAgent ResidentType = "agent"
	TypeHuman ResidentType = "human"
)

// SpeedMode is the current movement gait.
type SpeedMode string

const (
	SpeedStopped SpeedMode = "stopped"
	SpeedWalking SpeedMode = "walking"
	SpeedRunning SpeedMode = "running"
)

// Volume levels for speech.
const (
	VolumeWhisper = "whisper"
	VolumeNormal  = "normal"
	VolumeShout   = "shout"
)

// OffenseLoitering is currently the only law offense tag.
const OffenseLoitering = "loitering"

// CorpseX, CorpseY is the off-map parking position for carried bodies.
const (
	CorpseX = -9999
	CorpseY = -9999
)

// ItemStack is one owned inventory stack. Durability -1 means the item is
// stackable/non-durable; durable items always have Quantity 1.
type ItemStack struct {
	ID         string
	Type       string
	Quantity   int
	Durability int
}

// Needs are the six scalar dimensions, each clamped to [0,100].
type Needs struct {
	Hunger  float64
	Thirst  float64
	Energy  float64
	Bladder float64
	Health  float64
	Social  float64
}

// Employment is a resident's current job seat.
type Employment struct {
	JobID       string
	OnShift     bool
	ShiftSecs   float64 // accumulated world-seconds inside the employer building
}

// Speech is one buffered utterance, delivered at the next perception tick
// and then cleared (clear-after-broadcast discipline).
type Speech struct {
	Text    string
	Volume  string
	To      string // directed target resident id, "" = undirected
	AtWorld int64  // world-seconds timestamp
}

// PainMessage is an out-of-band severity signal queued for the gateway.
type PainMessage struct {
	Message   string
	Source    string // hunger, thirst, social, health
	Intensity string // mild, severe, agony
}

// PathState is the cached A* route a resident is following.
type PathState struct {
	Waypoints   [][2]float64 // pixel coords, last entry is the destination
	Index       int
	Speed       SpeedMode
	EnterTarget string // building to auto-enter after the final waypoint
	BlockedFor  int    // consecutive fully-blocked position ticks
}

// Resident is the central entity. Owned by the scheduler goroutine; nothing
// outside the tick may mutate it.
type Resident struct {
	ID         string
	PassportNo string
	Name       string
	Type       ResidentType
	Status     Status

	// spatial
	X, Y     float64 // fractional pixels
	Facing   int     // degrees, 0-359
	VelX     float64
	VelY     float64
	Speed    SpeedMode
	Blocked  bool // last position tick could not move at all
	Building string // current building id, "" = outside

	Needs  Needs
	Wallet int
	Inv    []*ItemStack

	Employment *Employment
	WebhookURL string
	Bio        string

	// custody
	Offenses         []string
	ArrestedBy       string // officer id; non-empty iff some officer carries us
	PrisonUntil      int64  // world-seconds release time, 0 = not imprisoned
	CarryingSuspect  string // suspect id this officer escorts
	CarryingBody     string // corpse id this resident carries

	// sleep
	Sleeping     bool
	SleepStarted time.Time // runtime-only; re-anchored on load

	// LastUBIWS is the world-second of the last UBI collection.
	LastUBIWS int64

	// ReferralCode is allocated lazily on get_referral_link.
	ReferralCode string

	// transient, never persisted
	PendingSpeech        []Speech
	PendingNotifications []string
	PendingPain          []PainMessage
	Path                 *PathState
	LoiterAnchorX        float64
	LoiterAnchorY        float64
	LoiterSecs           float64 // accumulated world-seconds inside the anchor radius
	LastConversation     time.Time
	ConversationCount    int
	LastSpeech           time.Time
	RecentSpeech         map[string]time.Time // normalised text → last said
	AwaitingReply        map[string]time.Time // target id → directed-speech time
	SeenRequests         map[string]time.Time // request_id → first seen
	NearbyAwake          int                  // peers within social radius, refreshed periodically

	// milestone latches
	JoinedAt            time.Time
	ReflectedSurvival   bool
	ReflectedFirstTalk  bool
	WasBelowHealth20    bool
	ReflectedRecovery   bool
	LastPeriodicReflect time.Time
	PainCooldowns       map[string]time.Time // "source/tier" → last sent

	// Dirty marks persisted state changed since the last batch save.
	Dirty bool
}

// NewResident builds a fresh alive resident with full needs, the starting
// grant, and initialised runtime maps. Placement happens later, at the train.
func NewResident(id, passportNo, name string, typ ResidentType) *Resident {
	return &Resident{
		ID:         id,
		PassportNo: passportNo,
		Name:       name,
		Type:       typ,
		Status:     StatusAlive,
		Facing:     90,
		Speed:      SpeedStopped,
		Needs: Needs{
			Hunger: 100,
			Thirst: 100,
			Energy: 100,
			Health: 100,
			Social: 100,
		},
		Wallet:        StartingGrant,
		JoinedAt:      time.Now(),
		RecentSpeech:  make(map[string]time.Time),
		AwaitingReply: make(map[string]time.Time),
		SeenRequests:  make(map[string]time.Time),
		PainCooldowns: make(map[string]time.Time),
		Dirty:         true,
	}
}

// StartingGrant is the currency a new resident arrives with.
const StartingGrant = 100

// Alive reports whether the resident participates in interactive queries.
func (r *Resident) Alive() bool { return r.Status == StatusAlive }

// Imprisoned reports whether the resident is serving a sentence at worldSecs.
func (r *Resident) Imprisoned(worldSecs int64) bool {
	return r.PrisonUntil > 0 && worldSecs < r.PrisonUntil
}

// HasOffense reports whether tag is in the active offense list.
func (r *Resident) HasOffense(tag string) bool {
	for _, o := range r.Offenses {
		if o == tag {
			return true
		}
	}
	return false
}

// AddOffense appends tag if not already present.
func (r *Resident) AddOffense(tag string) {
	if !r.HasOffense(tag) {
		r.Offenses = append(r.Offenses, tag)
		r.Dirty = true
	}
}

// ClearOffense removes tag from the offense list.
func (r *Resident) ClearOffense(tag string) {
	for i, o := range r.Offenses {
		if o == tag {
			r.Offenses = append(r.Offenses[:i], r.Offenses[i+1:]...)
			r.Dirty = true
			return
		}
	}
}

// Item returns the inventory stack with the given id, or nil.
func (r *Resident) Item(id string) *ItemStack {
	for _, s := range r.Inv {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ItemByType returns the first stack of the given type, or nil.
func (r *Resident) ItemByType(typ string) *ItemStack {
	for _, s := range r.Inv {
		if s.Type == typ {
			return s
		}
	}
	return nil
}

// RemoveItem deletes a stack from the inventory.
func (r *Resident) RemoveItem(id string) {
	for i, s := range r.Inv {
		if s.ID == id {
			r.Inv = append(r.Inv[:i], r.Inv[i+1:]...)
			r.Dirty = true
			return
		}
	}
}

// CancelPath drops any active route and zeroes velocity.
func (r *Resident) CancelPath() {
	r.Path = nil
	r.VelX, r.VelY = 0, 0
	r.Speed = SpeedStopped
}

// Notify queues a plain-text notification for the next perception packet.
func (r *Resident) Notify(msg string) {
	r.PendingNotifications = append(r.PendingNotifications, msg)
}

// ClampNeeds forces every need back into [0,100].
func (n *Needs) Clamp() {
	clamp := func(v *float64) {
		if *v < 0 {
			*v = 0
		} else if *v > 100 {
			*v = 100
		}
	}
	clamp(&n.Hunger)
	clamp(&n.Thirst)
	clamp(&n.Energy)
	clamp(&n.Bladder)
	clamp(&n.Health)
	clamp(&n.Social)
}
