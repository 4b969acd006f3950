package perception

import (
	"math"
	"sort"
	"time"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/world"
)

// NeedsView is the client-facing needs block, rounded to one decimal at
// this boundary only.
type NeedsView struct {
	Hunger  float64 `json:"hunger"`
	Thirst  float64 `json:"thirst"`
	Energy  float64 `json:"energy"`
	Bladder float64 `json:"bladder"`
	Health  float64 `json:"health"`
	Social  float64 `json:"social"`
}

type ItemView struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Quantity   int    `json:"quantity"`
	Durability int    `json:"durability,omitempty"`
}

type EmploymentView struct {
	JobID     string  `json:"job_id"`
	OnShift   bool    `json:"on_shift"`
	ShiftSecs float64 `json:"shift_secs"`
}

type CustodyView struct {
	Offenses        []string `json:"offenses,omitempty"`
	ArrestedBy      string   `json:"arrested_by,omitempty"`
	PrisonUntil     int64    `json:"prison_until,omitempty"`
	CarryingSuspect string   `json:"carrying_suspect,omitempty"`
	CarryingBody    string   `json:"carrying_body,omitempty"`
}

type AwaitView struct {
	Target    string  `json:"target"`
	Remaining float64 `json:"remaining_secs"`
}

type SelfView struct {
	ID         string          `json:"id"`
	PassportNo string          `json:"passport_no"`
	Name       string          `json:"name"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Facing     int             `json:"facing"`
	Status     string          `json:"status"`
	Sleeping   bool            `json:"sleeping"`
	Building   string          `json:"building,omitempty"`
	Needs      NeedsView       `json:"needs"`
	Wallet     int             `json:"wallet"`
	Inventory  []ItemView      `json:"inventory"`
	Employment *EmploymentView `json:"employment,omitempty"`
	Custody    *CustodyView    `json:"custody,omitempty"`
	Awaiting   []AwaitView     `json:"awaiting_reply,omitempty"`
}

// ResidentView is the public card other residents see.
type ResidentView struct {
	ID         string  `json:"id"`
	PassportNo string  `json:"passport_no"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Facing     int     `json:"facing"`
	Status     string  `json:"status"`
	Sleeping   bool    `json:"sleeping"`
	Speed      string  `json:"speed"`
	Building   string  `json:"building,omitempty"`
}

type SpeechView struct {
	From     string `json:"from"`
	FromName string `json:"from_name"`
	Text     string `json:"text"`
	Volume   string `json:"volume"`
	To       string `json:"to,omitempty"`
}

type BuildingView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`
}

type ForageView struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Uses int     `json:"uses_remaining"`
}

// Packet is one perception tick's view for a single resident.
type Packet struct {
	WorldSecs     int64          `json:"world_secs"`
	Hour          float64        `json:"hour"`
	Self          SelfView       `json:"self"`
	Residents     []ResidentView `json:"residents"`
	Buildings     []BuildingView `json:"buildings"`
	Forage        []ForageView   `json:"forage"`
	Speech        []SpeechView   `json:"speech"`
	Actions       []string       `json:"actions"`
	Notifications []string       `json:"notifications,omitempty"`
}

// turnTimeoutSecs mirrors the arbiter's directed-speech turn lock; used only
// to report remaining wait in the self view.
const turnTimeoutSecs = 30.0

// Builder assembles perception packets from world state.
type Builder struct {
	world *world.State
	items *data.ItemTable
}

func NewBuilder(w *world.State, items *data.ItemTable) *Builder {
	return &Builder{world: w, items: items}
}

// Build produces the filtered perception for one connected resident.
func (b *Builder) Build(viewer *world.Resident, now time.Time) Packet {
	mult := NightMultiplier(b.world.Clock.HourOfDay())
	p := Packet{
		WorldSecs: b.world.Clock.WorldSecs,
		Hour:      round1(b.world.Clock.HourOfDay()),
		Self:      b.selfView(viewer, now),
		Actions:   b.actionTags(viewer),
	}

	b.world.All(func(r *world.Resident) {
		if r.ID == viewer.ID || r.Status == world.StatusProcessed || r.Status == world.StatusDeparted {
			return
		}
		if !CanSee(b.world.Map, viewer, r, mult) {
			return
		}
		p.Residents = append(p.Residents, residentView(r))
	})

	for _, bd := range b.world.Map.Buildings {
		cx, cy := b.world.Map.TileCenter(bd.X+bd.W/2, bd.Y+bd.H/2)
		if CanSeeStatic(viewer, cx, cy, mult) {
			p.Buildings = append(p.Buildings, buildingView(bd))
		}
	}
	for _, n := range b.world.Forage {
		if CanSeeStatic(viewer, n.X, n.Y, mult) {
			p.Forage = append(p.Forage, forageView(n))
		}
	}

	b.world.All(func(speaker *world.Resident) {
		for _, sp := range speaker.PendingSpeech {
			if speaker.ID == viewer.ID {
				continue
			}
			if sp.To != "" && sp.To != viewer.ID {
				continue
			}
			if !CanHear(b.world.Map, speaker.X, speaker.Y, viewer.X, viewer.Y, sp.Volume) {
				continue
			}
			p.Speech = append(p.Speech, SpeechView{
				From:     speaker.ID,
				FromName: speaker.Name,
				Text:     sp.Text,
				Volume:   sp.Volume,
				To:       sp.To,
			})
		}
	})

	p.Notifications = append(p.Notifications, viewer.PendingNotifications...)
	sortViews(&p)
	return p
}

// BuildSpectator is the unfiltered variant: everything, no range checks.
func (b *Builder) BuildSpectator(now time.Time) Packet {
	p := Packet{
		WorldSecs: b.world.Clock.WorldSecs,
		Hour:      round1(b.world.Clock.HourOfDay()),
	}
	b.world.All(func(r *world.Resident) {
		if r.Status == world.StatusProcessed || r.Status == world.StatusDeparted {
			return
		}
		p.Residents = append(p.Residents, residentView(r))
		for _, sp := range r.PendingSpeech {
			p.Speech = append(p.Speech, SpeechView{
				From:     r.ID,
				FromName: r.Name,
				Text:     sp.Text,
				Volume:   sp.Volume,
				To:       sp.To,
			})
		}
	})
	for _, bd := range b.world.Map.Buildings {
		p.Buildings = append(p.Buildings, buildingView(bd))
	}
	for _, n := range b.world.Forage {
		p.Forage = append(p.Forage, forageView(n))
	}
	sortViews(&p)
	return p
}

func (b *Builder) selfView(r *world.Resident, now time.Time) SelfView {
	v := SelfView{
		ID:         r.ID,
		PassportNo: r.PassportNo,
		Name:       r.Name,
		X:          r.X,
		Y:          r.Y,
		Facing:     r.Facing,
		Status:     string(r.Status),
		Sleeping:   r.Sleeping,
		Building:   r.Building,
		Wallet:     r.Wallet,
		Needs: NeedsView{
			Hunger:  round1(r.Needs.Hunger),
			Thirst:  round1(r.Needs.Thirst),
			Energy:  round1(r.Needs.Energy),
			Bladder: round1(r.Needs.Bladder),
			Health:  round1(r.Needs.Health),
			Social:  round1(r.Needs.Social),
		},
		Inventory: make([]ItemView, 0, len(r.Inv)),
	}
	for _, s := range r.Inv {
		v.Inventory = append(v.Inventory, ItemView{
			ID: s.ID, Type: s.Type, Quantity: s.Quantity, Durability: s.Durability,
		})
	}
	if r.Employment != nil {
		v.Employment = &EmploymentView{
			JobID:     r.Employment.JobID,
			OnShift:   r.Employment.OnShift,
			ShiftSecs: r.Employment.ShiftSecs,
		}
	}
	if len(r.Offenses) > 0 || r.ArrestedBy != "" || r.PrisonUntil > 0 ||
		r.CarryingSuspect != "" || r.CarryingBody != "" {
		v.Custody = &CustodyView{
			Offenses:        r.Offenses,
			ArrestedBy:      r.ArrestedBy,
			PrisonUntil:     r.PrisonUntil,
			CarryingSuspect: r.CarryingSuspect,
			CarryingBody:    r.CarryingBody,
		}
	}
	for target, at := range r.AwaitingReply {
		remaining := turnTimeoutSecs - now.Sub(at).Seconds()
		if remaining > 0 {
			v.Awaiting = append(v.Awaiting, AwaitView{Target: target, Remaining: round1(remaining)})
		}
	}
	sort.Slice(v.Awaiting, func(i, j int) bool { return v.Awaiting[i].Target < v.Awaiting[j].Target })
	return v
}

// actionTags derives the allowed interaction tags from the resident's state.
func (b *Builder) actionTags(r *world.Resident) []string {
	tags := []string{"speak", "inspect"}
	if r.Imprisoned(b.world.Clock.WorldSecs) {
		return append(tags, "submit_feedback")
	}
	if !r.Sleeping && r.Needs.Energy > 0 {
		tags = append(tags, "move", "move_to", "stop", "face")
	}
	if !r.Sleeping && r.Needs.Energy < 90 {
		tags = append(tags, "sleep")
	}
	if r.Sleeping {
		tags = append(tags, "wake")
		return tags
	}

	hasEdible, hasDrinkable := false, false
	for _, s := range r.Inv {
		it := b.items.Get(s.Type)
		if it == nil || it.SleepingBag {
			continue
		}
		if it.Edible() {
			hasEdible = true
		}
		if it.Drinkable() {
			hasDrinkable = true
		}
	}
	if hasEdible {
		tags = append(tags, "eat")
	}
	if hasDrinkable {
		tags = append(tags, "drink")
	}
	tags = append(tags, "trade", "give", "get_referral_link", "claim_referrals", "submit_feedback", "depart")

	if r.Building == "" {
		if bd, d := b.world.Map.DoorNear(r.X, r.Y, 2*float64(b.world.Map.TileSize)); d != nil {
			tags = append(tags, "enter_building:"+bd.ID)
		}
		for _, n := range b.world.Forage {
			if n.Uses > 0 && math.Hypot(n.X-r.X, n.Y-r.Y) <= AmbientRadius {
				tags = append(tags, "forage")
				break
			}
		}
	} else {
		tags = append(tags, "exit_building")
		if bd := b.world.Map.BuildingByID(r.Building); bd != nil {
			tx := int(r.X) / b.world.Map.TileSize
			ty := int(r.Y) / b.world.Map.TileSize
			tags = append(tags, bd.ZoneActionsAt(tx, ty)...)
			switch bd.ID {
			case "mortuary":
				if r.CarryingBody != "" {
					tags = append(tags, "process_body")
				}
			case "police_station":
				if r.CarryingSuspect != "" {
					tags = append(tags, "book_suspect")
				}
			case "council_hall":
				tags = append(tags, "list_jobs", "apply_job", "quit_job",
					"write_petition", "vote_petition", "list_petitions")
			}
		}
	}
	return tags
}

func residentView(r *world.Resident) ResidentView {
	return ResidentView{
		ID:         r.ID,
		PassportNo: r.PassportNo,
		Name:       r.Name,
		X:          r.X,
		Y:          r.Y,
		Facing:     r.Facing,
		Status:     string(r.Status),
		Sleeping:   r.Sleeping,
		Speed:      string(r.Speed),
		Building:   r.Building,
	}
}

func buildingView(b *data.Building) BuildingView {
	return BuildingView{ID: b.ID, Name: b.Name, X: b.X, Y: b.Y, W: b.W, H: b.H}
}

func forageView(n *world.ForageNode) ForageView {
	return ForageView{ID: n.ID, Type: n.Type, X: n.X, Y: n.Y, Uses: n.Uses}
}

// sortViews keeps packet ordering stable across map iteration.
func sortViews(p *Packet) {
	sort.Slice(p.Residents, func(i, j int) bool { return p.Residents[i].ID < p.Residents[j].ID })
	sort.Slice(p.Forage, func(i, j int) bool { return p.Forage[i].ID < p.Forage[j].ID })
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
