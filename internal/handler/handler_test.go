package handler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

// testMap lays out every building the handlers touch: border walls, a
// vertical wall at x=10 with a gap at y=7, and a berry bush at (4,7).
func testMap() *data.GameMap {
	const w, h = 20, 15
	m := &data.GameMap{Width: w, Height: h, TileSize: 32}
	m.Spawn.X, m.Spawn.Y = 2, 7
	m.Ground = make([][]int, h)
	m.Obstacles = make([][]int, h)
	for y := 0; y < h; y++ {
		m.Ground[y] = make([]int, w)
		m.Obstacles[y] = make([]int, w)
	}
	for x := 0; x < w; x++ {
		m.Obstacles[0][x] = 1
		m.Obstacles[h-1][x] = 1
	}
	for y := 0; y < h; y++ {
		m.Obstacles[y][0] = 1
		m.Obstacles[y][w-1] = 1
	}
	for y := 1; y < h-1; y++ {
		if y != 7 {
			m.Obstacles[y][10] = 1
		}
	}
	place := func(b *data.Building) {
		for y := b.Y; y < b.Y+b.H; y++ {
			for x := b.X; x < b.X+b.W; x++ {
				m.Obstacles[y][x] = 1
			}
		}
		m.Buildings = append(m.Buildings, b)
	}
	place(&data.Building{
		ID: "council_hall", Name: "Council Hall", X: 2, Y: 2, W: 4, H: 3,
		Doors: []data.Door{{X: 3, Y: 4, Facing: "south"}},
	})
	place(&data.Building{
		ID: "public_toilet", Name: "Public Toilet", X: 12, Y: 2, W: 2, H: 2,
		Doors: []data.Door{{X: 12, Y: 3, Facing: "south"}},
		Zones: []data.Zone{{X: 12, Y: 2, W: 2, H: 2, Actions: []string{"use_toilet"}}},
	})
	place(&data.Building{
		ID: "bank", Name: "City Bank", X: 14, Y: 2, W: 3, H: 3,
		Doors: []data.Door{{X: 15, Y: 4, Facing: "south"}},
		Zones: []data.Zone{{X: 14, Y: 2, W: 3, H: 3, Actions: []string{"collect_ubi"}}},
	})
	place(&data.Building{
		ID: "shop", Name: "General Store", X: 2, Y: 10, W: 3, H: 3,
		Doors: []data.Door{{X: 3, Y: 10, Facing: "north"}},
		Zones: []data.Zone{{X: 2, Y: 10, W: 3, H: 3, Actions: []string{"buy"}}},
	})
	place(&data.Building{
		ID: "mortuary", Name: "Mortuary", X: 6, Y: 10, W: 3, H: 3,
		Doors: []data.Door{{X: 7, Y: 10, Facing: "north"}},
	})
	place(&data.Building{
		ID: "police_station", Name: "Police Station", X: 14, Y: 10, W: 4, H: 3,
		Doors: []data.Door{{X: 15, Y: 10, Facing: "north"}},
	})
	m.Forage = []data.ForageSpawn{
		{X: 4, Y: 7, Type: "berry_bush", MaxUses: 2, Regrow: 600},
	}
	return m
}

func testDeps(t *testing.T) *Deps {
	t.Helper()
	ctx := context.Background()
	db, err := persist.OpenMemory(ctx, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persist.RunMigrations(ctx, db))

	w := world.NewState(testMap())
	items := data.DefaultItemTable()
	jobs := data.DefaultJobTable()
	events := event.NewLog(persist.NewEventRepo(db), zap.NewNop())
	hooks := webhook.NewDispatcher(zap.NewNop())
	t.Cleanup(hooks.Close)
	petitions := persist.NewPetitionRepo(db)

	return &Deps{
		World:     w,
		Items:     items,
		Jobs:      jobs,
		Events:    events,
		Hooks:     hooks,
		Economy:   sim.NewEconomy(w, items, jobs, petitions, events, hooks, zap.NewNop()),
		Residents: persist.NewResidentRepo(db),
		Petitions: petitions,
		Referrals: persist.NewReferralRepo(db),
		Feedback:  persist.NewFeedbackRepo(db),
		PublicURL: "http://localhost:8080",
		Log:       zap.NewNop(),
	}
}

func spawn(d *Deps, id string, tx, ty int) *world.Resident {
	r := world.NewResident(id, "OC-"+id, id, world.TypeAgent)
	r.X, r.Y = d.World.Map.TileCenter(tx, ty)
	d.World.AddResident(r)
	return r
}

func call(d *Deps, r *world.Resident, action, rawParams string) *net.ActionResult {
	msg := net.ClientMessage{Type: action}
	if rawParams != "" {
		msg.Params = json.RawMessage(rawParams)
	}
	return Dispatch(d, nil, r, msg)
}

func resData(t *testing.T, res *net.ActionResult) map[string]any {
	t.Helper()
	m, ok := res.Data.(map[string]any)
	require.True(t, ok, "action_result data should be a map, got %T", res.Data)
	return m
}

func TestDispatchUnknownAction(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)
	res := call(d, r, "teleport", "")
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, ReasonUnknownAction, res.Reason)
}

func TestDispatchRequestIDDedup(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)
	msg := net.ClientMessage{Type: "stop", RequestID: "req-1"}

	first := Dispatch(d, nil, r, msg)
	assert.Equal(t, "ok", first.Status)

	second := Dispatch(d, nil, r, msg)
	assert.Equal(t, "ok", second.Status)
	assert.Equal(t, "duplicate_request", second.Reason)
}

func TestDispatchStatusGates(t *testing.T) {
	d := testDeps(t)
	dead := spawn(d, "dead", 2, 7)
	dead.Status = world.StatusDeceased
	res := call(d, dead, "stop", "")
	assert.Equal(t, ReasonDeceased, res.Reason)

	gone := spawn(d, "gone", 2, 7)
	gone.Status = world.StatusDeparted
	res = call(d, gone, "stop", "")
	assert.Equal(t, ReasonNotAllowed, res.Reason)
}

func TestDispatchImprisonedAllowlist(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 15, 11)
	r.PrisonUntil = 7200
	r.Building = "police_station"

	res := call(d, r, "move", `{"direction":0}`)
	assert.Equal(t, ReasonImprisoned, res.Reason)

	res = call(d, r, "inspect", `{"target":"r1"}`)
	assert.Equal(t, "ok", res.Status, "inspect stays available behind bars")

	res = call(d, r, "speak", `{"text":"let me out"}`)
	assert.Equal(t, "ok", res.Status)
}

func TestBuyAndEat(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 3, 11)
	r.Building = "shop"
	r.Needs.Hunger = 50

	res := call(d, r, "buy", `{"item_type":"bread","quantity":2}`)
	require.Equal(t, "ok", res.Status)
	got := resData(t, res)
	assert.Equal(t, 94, got["wallet"], "2x bread at 3 each")
	assert.Equal(t, 18, got["stock"])

	stack := r.ItemByType("bread")
	require.NotNil(t, stack)
	assert.Equal(t, 2, stack.Quantity)

	res = call(d, r, "eat", `{"item_id":"`+stack.ID+`"}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, 80.0, resData(t, res)["hunger"])
	assert.Equal(t, 1, stack.Quantity)

	res = call(d, r, "eat", `{"item_id":"`+stack.ID+`"}`)
	require.Equal(t, "ok", res.Status)
	assert.Nil(t, r.ItemByType("bread"), "empty stacks disappear")
}

func TestBuyFailures(t *testing.T) {
	d := testDeps(t)
	outside := spawn(d, "outside", 2, 7)
	res := call(d, outside, "buy", `{"item_type":"bread"}`)
	assert.Equal(t, ReasonWrongBuilding, res.Reason)

	r := spawn(d, "r1", 3, 11)
	r.Building = "shop"

	res = call(d, r, "buy", `{"item_type":"caviar"}`)
	assert.Equal(t, ReasonNotFound, res.Reason)

	res = call(d, r, "buy", `{"item_type":"wild_berries"}`)
	assert.Equal(t, ReasonNotFound, res.Reason, "foraged goods are not sold")

	d.Economy.ShopStock["stew"] = 1
	res = call(d, r, "buy", `{"item_type":"stew","quantity":2}`)
	assert.Equal(t, ReasonNoStock, res.Reason)

	r.Wallet = 1
	res = call(d, r, "buy", `{"item_type":"stew"}`)
	assert.Equal(t, ReasonNoFunds, res.Reason)
}

func TestDrinkRejectsFood(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)
	r.Inv = []*world.ItemStack{{ID: "i1", Type: "bread", Quantity: 1, Durability: -1}}

	res := call(d, r, "drink", `{"item_id":"i1"}`)
	assert.Equal(t, ReasonNotAllowed, res.Reason)
}

func TestForage(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 4, 7) // on the berry bush tile

	res := call(d, r, "forage", "")
	require.Equal(t, "ok", res.Status)
	got := resData(t, res)
	assert.Equal(t, "wild_berries", got["item"])
	assert.Equal(t, 1, got["uses_remaining"])

	res = call(d, r, "forage", "")
	require.Equal(t, "ok", res.Status)

	res = call(d, r, "forage", "")
	assert.Equal(t, ReasonDepleted, res.Reason)

	far := spawn(d, "far", 15, 7)
	res = call(d, far, "forage", "")
	assert.Equal(t, ReasonOutOfRange, res.Reason)

	inside := spawn(d, "inside", 3, 11)
	inside.Building = "shop"
	res = call(d, inside, "forage", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason)
}

func TestSpeakBasics(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)

	res := call(d, r, "speak", `{"text":"  hello out there  "}`)
	require.Equal(t, "ok", res.Status)
	require.Len(t, r.PendingSpeech, 1)
	assert.Equal(t, "hello out there", r.PendingSpeech[0].Text)
	assert.Equal(t, world.VolumeNormal, r.PendingSpeech[0].Volume)
	assert.InDelta(t, 100-sim.SpeakEnergyCost, r.Needs.Energy, 1e-9)

	res = call(d, r, "speak", `{"text":"too fast"}`)
	assert.Equal(t, ReasonTooSoon, res.Reason, "speech has a cooldown")

	res = call(d, r, "speak", `{"text":"hi","volume":"screaming"}`)
	assert.Equal(t, ReasonBadParams, res.Reason)

	res = call(d, r, "speak", `{"text":""}`)
	assert.Equal(t, ReasonBadParams, res.Reason)

	res = call(d, r, "speak", `{"text":"`+strings.Repeat("a", 281)+`"}`)
	assert.Equal(t, ReasonBadParams, res.Reason)
}

func TestSpeakDuplicateSuppression(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)

	res := call(d, r, "speak", `{"text":"Hello There"}`)
	require.Equal(t, "ok", res.Status)

	r.LastSpeech = time.Now().Add(-2 * time.Second)
	res = call(d, r, "speak", `{"text":"hello there"}`)
	assert.Equal(t, ReasonDuplicate, res.Reason, "case-folded repeats are suppressed")
}

func TestShoutCostsMoreEnergy(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)
	r.Needs.Energy = 1

	res := call(d, r, "speak", `{"text":"HEY","volume":"shout"}`)
	assert.Equal(t, ReasonExhausted, res.Reason)

	res = call(d, r, "speak", `{"text":"hey","volume":"whisper"}`)
	assert.Equal(t, "ok", res.Status)
}

func TestDirectedSpeechTurnLock(t *testing.T) {
	d := testDeps(t)
	a := spawn(d, "a", 2, 7)
	b := spawn(d, "b", 3, 7)

	res := call(d, a, "speak", `{"text":"hi b","to":"b"}`)
	require.Equal(t, "ok", res.Status)

	a.LastSpeech = time.Now().Add(-2 * time.Second)
	res = call(d, a, "speak", `{"text":"anything yet?","to":"b"}`)
	require.Equal(t, ReasonAwaitingReply, res.Reason)
	got := resData(t, res)
	assert.Equal(t, "b", got["target"])
	assert.Greater(t, got["remaining_secs"].(float64), 0.0)

	// The reply clears a's lock on b.
	res = call(d, b, "speak", `{"text":"hi a","to":"a"}`)
	require.Equal(t, "ok", res.Status)

	a.LastSpeech = time.Now().Add(-2 * time.Second)
	res = call(d, a, "speak", `{"text":"good to hear","to":"b"}`)
	assert.Equal(t, "ok", res.Status)
}

func TestSpeakToUnknownTarget(t *testing.T) {
	d := testDeps(t)
	a := spawn(d, "a", 2, 7)
	res := call(d, a, "speak", `{"text":"hello?","to":"nobody"}`)
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestTrade(t *testing.T) {
	d := testDeps(t)
	a := spawn(d, "a", 2, 7)
	b := spawn(d, "b", 3, 7)

	res := call(d, a, "trade", `{"to":"b","offer_currency":30}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, 70, a.Wallet)
	assert.Equal(t, 130, b.Wallet)
	assert.NotEmpty(t, b.PendingNotifications)

	res = call(d, a, "trade", `{"to":"b","offer_currency":10,"request_currency":5}`)
	assert.Equal(t, ReasonBadParams, res.Reason, "requesting currency back is not a trade")

	res = call(d, a, "trade", `{"to":"b","offer_currency":500}`)
	assert.Equal(t, ReasonNoFunds, res.Reason)

	far := spawn(d, "far", 15, 7)
	res = call(d, a, "trade", `{"to":"far","offer_currency":10}`)
	_ = far
	assert.Equal(t, ReasonOutOfRange, res.Reason)
}

func TestGiveSplitsStacks(t *testing.T) {
	d := testDeps(t)
	a := spawn(d, "a", 2, 7)
	b := spawn(d, "b", 3, 7)
	a.Inv = []*world.ItemStack{{ID: "i1", Type: "bread", Quantity: 3, Durability: -1}}

	res := call(d, a, "give", `{"to":"b","item_id":"i1","quantity":2}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, 1, a.Inv[0].Quantity)
	got := b.ItemByType("bread")
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Quantity)

	res = call(d, a, "give", `{"to":"b","item_id":"i1","quantity":5}`)
	assert.Equal(t, ReasonNotFound, res.Reason, "cannot give more than the stack holds")

	res = call(d, a, "give", `{"to":"b","item_id":"i1"}`)
	require.Equal(t, "ok", res.Status)
	assert.Nil(t, a.ItemByType("bread"), "giving the whole stack removes it")
	assert.Equal(t, 3, b.ItemByType("bread").Quantity)
}

func TestArrestAndBooking(t *testing.T) {
	d := testDeps(t)
	officer := spawn(d, "officer", 2, 7)
	officer.Employment = &world.Employment{JobID: "police_officer", OnShift: true}
	suspect := spawn(d, "suspect", 3, 7)
	suspect.AddOffense(world.OffenseLoitering)

	civilian := spawn(d, "civilian", 2, 6)
	res := call(d, civilian, "arrest", `{"target":"suspect"}`)
	assert.Equal(t, ReasonNotAllowed, res.Reason)

	innocent := spawn(d, "innocent", 2, 6)
	res = call(d, officer, "arrest", `{"target":"innocent"}`)
	_ = innocent
	assert.Equal(t, "no_offense", res.Reason)

	res = call(d, officer, "arrest", `{"target":"suspect"}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, officer.ID, suspect.ArrestedBy)
	assert.Equal(t, suspect.ID, officer.CarryingSuspect)
	assert.InDelta(t, 100-sim.ArrestEnergyCost, officer.Needs.Energy, 1e-9)

	res = call(d, officer, "arrest", `{"target":"innocent"}`)
	assert.Equal(t, "hands_full", res.Reason)

	officer2 := spawn(d, "officer2", 2, 6)
	officer2.Employment = &world.Employment{JobID: "police_officer", OnShift: true}
	res = call(d, officer2, "arrest", `{"target":"suspect"}`)
	assert.Equal(t, "already_in_custody", res.Reason)

	res = call(d, officer, "book_suspect", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason)

	officer.Building = "police_station"
	d.World.Clock.WorldSecs = 1000
	res = call(d, officer, "book_suspect", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, int64(1000+sim.SentenceSecs), suspect.PrisonUntil)
	assert.Equal(t, "police_station", suspect.Building)
	assert.Equal(t, "", suspect.ArrestedBy)
	assert.Equal(t, "", officer.CarryingSuspect)
	assert.Equal(t, world.StartingGrant+sim.BookingBounty, officer.Wallet)

	res = call(d, officer, "book_suspect", "")
	assert.Equal(t, ReasonNotFound, res.Reason, "nothing left to book")
}

func TestArrestOutOfRange(t *testing.T) {
	d := testDeps(t)
	officer := spawn(d, "officer", 2, 7)
	officer.Employment = &world.Employment{JobID: "police_officer", OnShift: true}
	runner := spawn(d, "runner", 15, 7)
	runner.AddOffense(world.OffenseLoitering)

	res := call(d, officer, "arrest", `{"target":"runner"}`)
	assert.Equal(t, ReasonOutOfRange, res.Reason)
}

func TestCollectAndProcessBody(t *testing.T) {
	d := testDeps(t)
	body := spawn(d, "body", 3, 7)
	body.Status = world.StatusDeceased
	bearer := spawn(d, "bearer", 2, 7)

	res := call(d, bearer, "collect_body", `{"target":"body"}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, body.ID, bearer.CarryingBody)
	assert.Equal(t, float64(world.CorpseX), body.X, "carried bodies leave the map")

	other := spawn(d, "other", 2, 6)
	res = call(d, other, "collect_body", `{"target":"body"}`)
	assert.Equal(t, "already_carried", res.Reason)

	res = call(d, bearer, "process_body", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason)

	bearer.Building = "mortuary"
	res = call(d, bearer, "process_body", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, world.StatusProcessed, body.Status)
	assert.Equal(t, world.StartingGrant+sim.BodyProcessFee, bearer.Wallet)
	assert.Equal(t, "", bearer.CarryingBody)
}

func TestCollectBodyRejectsTheLiving(t *testing.T) {
	d := testDeps(t)
	alive := spawn(d, "alive", 3, 7)
	bearer := spawn(d, "bearer", 2, 7)
	res := call(d, bearer, "collect_body", `{"target":"alive"}`)
	_ = alive
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestJobLifecycle(t *testing.T) {
	d := testDeps(t)
	a := spawn(d, "a", 3, 3)
	a.Building = "council_hall"
	b := spawn(d, "b", 4, 3)
	b.Building = "council_hall"

	res := call(d, a, "apply_job", `{"job_id":"shopkeeper"}`)
	require.Equal(t, "ok", res.Status)
	require.NotNil(t, a.Employment)
	assert.True(t, a.Employment.OnShift)

	res = call(d, a, "apply_job", `{"job_id":"clerk"}`)
	assert.Equal(t, "already_employed", res.Reason)

	res = call(d, b, "apply_job", `{"job_id":"shopkeeper"}`)
	assert.Equal(t, ReasonNoVacancy, res.Reason, "the single shopkeeper seat is taken")

	res = call(d, a, "quit_job", "")
	require.Equal(t, "ok", res.Status)
	assert.Nil(t, a.Employment)

	res = call(d, a, "quit_job", "")
	assert.Equal(t, ReasonNotFound, res.Reason)

	res = call(d, b, "apply_job", `{"job_id":"shopkeeper"}`)
	assert.Equal(t, "ok", res.Status, "quitting frees the seat")

	outside := spawn(d, "outside", 2, 7)
	res = call(d, outside, "list_jobs", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason)

	res = call(d, a, "list_jobs", "")
	assert.Equal(t, "ok", res.Status)
}

func TestCollectUBI(t *testing.T) {
	d := testDeps(t)
	d.World.Clock.WorldSecs = 1000
	r := spawn(d, "r1", 15, 3)
	r.Building = "bank"

	res := call(d, r, "collect_ubi", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, world.StartingGrant+sim.UBIAmount, r.Wallet)
	assert.Equal(t, int64(1000), r.LastUBIWS)

	res = call(d, r, "collect_ubi", "")
	require.Equal(t, ReasonTooSoon, res.Reason)
	got := resData(t, res)
	assert.Equal(t, int64(sim.UBICooldownSecs), got["next_in_world_secs"])

	street := spawn(d, "street", 2, 7)
	res = call(d, street, "collect_ubi", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason)
}

func TestPetitionLifecycle(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 3, 3)
	r.Building = "council_hall"

	res := call(d, r, "write_petition", `{"title":"Fix the roads","body":"Potholes everywhere."}`)
	require.Equal(t, "ok", res.Status)
	id := resData(t, res)["petition_id"].(string)
	require.NotEmpty(t, id)

	res = call(d, r, "vote_petition", `{"petition_id":"`+id+`","up":true}`)
	assert.Equal(t, "ok", res.Status)

	res = call(d, r, "vote_petition", `{"petition_id":"`+id+`","up":false}`)
	assert.Equal(t, ReasonAlreadyVoted, res.Reason, "one vote per resident, no do-overs")

	res = call(d, r, "vote_petition", `{"petition_id":"nope","up":true}`)
	assert.Equal(t, ReasonNotFound, res.Reason)

	res = call(d, r, "list_petitions", "")
	assert.Equal(t, "ok", res.Status)

	res = call(d, r, "write_petition", `{"title":"","body":"no title"}`)
	assert.Equal(t, ReasonBadParams, res.Reason)

	street := spawn(d, "street", 2, 7)
	res = call(d, street, "write_petition", `{"title":"x","body":"y"}`)
	assert.Equal(t, ReasonWrongBuilding, res.Reason)
}

func TestReferralLinkAndClaim(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)

	res := call(d, r, "get_referral_link", "")
	require.Equal(t, "ok", res.Status)
	got := resData(t, res)
	code := got["code"].(string)
	assert.Len(t, code, 8)
	assert.Equal(t, d.PublicURL+"/?ref="+code, got["link"])

	res = call(d, r, "get_referral_link", "")
	assert.Equal(t, code, resData(t, res)["code"], "the code is allocated once")

	res = call(d, r, "claim_referrals", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, 0, resData(t, res)["claimed"])

	ctx := context.Background()
	require.NoError(t, d.Referrals.Record(ctx, code, r.ID, "newcomer"))
	require.NoError(t, d.Referrals.Mature(ctx, "newcomer"))

	res = call(d, r, "claim_referrals", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, 1, resData(t, res)["claimed"])
	assert.Equal(t, world.StartingGrant+sim.ReferralBonus, r.Wallet)

	res = call(d, r, "claim_referrals", "")
	assert.Equal(t, 0, resData(t, res)["claimed"], "each referral pays once")
}

func TestSubmitFeedback(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)
	ctx := context.Background()
	require.NoError(t, d.Residents.Create(ctx, r.Row()))
	require.NoError(t, d.Feedback.Issue(ctx, "tok-1", r.ID, "periodic"))

	res := call(d, r, "submit_feedback", `{"token":"tok-1","response":"life is good"}`)
	assert.Equal(t, "ok", res.Status)

	res = call(d, r, "submit_feedback", `{"token":"tok-1","response":"again"}`)
	assert.Equal(t, "invalid_token", res.Reason)

	res = call(d, r, "submit_feedback", `{"token":"tok-2","response":"  "}`)
	assert.Equal(t, ReasonBadParams, res.Reason)
}

func TestMoveToRoutes(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)

	res := call(d, r, "move_to", `{"x":400,"y":240}`)
	require.Equal(t, "ok", res.Status)
	require.NotNil(t, r.Path)
	assert.NotEmpty(t, r.Path.Waypoints)

	res = call(d, r, "move_to", `{"x":112,"y":368}`) // shop interior
	assert.Equal(t, ReasonNoPath, res.Reason)

	res = call(d, r, "move_to", `{"building":"bank"}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, "bank", r.Path.EnterTarget)

	res = call(d, r, "move_to", `{"building":"casino"}`)
	assert.Equal(t, ReasonNotFound, res.Reason)

	res = call(d, r, "move_to", "{}")
	assert.Equal(t, ReasonBadParams, res.Reason)
}

func TestMoveToStepsOutsideFirst(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 3, 11)
	r.Building = "shop"

	res := call(d, r, "move_to", `{"x":400,"y":240}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, "", r.Building)
	wantX, wantY := d.World.Map.DoorExit(&d.World.Map.BuildingByID("shop").Doors[0])
	assert.Equal(t, wantX, r.X, "routes start from the street in front of the door")
	assert.Equal(t, wantY, r.Y)
}

func TestMoveToNoPathKeepsResidentInside(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 3, 11)
	r.Building = "shop"
	x, y := r.X, r.Y

	res := call(d, r, "move_to", `{"x":496,"y":112}`) // bank interior
	assert.Equal(t, ReasonNoPath, res.Reason)
	assert.Equal(t, "shop", r.Building, "a failed route must not move anyone")
	assert.Equal(t, x, r.X)
	assert.Equal(t, y, r.Y)
	assert.Nil(t, r.Path)
}

func TestEnterAndExitBuilding(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 3, 9) // in front of the shop door

	res := call(d, r, "enter_building", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, "shop", r.Building)

	res = call(d, r, "enter_building", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason, "already inside")

	res = call(d, r, "exit_building", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, "", r.Building)
	wantX, wantY := d.World.Map.DoorExit(&d.World.Map.BuildingByID("shop").Doors[0])
	assert.Equal(t, wantX, r.X)
	assert.Equal(t, wantY, r.Y)

	res = call(d, r, "enter_building", `{"building":"bank"}`)
	assert.Equal(t, ReasonOutOfRange, res.Reason, "the bank door is across town")

	lost := spawn(d, "lost", 2, 7)
	res = call(d, lost, "exit_building", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason)
}

func TestUseToilet(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 12, 2)
	r.Building = "public_toilet"
	r.Needs.Bladder = 80

	res := call(d, r, "use_toilet", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, float64(0), r.Needs.Bladder)

	shopper := spawn(d, "shopper", 3, 11)
	shopper.Building = "shop"
	res = call(d, shopper, "use_toilet", "")
	assert.Equal(t, ReasonWrongBuilding, res.Reason, "the shop has no toilet zone")
}

func TestSleepAndWake(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)

	res := call(d, r, "sleep", "")
	assert.Equal(t, "not_tired", res.Reason, "full energy blocks voluntary sleep")

	r.Needs.Energy = 50
	res = call(d, r, "sleep", "")
	require.Equal(t, "ok", res.Status)
	assert.True(t, r.Sleeping)

	res = call(d, r, "move", `{"direction":0}`)
	assert.Equal(t, ReasonSleeping, res.Reason)

	res = call(d, r, "wake", "")
	require.Equal(t, "ok", res.Status)
	assert.False(t, r.Sleeping)

	res = call(d, r, "wake", "")
	assert.Equal(t, ReasonNotSleeping, res.Reason)
}

func TestMoveFaceStop(t *testing.T) {
	d := testDeps(t)
	r := spawn(d, "r1", 2, 7)

	res := call(d, r, "move", `{"direction":90,"speed":"run"}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, 90, r.Facing)
	assert.InDelta(t, sim.RunSpeed, r.VelY, 1e-9)
	assert.InDelta(t, 0, r.VelX, 1e-9)
	assert.Equal(t, world.SpeedRunning, r.Speed)

	res = call(d, r, "face", `{"direction":-90}`)
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, 270, r.Facing)

	res = call(d, r, "stop", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, float64(0), r.VelX)
	assert.Equal(t, float64(0), r.VelY)
	assert.Equal(t, world.SpeedStopped, r.Speed)
}

func TestDepartReleasesSuspect(t *testing.T) {
	d := testDeps(t)
	officer := spawn(d, "officer", 2, 7)
	officer.Employment = &world.Employment{JobID: "police_officer", OnShift: true}
	suspect := spawn(d, "suspect", 3, 7)
	suspect.AddOffense(world.OffenseLoitering)
	require.Equal(t, "ok", call(d, officer, "arrest", `{"target":"suspect"}`).Status)

	res := call(d, suspect, "depart", "")
	assert.Equal(t, ReasonArrested, res.Reason, "no boarding the train in custody")

	res = call(d, officer, "depart", "")
	require.Equal(t, "ok", res.Status)
	assert.Equal(t, world.StatusDeparted, officer.Status)
	assert.Equal(t, "", suspect.ArrestedBy)
	assert.Contains(t, suspect.PendingNotifications, "You have been released.")

	res = call(d, officer, "stop", "")
	assert.Equal(t, ReasonNotAllowed, res.Reason, "departed residents act no more")
}
