package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/persist"
)

// testMap builds a small walled map: border obstacles, a vertical wall at
// x=10 with a gap at y=7, a shop, a police station, and two forage spawns.
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
		ID: "shop", Name: "General Store", X: 2, Y: 10, W: 3, H: 3,
		Doors: []data.Door{{X: 3, Y: 10, Facing: "north"}},
		Zones: []data.Zone{{X: 2, Y: 10, W: 3, H: 3, Actions: []string{"buy"}}},
	})
	place(&data.Building{
		ID: "police_station", Name: "Police Station", X: 14, Y: 10, W: 4, H: 3,
		Doors: []data.Door{{X: 15, Y: 10, Facing: "north"}},
	})
	m.Forage = []data.ForageSpawn{
		{X: 4, Y: 7, Type: "berry_bush", MaxUses: 2, Regrow: 600},
		{X: 13, Y: 7, Type: "spring", MaxUses: 3, Regrow: 300},
	}
	return m
}

func TestClockAdvanceScalesToWorldTime(t *testing.T) {
	var c Clock
	c.TrainTimer = 100
	c.RestockTimer = 40

	whole := c.Advance(500 * time.Millisecond)
	assert.Equal(t, int64(30), whole, "half a real second is 30 world-seconds")
	assert.Equal(t, int64(30), c.WorldSecs)
	assert.Equal(t, int64(70), c.TrainTimer)
	assert.Equal(t, int64(10), c.RestockTimer)
}

func TestClockCarriesFractionalSeconds(t *testing.T) {
	var c Clock

	// 16ms is 0.96 world-seconds: no whole second yet.
	assert.Equal(t, int64(0), c.Advance(16*time.Millisecond))
	// Another 17ms brings the carry to 1.98: exactly one whole second.
	assert.Equal(t, int64(1), c.Advance(17*time.Millisecond))
	assert.Equal(t, int64(1), c.WorldSecs)
}

func TestClockHourOfDay(t *testing.T) {
	var c Clock
	assert.InDelta(t, 8.0, c.HourOfDay(), 1e-9, "fresh worlds start at 08:00")

	c.WorldSecs = 5 * 3600
	assert.InDelta(t, 13.0, c.HourOfDay(), 1e-9)

	c.WorldSecs = 20 * 3600
	assert.InDelta(t, 4.0, c.HourOfDay(), 1e-9, "hour wraps past midnight")
}

func TestPassportAllocation(t *testing.T) {
	s := NewState(testMap())
	assert.Equal(t, "OC-0000001", s.NextPassport())
	assert.Equal(t, "OC-0000002", s.NextPassport())
}

func TestPassportCounterRestoredFromRows(t *testing.T) {
	s := NewState(testMap())
	row := NewResident("r1", "OC-0000042", "Ada", TypeAgent).Row()
	_, err := s.AddResidentFromRow(row, nil)
	require.NoError(t, err)

	assert.Equal(t, "OC-0000043", s.NextPassport(), "counter resumes past the highest loaded passport")
}

func TestStateAddRemoveLookup(t *testing.T) {
	s := NewState(testMap())
	r := NewResident("r1", "OC-0000001", "Ada", TypeAgent)
	s.AddResident(r)

	assert.Same(t, r, s.Get("r1"))
	assert.Same(t, r, s.GetByPassport("OC-0000001"))
	assert.Equal(t, 1, s.Count())

	gone := s.RemoveResident("r1")
	assert.Same(t, r, gone)
	assert.Nil(t, s.Get("r1"))
	assert.Nil(t, s.GetByPassport("OC-0000001"))
	assert.Equal(t, 0, s.Count())
	assert.Nil(t, s.RemoveResident("r1"))
}

func TestWithinExcludesSelfAndNonAlive(t *testing.T) {
	s := NewState(testMap())
	me := NewResident("me", "OC-0000001", "Ada", TypeAgent)
	me.X, me.Y = 100, 100
	near := NewResident("near", "OC-0000002", "Bob", TypeAgent)
	near.X, near.Y = 150, 100
	far := NewResident("far", "OC-0000003", "Cyd", TypeAgent)
	far.X, far.Y = 400, 400
	dead := NewResident("dead", "OC-0000004", "Dee", TypeAgent)
	dead.X, dead.Y = 110, 100
	dead.Status = StatusDeceased
	for _, r := range []*Resident{me, near, far, dead} {
		s.AddResident(r)
	}

	got := s.Within(me.X, me.Y, 128, me.ID)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].ID)
}

func TestQueueForTrainOnlyQueues(t *testing.T) {
	s := NewState(testMap())
	s.DevMode = true
	r := NewResident("r1", "OC-0000001", "Ada", TypeAgent)
	s.AddResident(r)

	s.QueueForTrain("r1")
	assert.Equal(t, []string{"r1"}, s.TrainQueue)
	assert.Equal(t, float64(0), r.X, "placement waits for the train drain")
	assert.Equal(t, float64(0), r.Y)
}

func TestDrainTrainSpawnsQueuedAndSkipsNonAlive(t *testing.T) {
	s := NewState(testMap())
	a := NewResident("a", "OC-0000001", "Ada", TypeAgent)
	b := NewResident("b", "OC-0000002", "Bob", TypeAgent)
	b.Status = StatusDeceased
	s.AddResident(a)
	s.AddResident(b)
	s.QueueForTrain("a")
	s.QueueForTrain("b")
	s.QueueForTrain("ghost")

	spawned := s.DrainTrain()
	require.Len(t, spawned, 1)
	assert.Equal(t, "a", spawned[0].ID)
	wantX, wantY := s.Map.TileCenter(s.Map.Spawn.X, s.Map.Spawn.Y)
	assert.Equal(t, wantX, a.X)
	assert.Equal(t, wantY, a.Y)
	assert.Empty(t, s.TrainQueue)
}

func TestNewStateSeedsForageFromMap(t *testing.T) {
	s := NewState(testMap())
	require.Len(t, s.Forage, 2)

	var bush, spring *ForageNode
	for _, n := range s.Forage {
		switch n.Type {
		case ForageBerryBush:
			bush = n
		case ForageSpring:
			spring = n
		}
	}
	require.NotNil(t, bush)
	require.NotNil(t, spring)
	assert.Equal(t, 2, bush.Uses)
	assert.Equal(t, int64(600), bush.Regrow)
	cx, cy := s.Map.TileCenter(4, 7)
	assert.Equal(t, cx, bush.X)
	assert.Equal(t, cy, bush.Y)
}

func TestForageNodeDepleteAndRegrow(t *testing.T) {
	n := &ForageNode{ID: "f1", Type: ForageBerryBush, Uses: 2, MaxUses: 2, Regrow: 600}

	assert.True(t, n.Take(1000))
	assert.Equal(t, int64(0), n.DepletedAt, "not depleted until the last use")
	assert.True(t, n.Take(1010))
	assert.Equal(t, int64(1010), n.DepletedAt)
	assert.False(t, n.Take(1020), "depleted nodes yield nothing")

	assert.False(t, n.TickRegrow(1500), "regrowth interval not yet elapsed")
	assert.True(t, n.TickRegrow(1610))
	assert.Equal(t, 2, n.Uses)
	assert.Equal(t, int64(0), n.DepletedAt)
}

func TestForageYieldItem(t *testing.T) {
	assert.Equal(t, "wild_berries", (&ForageNode{Type: ForageBerryBush}).YieldItem())
	assert.Equal(t, "water_bottle", (&ForageNode{Type: ForageSpring}).YieldItem())
}

func TestFindPathSameTile(t *testing.T) {
	m := testMap()
	fromX, fromY := m.TileCenter(2, 5)
	path := FindPath(m, fromX, fromY, fromX+10, fromY+4)
	require.Len(t, path, 1)
	assert.Equal(t, [2]float64{fromX + 10, fromY + 4}, path[0])
}

func TestFindPathRoutesThroughWallGap(t *testing.T) {
	m := testMap()
	fromX, fromY := m.TileCenter(2, 5)
	toX, toY := m.TileCenter(13, 5)

	path := FindPath(m, fromX, fromY, toX, toY)
	require.NotEmpty(t, path)
	assert.Equal(t, [2]float64{toX, toY}, path[len(path)-1], "last waypoint is the exact destination")

	throughGap := false
	for _, wp := range path {
		tx, ty := int(wp[0])/m.TileSize, int(wp[1])/m.TileSize
		assert.False(t, m.IsBlocked(tx, ty), "waypoint (%d,%d) must be walkable", tx, ty)
		if tx == 10 && ty == 7 {
			throughGap = true
		}
	}
	assert.True(t, throughGap, "the only opening in the wall is at (10,7)")
}

func TestFindPathBlockedDestination(t *testing.T) {
	m := testMap()
	fromX, fromY := m.TileCenter(2, 5)
	toX, toY := m.TileCenter(3, 11) // shop interior
	assert.Nil(t, FindPath(m, fromX, fromY, toX, toY))
}

func TestResidentRowRoundTrip(t *testing.T) {
	r := NewResident("r1", "OC-0000007", "Ada", TypeAgent)
	r.X, r.Y = 123.5, 456.25
	r.Facing = 270
	r.Building = "shop"
	r.Wallet = 42
	r.WebhookURL = "https://example.com/hook"
	r.Bio = "keeps bees"
	r.Needs = Needs{Hunger: 80, Thirst: 70, Energy: 60, Bladder: 10, Health: 90, Social: 50}
	r.AddOffense(OffenseLoitering)
	r.PrisonUntil = 9000
	r.LastUBIWS = 3600
	r.ReferralCode = "abc12345"
	r.Employment = &Employment{JobID: "shopkeeper", OnShift: true, ShiftSecs: 120}
	r.Inv = []*ItemStack{
		{ID: "i1", Type: "bread", Quantity: 3, Durability: -1},
		{ID: "i2", Type: "sleeping_bag", Quantity: 1, Durability: 17},
	}

	row := r.Row()
	var inv []persist.InventoryRow
	inv = append(inv, r.InventoryRows()...)

	s := NewState(testMap())
	got, err := s.AddResidentFromRow(row, inv)
	require.NoError(t, err)

	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.PassportNo, got.PassportNo)
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.Type, got.Type)
	assert.Equal(t, r.Status, got.Status)
	assert.Equal(t, r.X, got.X)
	assert.Equal(t, r.Y, got.Y)
	assert.Equal(t, r.Facing, got.Facing)
	assert.Equal(t, r.Building, got.Building)
	assert.Equal(t, r.Wallet, got.Wallet)
	assert.Equal(t, r.WebhookURL, got.WebhookURL)
	assert.Equal(t, r.Bio, got.Bio)
	assert.Equal(t, r.Needs, got.Needs)
	assert.Equal(t, []string{OffenseLoitering}, got.Offenses)
	assert.Equal(t, r.PrisonUntil, got.PrisonUntil)
	assert.Equal(t, r.LastUBIWS, got.LastUBIWS)
	assert.Equal(t, r.ReferralCode, got.ReferralCode)
	require.NotNil(t, got.Employment)
	assert.Equal(t, *r.Employment, *got.Employment)
	require.Len(t, got.Inv, 2)
	assert.Equal(t, *r.Inv[0], *got.Inv[0])
	assert.Equal(t, *r.Inv[1], *got.Inv[1])
	assert.NotNil(t, got.SeenRequests, "runtime maps must be initialised on load")
}

func TestNewResidentDefaults(t *testing.T) {
	r := NewResident("r1", "OC-0000001", "Ada", TypeHuman)
	assert.Equal(t, StatusAlive, r.Status)
	assert.Equal(t, TypeHuman, r.Type)
	assert.Equal(t, StartingGrant, r.Wallet)
	assert.Equal(t, Needs{Hunger: 100, Thirst: 100, Energy: 100, Bladder: 0, Health: 100, Social: 100}, r.Needs)
	assert.True(t, r.Dirty)
	assert.NotNil(t, r.RecentSpeech)
	assert.NotNil(t, r.AwaitingReply)
	assert.NotNil(t, r.SeenRequests)
	assert.NotNil(t, r.PainCooldowns)
}

func TestImprisoned(t *testing.T) {
	r := NewResident("r1", "OC-0000001", "Ada", TypeAgent)
	assert.False(t, r.Imprisoned(100))
	r.PrisonUntil = 200
	assert.True(t, r.Imprisoned(100))
	assert.False(t, r.Imprisoned(200), "release is exact at the sentence boundary")
}

func TestOffenseHelpers(t *testing.T) {
	r := NewResident("r1", "OC-0000001", "Ada", TypeAgent)
	r.AddOffense(OffenseLoitering)
	r.AddOffense(OffenseLoitering)
	assert.Equal(t, []string{OffenseLoitering}, r.Offenses, "offense tags are deduplicated")
	assert.True(t, r.HasOffense(OffenseLoitering))

	r.ClearOffense(OffenseLoitering)
	assert.False(t, r.HasOffense(OffenseLoitering))
}

func TestInventoryHelpers(t *testing.T) {
	r := NewResident("r1", "OC-0000001", "Ada", TypeAgent)
	r.Inv = []*ItemStack{
		{ID: "i1", Type: "bread", Quantity: 2, Durability: -1},
		{ID: "i2", Type: "water_bottle", Quantity: 1, Durability: -1},
	}

	assert.Same(t, r.Inv[0], r.Item("i1"))
	assert.Same(t, r.Inv[1], r.ItemByType("water_bottle"))
	assert.Nil(t, r.Item("nope"))

	r.RemoveItem("i1")
	require.Len(t, r.Inv, 1)
	assert.Equal(t, "i2", r.Inv[0].ID)
}

func TestNeedsClamp(t *testing.T) {
	n := Needs{Hunger: -5, Thirst: 120, Energy: 50, Bladder: 101, Health: -0.01, Social: 100}
	n.Clamp()
	assert.Equal(t, Needs{Hunger: 0, Thirst: 100, Energy: 50, Bladder: 100, Health: 0, Social: 100}, n)
}
