package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := OpenMemory(ctx, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, RunMigrations(ctx, db))
	return db
}

func sampleResident(id, passport string) *ResidentRow {
	return &ResidentRow{
		ID:         id,
		PassportNo: passport,
		Name:       "Test Resident",
		Type:       "agent",
		Status:     "alive",
		X:          320, Y: 480, Facing: 2,
		Wallet:  120,
		Hunger:  80.5, Thirst: 61.2, Energy: 90, Bladder: 12.3,
		Health:  100, Social: 55,
		Offenses:  "[]",
		CreatedAt: time.Now().UTC(),
	}
}

func TestMigrationsFromZero(t *testing.T) {
	testDB(t)
}

func TestResidentRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewResidentRepo(db)

	row := sampleResident("r1", "OC-0000001")
	require.NoError(t, repo.Create(ctx, row))

	row.Wallet = 95
	row.Hunger = 42.1
	row.JobID = "shopkeeper"
	row.OnShift = true
	row.Offenses = `["loitering"]`
	require.NoError(t, repo.Save(ctx, row))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 95, got.Wallet)
	require.InDelta(t, 42.1, got.Hunger, 1e-9)
	require.Equal(t, "shopkeeper", got.JobID)
	require.True(t, got.OnShift)
	require.Equal(t, `["loitering"]`, got.Offenses)

	active, err := repo.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadActiveSkipsProcessed(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewResidentRepo(db)

	alive := sampleResident("r1", "OC-0000001")
	require.NoError(t, repo.Create(ctx, alive))

	dead := sampleResident("r2", "OC-0000002")
	dead.Status = "deceased"
	require.NoError(t, repo.Create(ctx, dead))

	gone := sampleResident("r3", "OC-0000003")
	gone.Status = "processed"
	require.NoError(t, repo.Create(ctx, gone))

	active, err := repo.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestInventoryReplace(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	require.NoError(t, NewResidentRepo(db).Create(ctx, sampleResident("r1", "OC-0000001")))

	inv := NewInventoryRepo(db)
	require.NoError(t, inv.Replace(ctx, "r1", []InventoryRow{
		{ID: "s1", ResidentID: "r1", ItemType: "bread", Quantity: 2, Durability: -1},
		{ID: "s2", ResidentID: "r1", ItemType: "sleeping_bag", Quantity: 1, Durability: 17},
	}))
	require.NoError(t, inv.Replace(ctx, "r1", []InventoryRow{
		{ID: "s2", ResidentID: "r1", ItemType: "sleeping_bag", Quantity: 1, Durability: 16},
	}))

	all, err := inv.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all["r1"], 1)
	require.Equal(t, 16, all["r1"][0].Durability)
}

func TestEventOrdering(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewEventRepo(db)

	first, err := repo.Append(ctx, &EventRow{TS: time.Now().UTC(), Type: "arrival", ResidentID: "r1"})
	require.NoError(t, err)

	batch := []*EventRow{
		{ID: first + 1, TS: time.Now().UTC(), Type: "purchase", ResidentID: "r1"},
		{ID: first + 2, TS: time.Now().UTC(), Type: "speech", ResidentID: "r1"},
	}
	require.NoError(t, repo.AppendBatch(ctx, batch))

	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "speech", recent[0].Type)
	require.Equal(t, first+2, recent[0].ID)

	last, err := repo.LastID(ctx)
	require.NoError(t, err)
	require.Equal(t, first+2, last)
}

func TestWorldStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewWorldRepo(db)

	row, err := repo.Load(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, row.WorldSecs)

	row.WorldSecs = 12345
	row.TrainTimer = 600
	row.RestockTimer = 7200
	row.PassportCtr = 42
	require.NoError(t, repo.Save(ctx, row))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 12345, got.WorldSecs)
	require.EqualValues(t, 42, got.PassportCtr)
}

func TestShopStockRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewWorldRepo(db)

	require.NoError(t, repo.SaveShopStock(ctx, map[string]int{"bread": 18, "apple": 30}))
	require.NoError(t, repo.SaveShopStock(ctx, map[string]int{"bread": 17, "apple": 30}))

	stock, err := repo.LoadShopStock(ctx)
	require.NoError(t, err)
	require.Equal(t, 17, stock["bread"])
}

func TestPetitionVoteOnce(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewPetitionRepo(db)

	require.NoError(t, repo.Create(ctx, &PetitionRow{
		ID: "p1", AuthorID: "r1", Title: "Longer shop hours",
		CreatedWS: 100, ExpiresWS: 86500,
	}))

	changed, err := repo.Vote(ctx, "p1", "r2", true)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.Vote(ctx, "p1", "r2", false)
	require.NoError(t, err)
	require.False(t, changed)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Up)
	require.Equal(t, 0, got.Down)
}

func TestPetitionExpiry(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewPetitionRepo(db)

	require.NoError(t, repo.Create(ctx, &PetitionRow{
		ID: "p1", AuthorID: "r1", Title: "Old", CreatedWS: 0, ExpiresWS: 100,
	}))
	require.NoError(t, repo.Create(ctx, &PetitionRow{
		ID: "p2", AuthorID: "r1", Title: "New", CreatedWS: 0, ExpiresWS: 9999,
	}))

	ids, err := repo.CloseExpired(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids)

	open, err := repo.OpenPetitions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "p2", open[0].ID)
}

func TestReferralLifecycle(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	residents := NewResidentRepo(db)
	repo := NewReferralRepo(db)

	referrer := sampleResident("r1", "OC-0000001")
	require.NoError(t, residents.Create(ctx, referrer))
	require.NoError(t, residents.SetReferralCode(ctx, "r1", "ref-abc"))

	id, err := repo.ReferrerByCode(ctx, "ref-abc")
	require.NoError(t, err)
	require.Equal(t, "r1", id)

	_, err = repo.ReferrerByCode(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Record(ctx, "ref-abc", "r1", "r2"))
	require.NoError(t, repo.Record(ctx, "ref-abc", "r1", "r2")) // idempotent

	total, claimable, err := repo.Stats(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, 0, claimable)

	require.NoError(t, repo.Mature(ctx, "r2"))
	_, claimable, err = repo.Stats(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 1, claimable)

	n, err := repo.ClaimMatured(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = repo.ClaimMatured(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestGitHubClaimOncePerLogin(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewReferralRepo(db)

	ok, err := repo.RecordGitHubClaim(ctx, "r1", "octocat")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.RecordGitHubClaim(ctx, "r2", "octocat")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFeedbackAnswerOnce(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewFeedbackRepo(db)

	require.NoError(t, repo.Issue(ctx, "tok-1", "r1", "reflection"))

	ok, err := repo.Answer(ctx, "tok-1", "I survived my first day.")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Answer(ctx, "tok-1", "again")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.Answer(ctx, "unknown", "hi")
	require.NoError(t, err)
	require.False(t, ok)

	recent, err := repo.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "I survived my first day.", *recent[0].Response)
}
