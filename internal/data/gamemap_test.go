package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMap builds a 12x12 map with a vertical wall at x=6 (gap at y=6) and a
// 3x3 building in the north-east corner.
func testMap(t *testing.T) *GameMap {
	t.Helper()
	m := &GameMap{Width: 12, Height: 12, TileSize: 32}
	m.Spawn.X, m.Spawn.Y = 1, 1
	m.Ground = make([][]int, m.Height)
	m.Obstacles = make([][]int, m.Height)
	for y := 0; y < m.Height; y++ {
		m.Ground[y] = make([]int, m.Width)
		m.Obstacles[y] = make([]int, m.Width)
	}
	for y := 0; y < m.Height; y++ {
		if y != 6 {
			m.Obstacles[y][6] = 1
		}
	}
	m.Buildings = []*Building{{
		ID: "shop", Name: "Shop", X: 8, Y: 0, W: 3, H: 3,
		Doors: []Door{{X: 9, Y: 2, Facing: "south"}},
		Zones: []Zone{{X: 8, Y: 0, W: 3, H: 2, Actions: []string{"buy"}}},
	}}
	require.NoError(t, m.validate())
	return m
}

func TestIsBlocked(t *testing.T) {
	m := testMap(t)
	assert.False(t, m.IsBlocked(1, 1))
	assert.True(t, m.IsBlocked(6, 0))
	assert.False(t, m.IsBlocked(6, 6)) // the gap
	assert.True(t, m.IsBlocked(-1, 0), "out of bounds is blocked")
	assert.True(t, m.IsBlocked(0, 12), "out of bounds is blocked")
}

func TestIsPositionBlockedHitbox(t *testing.T) {
	m := testMap(t)
	// Centre of tile (5,5) is clear...
	assert.False(t, m.IsPositionBlocked(5*32+16, 5*32+16, 11))
	// ...but a hitbox overlapping the wall column is blocked.
	assert.True(t, m.IsPositionBlocked(6*32-4, 5*32+16, 11))
}

func TestLineOfSight(t *testing.T) {
	m := testMap(t)
	x1, y1 := m.TileCenter(2, 2)
	x2, y2 := m.TileCenter(10, 7)
	assert.False(t, m.HasLineOfSight(x1, y1, x2, y2), "wall blocks the ray")

	// Through the gap at y=6 the ray passes.
	gx1, gy1 := m.TileCenter(4, 6)
	gx2, gy2 := m.TileCenter(9, 6)
	assert.True(t, m.HasLineOfSight(gx1, gy1, gx2, gy2))

	// Adjacent positions always see each other.
	assert.True(t, m.HasLineOfSight(x1, y1, x1+10, y1))
}

func TestCountWallsBetween(t *testing.T) {
	m := testMap(t)
	x1, y1 := m.TileCenter(2, 2)
	x2, y2 := m.TileCenter(10, 2)
	assert.Equal(t, 1, m.CountWallsBetween(x1, y1, x2, y2), "one contiguous run = one wall")

	gx1, gy1 := m.TileCenter(4, 6)
	gx2, gy2 := m.TileCenter(9, 6)
	assert.Equal(t, 0, m.CountWallsBetween(gx1, gy1, gx2, gy2))
}

func TestBuildingQueries(t *testing.T) {
	m := testMap(t)
	px, py := m.TileCenter(9, 1)
	b := m.BuildingAt(px, py)
	require.NotNil(t, b)
	assert.Equal(t, "shop", b.ID)
	assert.Nil(t, m.BuildingAt(10, 300))

	assert.Equal(t, []string{"buy"}, b.ZoneActionsAt(9, 1))
	assert.Empty(t, b.ZoneActionsAt(9, 2), "door row has no zone")

	// Standing just south of the door finds it.
	dx, dy := m.TileCenter(9, 3)
	fb, fd := m.DoorNear(dx, dy, 2*32)
	require.NotNil(t, fb)
	assert.Equal(t, "shop", fb.ID)
	ex, ey := m.DoorExit(fd)
	assert.Equal(t, 9, int(ex)/32)
	assert.Equal(t, 3, int(ey)/32)
}

func TestLoadGameMapYAML(t *testing.T) {
	doc := `
width: 2
height: 2
tile_size: 32
spawn: {x: 0, y: 0}
ground:
  - [0, 0]
  - [0, 0]
obstacles:
  - [0, 1]
  - [0, 0]
forage:
  - {x: 1, y: 1, type: berry_bush, max_uses: 3, regrow: 1800}
`
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := LoadGameMap(path)
	require.NoError(t, err)
	assert.True(t, m.IsBlocked(1, 0))
	assert.False(t, m.IsBlocked(0, 1))
	require.Len(t, m.Forage, 1)
	assert.Equal(t, "berry_bush", m.Forage[0].Type)
}

func TestLoadGameMapRejectsBadLayers(t *testing.T) {
	doc := `
width: 2
height: 2
tile_size: 32
obstacles:
  - [0, 0]
`
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	_, err := LoadGameMap(path)
	assert.Error(t, err)
}
