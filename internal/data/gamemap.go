// Package data loads the static artifacts the simulation consumes: the tile
// map produced by the map generator, the item table, and the job table. All
// artifacts are YAML documents read once at boot and immutable afterwards.
package data

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Door is a building entrance tile with the cardinal direction it faces.
type Door struct {
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Facing string `yaml:"facing"` // north, south, east, west
}

// Zone is a rectangular interaction area inside a building.
type Zone struct {
	X       int      `yaml:"x"`
	Y       int      `yaml:"y"`
	W       int      `yaml:"w"`
	H       int      `yaml:"h"`
	Actions []string `yaml:"actions"`
}

// Building is one placed structure: a tile rect, its doors, and the
// interaction zones drawn inside it.
type Building struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	X     int    `yaml:"x"`
	Y     int    `yaml:"y"`
	W     int    `yaml:"w"`
	H     int    `yaml:"h"`
	Doors []Door `yaml:"doors"`
	Zones []Zone `yaml:"zones"`
}

// ForageSpawn is a forage node position from the map artifact.
type ForageSpawn struct {
	X       int    `yaml:"x"` // tile coords
	Y       int    `yaml:"y"`
	Type    string `yaml:"type"` // berry_bush, spring
	MaxUses int    `yaml:"max_uses"`
	Regrow  int64  `yaml:"regrow"` // world-seconds
}

// GameMap is the finished map artifact. Obstacle and ground layers are
// row-major; out-of-bounds tiles count as blocked.
type GameMap struct {
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	TileSize int `yaml:"tile_size"`

	Spawn struct {
		X int `yaml:"x"`
		Y int `yaml:"y"`
	} `yaml:"spawn"`

	Ground    [][]int       `yaml:"ground"`
	Obstacles [][]int       `yaml:"obstacles"`
	Buildings []*Building   `yaml:"buildings"`
	Forage    []ForageSpawn `yaml:"forage"`
}

// LoadGameMap reads and validates a map artifact.
func LoadGameMap(path string) (*GameMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map: %w", err)
	}
	var m GameMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return &m, nil
}

func (m *GameMap) validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("bad dimensions %dx%d", m.Width, m.Height)
	}
	if m.TileSize <= 0 {
		return fmt.Errorf("bad tile size %d", m.TileSize)
	}
	if len(m.Obstacles) != m.Height {
		return fmt.Errorf("obstacle layer has %d rows, want %d", len(m.Obstacles), m.Height)
	}
	for y, row := range m.Obstacles {
		if len(row) != m.Width {
			return fmt.Errorf("obstacle row %d has %d cols, want %d", y, len(row), m.Width)
		}
	}
	if m.IsBlocked(m.Spawn.X, m.Spawn.Y) {
		return fmt.Errorf("spawn point (%d,%d) is blocked", m.Spawn.X, m.Spawn.Y)
	}
	return nil
}

// IsBlocked reports whether the tile is an obstacle. Out of bounds is blocked.
func (m *GameMap) IsBlocked(tx, ty int) bool {
	if tx < 0 || ty < 0 || tx >= m.Width || ty >= m.Height {
		return true
	}
	return m.Obstacles[ty][tx] != 0
}

// IsPositionBlocked checks all tiles overlapped by a square hitbox centred
// at the pixel position with the given half-width.
func (m *GameMap) IsPositionBlocked(px, py, half float64) bool {
	ts := float64(m.TileSize)
	minTX := int(math.Floor((px - half) / ts))
	maxTX := int(math.Floor((px + half) / ts))
	minTY := int(math.Floor((py - half) / ts))
	maxTY := int(math.Floor((py + half) / ts))
	for ty := minTY; ty <= maxTY; ty++ {
		for tx := minTX; tx <= maxTX; tx++ {
			if m.IsBlocked(tx, ty) {
				return true
			}
		}
	}
	return false
}

// HasLineOfSight steps a ray in half-tile increments between two pixel
// positions and reports whether no obstacle tile intervenes.
func (m *GameMap) HasLineOfSight(x1, y1, x2, y2 float64) bool {
	return m.walkRay(x1, y1, x2, y2, func(blocked bool) bool {
		return blocked // stop at first wall
	})
}

// CountWallsBetween counts contiguous blocked runs along the ray: a wall of
// any thickness counts once.
func (m *GameMap) CountWallsBetween(x1, y1, x2, y2 float64) int {
	walls := 0
	inWall := false
	m.walkRay(x1, y1, x2, y2, func(blocked bool) bool {
		if blocked && !inWall {
			walls++
		}
		inWall = blocked
		return false
	})
	return walls
}

// walkRay samples the segment every half tile, reporting each sample's
// blocked state to visit. Returns false iff visit ever returned true.
func (m *GameMap) walkRay(x1, y1, x2, y2 float64, visit func(blocked bool) bool) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist := math.Hypot(dx, dy)
	step := float64(m.TileSize) / 2
	if dist < step {
		return true
	}
	steps := int(dist / step)
	for i := 1; i <= steps; i++ {
		t := float64(i) * step / dist
		tx := int((x1 + dx*t) / float64(m.TileSize))
		ty := int((y1 + dy*t) / float64(m.TileSize))
		if visit(m.IsBlocked(tx, ty)) {
			return false
		}
	}
	return true
}

// BuildingByID returns a building, or nil.
func (m *GameMap) BuildingByID(id string) *Building {
	for _, b := range m.Buildings {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// BuildingAt returns the building whose tile rect contains the pixel
// position, or nil.
func (m *GameMap) BuildingAt(px, py float64) *Building {
	tx := int(px) / m.TileSize
	ty := int(py) / m.TileSize
	for _, b := range m.Buildings {
		if tx >= b.X && tx < b.X+b.W && ty >= b.Y && ty < b.Y+b.H {
			return b
		}
	}
	return nil
}

// Contains reports whether the tile lies inside the building rect.
func (b *Building) Contains(tx, ty int) bool {
	return tx >= b.X && tx < b.X+b.W && ty >= b.Y && ty < b.Y+b.H
}

// ZoneActionsAt collects the interaction-zone actions covering a tile.
func (b *Building) ZoneActionsAt(tx, ty int) []string {
	var actions []string
	for i := range b.Zones {
		z := &b.Zones[i]
		if tx >= z.X && tx < z.X+z.W && ty >= z.Y && ty < z.Y+z.H {
			actions = append(actions, z.Actions...)
		}
	}
	return actions
}

// DoorNear returns the building and door within rangePx of the pixel
// position, or nils. Distance is measured to the door tile centre.
func (m *GameMap) DoorNear(px, py, rangePx float64) (*Building, *Door) {
	ts := float64(m.TileSize)
	var bestB *Building
	var bestD *Door
	best := rangePx
	for _, b := range m.Buildings {
		for i := range b.Doors {
			d := &b.Doors[i]
			cx := (float64(d.X) + 0.5) * ts
			cy := (float64(d.Y) + 0.5) * ts
			dist := math.Hypot(px-cx, py-cy)
			if dist <= best {
				best = dist
				bestB = b
				bestD = d
			}
		}
	}
	return bestB, bestD
}

// DoorExit returns the pixel position of the walkable tile immediately
// outside a door, following the door's facing.
func (m *GameMap) DoorExit(d *Door) (float64, float64) {
	tx, ty := d.X, d.Y
	switch d.Facing {
	case "north":
		ty--
	case "south":
		ty++
	case "east":
		tx++
	case "west":
		tx--
	}
	ts := float64(m.TileSize)
	return (float64(tx) + 0.5) * ts, (float64(ty) + 0.5) * ts
}

// TileCenter converts tile coords to the pixel centre of that tile.
func (m *GameMap) TileCenter(tx, ty int) (float64, float64) {
	ts := float64(m.TileSize)
	return (float64(tx) + 0.5) * ts, (float64(ty) + 0.5) * ts
}

// PixelWidth and PixelHeight are the map extents in pixels.
func (m *GameMap) PixelWidth() float64  { return float64(m.Width * m.TileSize) }
func (m *GameMap) PixelHeight() float64 { return float64(m.Height * m.TileSize) }
