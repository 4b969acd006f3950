// mapgen generates the Opencity town map artifact (data/map.yaml).
//
// The layout is deterministic for a given seed: border walls, the road
// grid, every civic building with its door and interaction zones, forage
// nodes, and scattered trees on the remaining open ground.
//
// Usage:
//
//	go run ./cmd/mapgen [-seed 7] [-out data/map.yaml]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
)

const (
	mapWidth  = 48
	mapHeight = 36
	tileSize  = 32
	treeCount = 18
)

type door struct {
	X, Y   int
	Facing string
}

type zone struct {
	X, Y, W, H int
	Actions    []string
}

type building struct {
	ID, Name   string
	X, Y, W, H int
	Doors      []door
	Zones      []zone
}

type forageSpawn struct {
	X, Y    int
	Type    string
	MaxUses int
	Regrow  int
}

// The town plan. Doors sit on the footprint edge; the exit tile one step
// past the facing must stay clear of other footprints.
var buildings = []building{
	{ID: "station", Name: "Train Station", X: 2, Y: 2, W: 6, H: 4,
		Doors: []door{{4, 5, "south"}},
		Zones: []zone{{2, 2, 6, 4, nil}}},
	{ID: "shop", Name: "General Store", X: 12, Y: 4, W: 5, H: 4,
		Doors: []door{{14, 7, "south"}},
		Zones: []zone{{12, 4, 5, 4, []string{"buy"}}}},
	{ID: "bank", Name: "City Bank", X: 20, Y: 4, W: 5, H: 4,
		Doors: []door{{22, 7, "south"}},
		Zones: []zone{{20, 4, 5, 4, []string{"collect_ubi"}}}},
	{ID: "council_hall", Name: "Council Hall", X: 28, Y: 4, W: 6, H: 5,
		Doors: []door{{30, 8, "south"}},
		Zones: []zone{{28, 4, 6, 5, []string{"apply_job", "quit_job", "list_jobs",
			"write_petition", "vote_petition", "list_petitions"}}}},
	{ID: "police_station", Name: "Police Station", X: 12, Y: 14, W: 6, H: 5,
		Doors: []door{{14, 14, "north"}},
		Zones: []zone{{12, 14, 6, 5, nil}}},
	{ID: "mortuary", Name: "Mortuary", X: 22, Y: 14, W: 5, H: 4,
		Doors: []door{{24, 14, "north"}},
		Zones: []zone{{22, 14, 5, 4, nil}}},
	{ID: "public_toilet", Name: "Public Toilet", X: 30, Y: 14, W: 3, H: 3,
		Doors: []door{{30, 15, "west"}},
		Zones: []zone{{30, 14, 3, 3, []string{"use_toilet"}}}},
}

var forage = []forageSpawn{
	{5, 20, "berry_bush", 5, 600},
	{33, 26, "berry_bush", 5, 600},
	{44, 18, "berry_bush", 5, 600},
	{18, 22, "spring", 8, 300},
}

// Road grid: one vertical avenue past the station, two horizontal streets
// along the building rows.
var roadCols = []int{10}
var roadRows = []int{9, 12}

func main() {
	seed := flag.Int64("seed", 7, "tree scatter seed")
	out := flag.String("out", "data/map.yaml", "output path")
	flag.Parse()

	ground := make([][]int, mapHeight)
	obstacles := make([][]int, mapHeight)
	for y := range ground {
		ground[y] = make([]int, mapWidth)
		obstacles[y] = make([]int, mapWidth)
	}

	for _, c := range roadCols {
		for y := 1; y < mapHeight-1; y++ {
			ground[y][c] = 1
		}
	}
	for _, r := range roadRows {
		for x := 1; x < mapWidth-1; x++ {
			ground[r][x] = 1
		}
	}

	for x := 0; x < mapWidth; x++ {
		obstacles[0][x] = 1
		obstacles[mapHeight-1][x] = 1
	}
	for y := 0; y < mapHeight; y++ {
		obstacles[y][0] = 1
		obstacles[y][mapWidth-1] = 1
	}
	for _, b := range buildings {
		for y := b.Y; y < b.Y+b.H; y++ {
			for x := b.X; x < b.X+b.W; x++ {
				obstacles[y][x] = 1
			}
		}
	}

	// Trees avoid roads, door exits, forage nodes, and existing blocks.
	rng := rand.New(rand.NewSource(*seed))
	planted := 0
	for planted < treeCount {
		x := 1 + rng.Intn(mapWidth-2)
		y := 1 + rng.Intn(mapHeight-2)
		if obstacles[y][x] != 0 || ground[y][x] != 0 || nearDoor(x, y) || onForage(x, y) {
			continue
		}
		obstacles[y][x] = 1
		planted++
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprintln(w, "# Opencity town map artifact. Tile coordinates, row-major layers;")
	fmt.Fprintln(w, "# non-zero obstacle tiles block movement and sight.")
	fmt.Fprintf(w, "width: %d\n", mapWidth)
	fmt.Fprintf(w, "height: %d\n", mapHeight)
	fmt.Fprintf(w, "tile_size: %d\n", tileSize)
	fmt.Fprintln(w, "spawn:")
	fmt.Fprintln(w, "  x: 4")
	fmt.Fprintln(w, "  y: 7")
	writeLayer(w, "ground", ground)
	writeLayer(w, "obstacles", obstacles)

	fmt.Fprintln(w, "buildings:")
	for _, b := range buildings {
		fmt.Fprintf(w, "  - id: %s\n", b.ID)
		fmt.Fprintf(w, "    name: %s\n", b.Name)
		fmt.Fprintf(w, "    x: %d\n    y: %d\n    w: %d\n    h: %d\n", b.X, b.Y, b.W, b.H)
		fmt.Fprintln(w, "    doors:")
		for _, d := range b.Doors {
			fmt.Fprintf(w, "      - {x: %d, y: %d, facing: %s}\n", d.X, d.Y, d.Facing)
		}
		fmt.Fprintln(w, "    zones:")
		for _, z := range b.Zones {
			fmt.Fprintf(w, "      - {x: %d, y: %d, w: %d, h: %d, actions: [%s]}\n",
				z.X, z.Y, z.W, z.H, joinComma(z.Actions))
		}
	}
	fmt.Fprintln(w, "forage:")
	for _, n := range forage {
		fmt.Fprintf(w, "  - {x: %d, y: %d, type: %s, max_uses: %d, regrow: %d}\n",
			n.X, n.Y, n.Type, n.MaxUses, n.Regrow)
	}

	fmt.Printf("Wrote %dx%d map with %d buildings, %d forage nodes to %s\n",
		mapWidth, mapHeight, len(buildings), len(forage), *out)
}

func writeLayer(w *bufio.Writer, name string, layer [][]int) {
	fmt.Fprintf(w, "%s:\n", name)
	for _, row := range layer {
		fmt.Fprint(w, "  - [")
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, "%d", v)
		}
		fmt.Fprintln(w, "]")
	}
}

// nearDoor keeps the tile in front of every door walkable.
func nearDoor(x, y int) bool {
	for _, b := range buildings {
		for _, d := range b.Doors {
			ex, ey := d.X, d.Y
			switch d.Facing {
			case "north":
				ey--
			case "south":
				ey++
			case "west":
				ex--
			case "east":
				ex++
			}
			if x == ex && y == ey {
				return true
			}
		}
	}
	return false
}

func onForage(x, y int) bool {
	for _, n := range forage {
		if n.X == x && n.Y == y {
			return true
		}
	}
	return false
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
