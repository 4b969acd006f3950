package world

import (
	"container/heap"

	"github.com/opencity/server/internal/data"
)

// FindPath runs A* over the walkable-tile graph from a source to a
// destination in pixel space. The result is an ordered pixel waypoint list
// whose last entry is the exact destination, or nil when no route exists.
// 4-connectivity; Manhattan heuristic scaled by tile size; ties broken by
// lower f-score then later insertion.
func FindPath(m *data.GameMap, fromX, fromY, toX, toY float64) [][2]float64 {
	ts := m.TileSize
	sx, sy := int(fromX)/ts, int(fromY)/ts
	gx, gy := int(toX)/ts, int(toY)/ts

	if m.IsBlocked(gx, gy) || m.IsBlocked(sx, sy) {
		return nil
	}
	if sx == gx && sy == gy {
		return [][2]float64{{toX, toY}}
	}

	start := pathNode{sx, sy}
	goal := pathNode{gx, gy}

	gScore := map[pathNode]int{start: 0}
	cameFrom := map[pathNode]pathNode{}
	closed := map[pathNode]bool{}

	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, &pathEntry{x: sx, y: sy, f: manhattan(sx, sy, gx, gy) * ts})

	var dirs = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*pathEntry)
		n := pathNode{cur.x, cur.y}
		if closed[n] {
			continue
		}
		closed[n] = true
		if n == goal {
			return reconstruct(m, cameFrom, goal, start, toX, toY)
		}
		for _, d := range dirs {
			nx, ny := n.x+d[0], n.y+d[1]
			if m.IsBlocked(nx, ny) {
				continue
			}
			nb := pathNode{nx, ny}
			if closed[nb] {
				continue
			}
			tentative := gScore[n] + ts
			if old, seen := gScore[nb]; seen && tentative >= old {
				continue
			}
			gScore[nb] = tentative
			cameFrom[nb] = n
			heap.Push(open, &pathEntry{
				x: nx, y: ny,
				f: tentative + manhattan(nx, ny, gx, gy)*ts,
			})
		}
	}
	return nil
}

func reconstruct(m *data.GameMap, cameFrom map[pathNode]pathNode, goal, start pathNode, toX, toY float64) [][2]float64 {
	var tiles []pathNode
	for n := goal; n != start; n = cameFrom[n] {
		tiles = append(tiles, n)
	}
	// Reverse into waypoints, tile centres; final waypoint is the exact
	// requested destination.
	out := make([][2]float64, 0, len(tiles))
	for i := len(tiles) - 1; i > 0; i-- {
		cx, cy := m.TileCenter(tiles[i].x, tiles[i].y)
		out = append(out, [2]float64{cx, cy})
	}
	out = append(out, [2]float64{toX, toY})
	return out
}

type pathNode struct{ x, y int }

func manhattan(x1, y1, x2, y2 int) int {
	dx := x1 - x2
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y2
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// pathEntry is an open-set entry. seq breaks f ties in favour of the most
// recently inserted node, which keeps A* expanding along the current front.
type pathEntry struct {
	x, y int
	f    int
	seq  int
}

type pathQueue struct {
	items   []*pathEntry
	counter int
}

func (q *pathQueue) Len() int { return len(q.items) }

func (q *pathQueue) Less(i, j int) bool {
	if q.items[i].f != q.items[j].f {
		return q.items[i].f < q.items[j].f
	}
	return q.items[i].seq > q.items[j].seq
}

func (q *pathQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *pathQueue) Push(x any) {
	e := x.(*pathEntry)
	q.counter++
	e.seq = q.counter
	q.items = append(q.items, e)
}

func (q *pathQueue) Pop() any {
	old := q.items
	n := len(old)
	e := old[n-1]
	q.items = old[:n-1]
	return e
}
