package world

// Forage node types.
const (
	ForageBerryBush = "berry_bush"
	ForageSpring    = "spring"
)

// ForageNode is a renewable resource point. Invariant: Uses ∈ [0, MaxUses]
// and DepletedAt is non-zero iff Uses == 0.
type ForageNode struct {
	ID         string
	X, Y       float64 // pixel centre
	Type       string
	Uses       int
	MaxUses    int
	DepletedAt int64 // world-seconds, 0 = not depleted
	Regrow     int64 // world-seconds to full regrowth
}

// Take consumes one use at worldSecs. Returns false when already depleted.
func (n *ForageNode) Take(worldSecs int64) bool {
	if n.Uses <= 0 {
		return false
	}
	n.Uses--
	if n.Uses == 0 {
		n.DepletedAt = worldSecs
	}
	return true
}

// TickRegrow restores a depleted node once its regrowth interval has passed.
func (n *ForageNode) TickRegrow(worldSecs int64) bool {
	if n.DepletedAt == 0 || worldSecs < n.DepletedAt+n.Regrow {
		return false
	}
	n.Uses = n.MaxUses
	n.DepletedAt = 0
	return true
}

// YieldItem maps a node type to the item type it produces.
func (n *ForageNode) YieldItem() string {
	switch n.Type {
	case ForageSpring:
		return "water_bottle"
	default:
		return "wild_berries"
	}
}
