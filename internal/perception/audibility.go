package perception

import (
	"math"

	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/world"
)

// Hearing tuning.
const (
	WhisperRange    = 96.0
	NormalRange     = 256.0
	ShoutRange      = 640.0
	WallAttenuation = 0.5 // range multiplier per wall on the path
)

// BaseRange returns the unobstructed hearing range for a volume.
func BaseRange(volume string) float64 {
	switch volume {
	case world.VolumeWhisper:
		return WhisperRange
	case world.VolumeShout:
		return ShoutRange
	default:
		return NormalRange
	}
}

// EffectiveRange attenuates the base range by the wall count between two
// points: one wall halves it, two quarter it.
func EffectiveRange(m *data.GameMap, x1, y1, x2, y2 float64, volume string) float64 {
	walls := m.CountWallsBetween(x1, y1, x2, y2)
	return BaseRange(volume) * math.Pow(WallAttenuation, float64(walls))
}

// CanHear reports whether a listener at (lx, ly) hears speech spoken at
// (sx, sy) with the given volume.
func CanHear(m *data.GameMap, sx, sy, lx, ly float64, volume string) bool {
	dist := math.Hypot(lx-sx, ly-sy)
	return dist <= EffectiveRange(m, sx, sy, lx, ly, volume)
}
