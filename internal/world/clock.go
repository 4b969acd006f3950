package world

import "time"

// TimeScale converts real time to world time: 1 real second = 1 game-minute.
const TimeScale = 60

// StartHour is the in-world hour at which a fresh world begins.
const StartHour = 8

// Clock tracks wall-clock elapsed and scaled world time. World-seconds are
// integer; the fractional remainder is carried between ticks.
type Clock struct {
	WallElapsed time.Duration
	WorldSecs   int64
	worldFrac   float64

	// Timers advancing in world-time.
	TrainTimer   int64 // world-seconds until the next train arrival
	RestockTimer int64 // world-seconds until the next shop restock

	// LastSave advances in real time.
	LastSave time.Time
}

// Advance moves the clock by one real-time step and returns the number of
// whole world-seconds that elapsed.
func (c *Clock) Advance(dt time.Duration) int64 {
	c.WallElapsed += dt
	c.worldFrac += dt.Seconds() * TimeScale
	whole := int64(c.worldFrac)
	c.worldFrac -= float64(whole)
	c.WorldSecs += whole

	c.TrainTimer -= whole
	c.RestockTimer -= whole
	return whole
}

// HourOfDay returns the in-world hour (0-23) with the configured start hour.
func (c *Clock) HourOfDay() float64 {
	secs := float64(StartHour*3600 + c.WorldSecs%86400)
	hour := secs / 3600
	for hour >= 24 {
		hour -= 24
	}
	return hour
}
