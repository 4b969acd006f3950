package system

import "time"

// Phase defines execution ordering within a single simulation tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain command queues
	PhaseUpdate                  // 1: needs, timers, economy, law
	PhasePerception              // 2: build perception packets
	PhaseOutput                  // 3: flush session queues + webhooks
	PhasePersist                 // 4: batched dirty-row save
	PhaseCleanup                 // 5: remove departed entities
)

// System is run by the scheduler each tick, in phase order.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Func adapts a plain function to a System.
type Func struct {
	P  Phase
	Fn func(dt time.Duration)
}

func (f Func) Phase() Phase            { return f.P }
func (f Func) Update(dt time.Duration) { f.Fn(dt) }
