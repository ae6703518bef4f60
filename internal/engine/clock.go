package engine

import "github.com/repcrec/repcrec/internal/types"

// Clock supplies the simulator's logical time. It is injected into the
// Coordinator rather than read from a package-level global, so tests can
// drive specific timestamps without any shared mutable state.
type Clock interface {
	Now() types.Time
}

// TickClock is a Clock the driver owns and advances by a fixed amount
// after every processed command.
type TickClock struct {
	now  types.Time
	tick types.Time
}

// NewTickClock returns a clock starting at time zero that advances by tick
// each time Advance is called.
func NewTickClock(tick types.Time) *TickClock {
	return &TickClock{now: 0, tick: tick}
}

func (c *TickClock) Now() types.Time { return c.now }

// Advance moves the clock forward by one tick.
func (c *TickClock) Advance() { c.now += c.tick }
