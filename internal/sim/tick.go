package sim

import (
	"errors"
	"fmt"
)

// ErrNegativeTick is returned when a tick computation goes below zero.
var ErrNegativeTick = errors.New("negative tick")

// Tick is one quantum of simulation time (1/64 s).
type Tick int32

// Sub returns t - o as a signed tick distance.
func (t Tick) Sub(o Tick) int32 { return int32(t - o) }

// Add returns t advanced by n ticks.
func (t Tick) Add(n int32) Tick { return t + Tick(n) }

// TickClock is the fixed-step tick counter. While a rollback is in progress
// it additionally tracks the tick being replayed.
type TickClock struct {
	tick       Tick
	rollback   Tick
	inRollback bool
}

// NewTickClock starts a clock at the given tick.
func NewTickClock(start Tick) *TickClock {
	return &TickClock{tick: start}
}

// Tick returns the wall-clock tick.
func (c *TickClock) Tick() Tick { return c.tick }

// RollbackTick returns the replayed tick during rollback, Tick() otherwise.
func (c *TickClock) RollbackTick() Tick {
	if c.inRollback {
		return c.rollback
	}
	return c.tick
}

// InRollback reports whether a rollback replay is running.
func (c *TickClock) InRollback() bool { return c.inRollback }

// Advance moves the wall-clock tick forward by one step.
func (c *TickClock) Advance() Tick {
	c.tick++
	return c.tick
}

// Reset jumps the clock to t. Used when the client resynchronises.
func (c *TickClock) Reset(t Tick) error {
	if t < 0 {
		return fmt.Errorf("reset clock to %d: %w", t, ErrNegativeTick)
	}
	c.tick = t
	c.inRollback = false
	return nil
}

// BeginRollback enters rollback mode starting at the restored tick t.
func (c *TickClock) BeginRollback(t Tick) {
	c.inRollback = true
	c.rollback = t
}

// SetRollbackTick updates the tick being replayed.
func (c *TickClock) SetRollbackTick(t Tick) { c.rollback = t }

// EndRollback leaves rollback mode.
func (c *TickClock) EndRollback() {
	c.inRollback = false
	c.rollback = 0
}
