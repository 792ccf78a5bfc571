package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteConflict means a different input was already recorded for the tick.
	ErrWriteConflict = errors.New("input already recorded for tick")
	// ErrInputEvicted means the tick is older than the buffer window.
	ErrInputEvicted = errors.New("input tick outside buffer window")
)

type inputSlot struct {
	tick  Tick
	state ActionState
	valid bool
}

// InputBuffer is a write-once ring of action states keyed by tick.
type InputBuffer struct {
	slots  []inputSlot
	latest Tick
	any    bool
}

// NewInputBuffer creates a buffer holding the last capacity ticks.
func NewInputBuffer(capacity int) *InputBuffer {
	if capacity <= 0 {
		capacity = InputHistoryTicks
	}
	return &InputBuffer{slots: make([]inputSlot, capacity)}
}

func (b *InputBuffer) idx(t Tick) int {
	n := len(b.slots)
	return ((int(t) % n) + n) % n
}

// Insert records state for tick t. Re-inserting the same state is a no-op;
// a different state for an already written tick fails with ErrWriteConflict.
func (b *InputBuffer) Insert(t Tick, state ActionState) error {
	if t < 0 {
		return fmt.Errorf("insert input at %d: %w", t, ErrNegativeTick)
	}
	if b.any && b.latest.Sub(t) >= int32(len(b.slots)) {
		return fmt.Errorf("insert input at %d (latest %d): %w", t, b.latest, ErrInputEvicted)
	}
	slot := &b.slots[b.idx(t)]
	if slot.valid && slot.tick == t {
		if slot.state == state {
			return nil
		}
		return fmt.Errorf("tick %d has %v, refusing %v: %w", t, slot.state.Pressed, state.Pressed, ErrWriteConflict)
	}
	// the slot holds an older tick that has fallen out of the window
	*slot = inputSlot{tick: t, state: state, valid: true}
	if !b.any || t > b.latest {
		b.latest = t
		b.any = true
	}
	return nil
}

// Get returns the input recorded for exactly tick t.
func (b *InputBuffer) Get(t Tick) (ActionState, bool) {
	if t < 0 {
		return ActionState{}, false
	}
	slot := b.slots[b.idx(t)]
	if !slot.valid || slot.tick != t {
		return ActionState{}, false
	}
	return slot.state, true
}

// GetLastWithTick returns the most recent entry whose tick is <= t.
func (b *InputBuffer) GetLastWithTick(t Tick) (Tick, ActionState, bool) {
	if !b.any {
		return 0, ActionState{}, false
	}
	if t > b.latest {
		t = b.latest
	}
	for i := 0; i < len(b.slots); i++ {
		cur := t - Tick(i)
		if cur < 0 {
			break
		}
		if st, ok := b.Get(cur); ok {
			return cur, st, true
		}
	}
	return 0, ActionState{}, false
}

// Latest returns the highest tick ever written.
func (b *InputBuffer) Latest() (Tick, bool) { return b.latest, b.any }

// Range returns the entries recorded in [from, to], oldest first.
func (b *InputBuffer) Range(from, to Tick) []InputEntry {
	var out []InputEntry
	for t := from; t <= to; t++ {
		if st, ok := b.Get(t); ok {
			out = append(out, InputEntry{Tick: t, State: st})
		}
	}
	return out
}

// InputEntry is one tick's recorded input.
type InputEntry struct {
	Tick  Tick
	State ActionState
}

// AppliedInput is what the input applier actually used for a tick.
type AppliedInput struct {
	State     ActionState
	Staleness int32
	Exact     bool
}

// Resolve applies the staleness policy for tick t: the exact input, else the
// most recent prior input if it is at most MaxStaleTicks old, else the
// default action state.
func (b *InputBuffer) Resolve(t Tick) AppliedInput {
	if st, ok := b.Get(t); ok {
		return AppliedInput{State: st, Exact: true}
	}
	prev, st, ok := b.GetLastWithTick(t)
	if !ok {
		return AppliedInput{}
	}
	staleness := t.Sub(prev)
	if staleness < 0 {
		staleness = 0
	}
	if staleness > MaxStaleTicks {
		return AppliedInput{Staleness: staleness}
	}
	return AppliedInput{State: st, Staleness: staleness}
}
