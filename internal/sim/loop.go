package sim

import (
	"context"
	"time"
)

// MaxCatchUpSteps bounds how many fixed steps a single frame may run after a
// stall. Time beyond it is dropped.
const MaxCatchUpSteps = TickRate / 2

// Accumulator converts elapsed wall-clock time into whole fixed steps.
type Accumulator struct {
	step  time.Duration
	acc   time.Duration
	last  time.Time
	begun bool
}

// NewAccumulator returns an accumulator for the given fixed step.
func NewAccumulator(step time.Duration) *Accumulator {
	if step <= 0 {
		step = TickDuration
	}
	return &Accumulator{step: step}
}

// Advance records now and returns how many fixed steps are due (0..n).
func (a *Accumulator) Advance(now time.Time) int {
	if !a.begun {
		a.begun = true
		a.last = now
		return 0
	}
	elapsed := now.Sub(a.last)
	a.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	a.acc += elapsed
	n := int(a.acc / a.step)
	a.acc -= time.Duration(n) * a.step
	if n > MaxCatchUpSteps {
		n = MaxCatchUpSteps
		a.acc = 0
	}
	return n
}

// Overstep is the fraction of a step accumulated but not yet simulated.
func (a *Accumulator) Overstep() float64 {
	return float64(a.acc) / float64(a.step)
}

// FrameFunc runs one frame with the number of fixed steps due.
type FrameFunc func(now time.Time, steps int)

// RunLoop calls frame every frameInterval on the calling goroutine until ctx
// is cancelled, passing the fixed steps due since the previous frame.
func RunLoop(ctx context.Context, frameInterval time.Duration, frame FrameFunc) error {
	if frameInterval <= 0 {
		frameInterval = TickDuration
	}
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	acc := NewAccumulator(TickDuration)
	acc.Advance(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			frame(now, acc.Advance(now))
		}
	}
}
