package sim

import "fmt"

// Role says which side is stepping the world.
type Role uint8

const (
	RoleServer Role = iota + 1
	RoleClient
)

// SimContext is passed to every deterministic system for one tick.
type SimContext struct {
	Tick       Tick
	Role       Role
	InRollback bool
	// OnHit is called for each bullet hit after the bullet is removed.
	OnHit func(BulletHitEvent)
}

// FiringAllowed reports whether firing may spawn bullets this tick. Replays
// never fire: their bullets are already in history or arrive replicated.
func (c SimContext) FiringAllowed() bool { return !c.InRollback }

// InputSource supplies the action state applied to a player at a tick. ok is
// false when the player is not driven by input on this side.
type InputSource interface {
	InputFor(e *Entity, t Tick) (in AppliedInput, ok bool)
}

// InputBuffers resolves inputs per client with the staleness policy. Players
// without a buffer get the default action state.
type InputBuffers map[ClientID]*InputBuffer

// InputFor implements InputSource.
func (m InputBuffers) InputFor(e *Entity, t Tick) (AppliedInput, bool) {
	if e.Player == nil {
		return AppliedInput{}, false
	}
	buf, ok := m[e.Player.ClientID]
	if !ok {
		return AppliedInput{}, true
	}
	return buf.Resolve(t), true
}

// StepResult reports what happened during one tick.
type StepResult struct {
	Tick      Tick
	Applied   map[EntityID]AppliedInput
	Fired     []*Entity
	Contacts  []Contact
	Hits      []BulletHitEvent
	Despawned []EntityID
}

// Step runs one fixed tick: input application, physics, collision events,
// hit handling, lifetime GC.
func Step(w *World, ctx SimContext, inputs InputSource) (StepResult, error) {
	res := StepResult{Tick: ctx.Tick, Applied: make(map[EntityID]AppliedInput)}
	if ctx.Tick < 0 {
		return res, fmt.Errorf("step: tick %d: %w", ctx.Tick, ErrNegativeTick)
	}

	if inputs != nil {
		for _, e := range w.Players() {
			in, ok := inputs.InputFor(e, ctx.Tick)
			if !ok {
				continue
			}
			res.Applied[e.ID] = in
			ApplyThrust(e, in.State)
			if b := TryFire(w, e, in.State, ctx); b != nil {
				res.Fired = append(res.Fired, b)
			}
		}
	}

	contacts, err := w.StepPhysics(TickSeconds)
	res.Contacts = contacts
	if err != nil {
		return res, fmt.Errorf("step tick %d: %w", ctx.Tick, err)
	}

	hits, remove := HitEvents(w, contacts, ctx.Tick)
	for _, id := range remove {
		if w.Despawn(id) {
			res.Despawned = append(res.Despawned, id)
		}
	}
	res.Hits = hits
	if ctx.OnHit != nil {
		for _, ev := range hits {
			ctx.OnHit(ev)
		}
	}

	res.Despawned = append(res.Despawned, ExpireLifetimes(w, ctx.Tick)...)
	return res, nil
}
