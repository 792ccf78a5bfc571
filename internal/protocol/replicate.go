package protocol

import (
	"fmt"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

// NewSpawn describes e for a client that has not seen it yet: its once
// components plus the current replicated state.
func NewSpawn(e *sim.Entity, tick sim.Tick) (Spawn, error) {
	comps, err := EncodeComponents(e, SyncOnce, SyncSimple, SyncFull)
	if err != nil {
		return Spawn{}, err
	}
	return Spawn{EntityID: uint64(e.ID), Kind: uint8(e.Kind), Tick: int32(tick), Components: comps}, nil
}

// EntityFromSpawn builds the entity described by sp with its physics facet
// attached.
func EntityFromSpawn(sp Spawn) (*sim.Entity, error) {
	kind := sim.Kind(sp.Kind)
	switch kind {
	case sim.KindPlayer, sim.KindBall, sim.KindBullet:
	default:
		return nil, fmt.Errorf("%w: spawn of entity %d with kind %d", ErrMalformed, sp.EntityID, sp.Kind)
	}
	e := &sim.Entity{ID: sim.EntityID(sp.EntityID), Kind: kind}
	if err := DecodeComponents(e, sp.Components); err != nil {
		return nil, err
	}
	sim.AttachPhysics(e)
	return e, nil
}

// BuildSnapshot captures the full and simple components of every entity in
// w at tick. All entities travel in the predicted group.
func BuildSnapshot(w *sim.World, tick sim.Tick) (Snapshot, error) {
	snap := Snapshot{Group: PredictedGroup, Tick: int32(tick)}
	for _, e := range w.Entities() {
		comps, err := EncodeComponents(e, SyncFull, SyncSimple)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Entities = append(snap.Entities, EntityUpdate{ID: uint64(e.ID), Components: comps})
	}
	return snap, nil
}

// ApplyUpdate decodes the components of u whose mode is in modes onto e.
func ApplyUpdate(e *sim.Entity, u EntityUpdate, modes ...SyncMode) error {
	return DecodeComponents(e, u.Components, modes...)
}

// InputMessageFrom packs the buffered inputs of client in [from, to].
func InputMessageFrom(client sim.ClientID, buf *sim.InputBuffer, from, to sim.Tick) InputMessage {
	if from < 0 {
		from = 0
	}
	msg := InputMessage{ClientID: uint64(client)}
	for _, in := range buf.Range(from, to) {
		msg.Inputs = append(msg.Inputs, InputFrame{Tick: int32(in.Tick), Bits: in.State.Bits()})
	}
	return msg
}

// IngestInputs writes every frame of msg into buf. Write conflicts and
// evicted ticks are collected and returned; the remaining frames are still
// written.
func IngestInputs(buf *sim.InputBuffer, msg InputMessage) (written int, errs []error) {
	for _, f := range msg.Inputs {
		st := sim.ActionStateFromBits(f.Bits)
		if err := buf.Insert(sim.Tick(f.Tick), st); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	return written, errs
}
