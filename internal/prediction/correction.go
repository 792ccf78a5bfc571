package prediction

import (
	"math"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

// Correction is the render-only error left by a rollback. It decays linearly
// to zero; the simulation never sees it.
type Correction struct {
	Position  sim.Vec2
	Rotation  float64
	Total     int32
	Remaining int32
}

// Offset returns the current visual offset.
func (c Correction) Offset() (sim.Vec2, float64) {
	if c.Total <= 0 || c.Remaining <= 0 {
		return sim.Vec2{}, 0
	}
	f := float64(c.Remaining) / float64(c.Total)
	return c.Position.Scale(f), c.Rotation * f
}

// CorrectionTicks is how long the visual error of a rollback of depth ticks
// is smeared over.
func CorrectionTicks(depth int32) int32 {
	n := int32(math.Ceil(float64(depth) * sim.CorrectionFactor))
	if n < 1 {
		n = 1
	}
	return n
}

// corrections tracks the visual error per entity.
type corrections map[sim.EntityID]*Correction

// add folds a new error on top of whatever offset is still showing.
func (cs corrections) add(id sim.EntityID, pos sim.Vec2, rot float64, depth int32) {
	if c, ok := cs[id]; ok {
		p, r := c.Offset()
		pos, rot = pos.Add(p), rot+r
	}
	if pos.LenSq() == 0 && rot == 0 {
		delete(cs, id)
		return
	}
	n := CorrectionTicks(depth)
	cs[id] = &Correction{Position: pos, Rotation: rot, Total: n, Remaining: n}
}

// decay advances every correction by one tick.
func (cs corrections) decay() {
	for id, c := range cs {
		c.Remaining--
		if c.Remaining <= 0 {
			delete(cs, id)
		}
	}
}
