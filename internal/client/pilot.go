package client

import "github.com/RJ/bevygap-spaceships/internal/sim"

// Pilot decides which actions the local player holds at a tick.
type Pilot interface {
	Actions(t sim.Tick, self *sim.Entity) sim.Action
}

// IdlePilot never presses anything.
type IdlePilot struct{}

func (IdlePilot) Actions(sim.Tick, *sim.Entity) sim.Action { return 0 }

// ScriptedPilot flies in a circle and fires in bursts. Its output depends
// only on the tick, so runs are reproducible.
type ScriptedPilot struct {
	// Period is the length of one turn-and-coast cycle in ticks.
	Period int32
	// Burst is how many ticks the trigger is held, then released for as long.
	Burst int32
}

// NewScriptedPilot returns a pilot with a two second cycle.
func NewScriptedPilot() *ScriptedPilot {
	return &ScriptedPilot{Period: 2 * sim.TickRate, Burst: sim.TickRate / 4}
}

func (p *ScriptedPilot) Actions(t sim.Tick, self *sim.Entity) sim.Action {
	if self == nil || p.Period <= 0 {
		return 0
	}
	phase := int32(t) % p.Period
	if phase < 0 {
		phase += p.Period
	}
	a := sim.ActionUp
	if phase < p.Period/2 {
		a |= sim.ActionLeft
	}
	if p.Burst > 0 && (int32(t)/p.Burst)%2 == 0 {
		a |= sim.ActionFire
	}
	return a
}
