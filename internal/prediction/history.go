package prediction

import "github.com/RJ/bevygap-spaceships/internal/sim"

// HistoryTicks is how many predicted ticks are kept for reconciliation.
const HistoryTicks = 128

type historyEntry struct {
	tick  sim.Tick
	world *sim.World
}

// History is a ring of predicted world states keyed by tick. A slot whose
// stored tick differs from the key is a miss.
type History struct {
	entries []historyEntry
}

// NewHistory keeps the last size ticks.
func NewHistory(size int) *History {
	if size <= 0 {
		size = HistoryTicks
	}
	return &History{entries: make([]historyEntry, size)}
}

func (h *History) idx(t sim.Tick) int {
	n := len(h.entries)
	return ((int(t) % n) + n) % n
}

// Record stores a deep copy of w as the state after tick t.
func (h *History) Record(t sim.Tick, w *sim.World) {
	h.entries[h.idx(t)] = historyEntry{tick: t, world: w.Clone()}
}

// Get returns the state after tick t. The world must not be mutated.
func (h *History) Get(t sim.Tick) (*sim.World, bool) {
	e := h.entries[h.idx(t)]
	if e.world == nil || e.tick != t {
		return nil, false
	}
	return e.world, true
}

// Clear drops every entry.
func (h *History) Clear() {
	for i := range h.entries {
		h.entries[i] = historyEntry{}
	}
}

// Len is the ring capacity in ticks.
func (h *History) Len() int { return len(h.entries) }
