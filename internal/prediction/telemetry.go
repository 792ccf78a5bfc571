package prediction

// Telemetry counts reconciliation activity. Divergence is routine and only
// ever surfaces here.
type Telemetry struct {
	Snapshots        uint64
	StaleSnapshots   uint64
	Rollbacks        uint64
	Resyncs          uint64
	ReplayedTicks    uint64
	MaxRollbackDepth int32
	WriteConflicts   uint64
	LastDivergence   string
}

func (t *Telemetry) recordRollback(depth int32, reason string) {
	t.Rollbacks++
	t.ReplayedTicks += uint64(depth)
	if depth > t.MaxRollbackDepth {
		t.MaxRollbackDepth = depth
	}
	t.LastDivergence = reason
}
