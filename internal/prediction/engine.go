package prediction

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

// Outcome says what a snapshot did to the predicted timeline.
type Outcome uint8

const (
	OutcomeStale Outcome = iota + 1
	OutcomeConfirmed
	OutcomeRollback
	OutcomeResync
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStale:
		return "stale"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRollback:
		return "rollback"
	case OutcomeResync:
		return "resync"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// Config tunes the engine.
type Config struct {
	HistoryTicks int
	Redundancy   int32
	Tolerance    Tolerance
}

// DefaultConfig keeps 128 ticks of history and repeats 8 ticks of input.
func DefaultConfig() Config {
	return Config{
		HistoryTicks: HistoryTicks,
		Redundancy:   protocol.InputRedundancy,
		Tolerance:    DefaultTolerance,
	}
}

// Engine runs the client's predicted simulation and reconciles it with
// server snapshots. It is owned by the client loop goroutine.
type Engine struct {
	cfg     Config
	local   sim.ClientID
	clock   *sim.TickClock
	world   *sim.World
	history *History
	inputs  sim.InputBuffers
	spawns  map[sim.EntityID]protocol.Spawn
	fired   map[sim.EntityID]sim.Tick // bullets predicted locally, by origin tick
	corr    corrections
	tel     Telemetry

	inputDelay  int32
	lastLocal   sim.ActionState
	lastWritten sim.Tick
	wroteAny    bool

	lastSnapshot sim.Tick
	haveSnapshot bool

	// OnHit receives bullet hits from predicted and replayed ticks.
	OnHit func(sim.BulletHitEvent)
}

// NewEngine starts an empty predicted world at tick start.
func NewEngine(cfg Config, local sim.ClientID, start sim.Tick) *Engine {
	if cfg.HistoryTicks <= 0 {
		cfg.HistoryTicks = HistoryTicks
	}
	if cfg.Tolerance == (Tolerance{}) {
		cfg.Tolerance = DefaultTolerance
	}
	e := &Engine{
		cfg:        cfg,
		local:      local,
		clock:      sim.NewTickClock(start),
		world:      sim.NewWorld(),
		history:    NewHistory(cfg.HistoryTicks),
		inputs:     sim.InputBuffers{local: sim.NewInputBuffer(sim.InputHistoryTicks)},
		spawns:     make(map[sim.EntityID]protocol.Spawn),
		fired:      make(map[sim.EntityID]sim.Tick),
		corr:       make(corrections),
		inputDelay: sim.MinInputDelay,
	}
	e.history.Record(start, e.world)
	return e
}

// InputDelayFor converts a round trip time into the input delay in ticks:
// half the round trip, rounded up, clamped to [3, 6].
func InputDelayFor(rtt time.Duration) int32 {
	n := int32(math.Ceil(float64(rtt/2) / float64(sim.TickDuration)))
	if n < sim.MinInputDelay {
		return sim.MinInputDelay
	}
	if n > sim.MaxInputDelay {
		return sim.MaxInputDelay
	}
	return n
}

func (e *Engine) World() *sim.World         { return e.world }
func (e *Engine) Now() sim.Tick             { return e.clock.Tick() }
func (e *Engine) Clock() *sim.TickClock     { return e.clock }
func (e *Engine) Telemetry() Telemetry      { return e.tel }
func (e *Engine) InputDelay() int32         { return e.inputDelay }
func (e *Engine) LocalClient() sim.ClientID { return e.local }

// SetRTT updates the input delay from a measured round trip.
func (e *Engine) SetRTT(rtt time.Duration) { e.inputDelay = InputDelayFor(rtt) }

// Controlled returns the locally controlled player, once replicated.
func (e *Engine) Controlled() (*sim.Entity, bool) {
	return e.world.PlayerByClient(e.local)
}

// Reset jumps to tick t keeping the current world, e.g. after Welcome.
func (e *Engine) Reset(t sim.Tick) error {
	if err := e.clock.Reset(t); err != nil {
		return err
	}
	e.history.Clear()
	e.history.Record(t, e.world)
	e.haveSnapshot = false
	e.wroteAny = false
	return nil
}

// SampleLocal records the held actions for tick now+inputDelay. It returns
// the tick written, or false when that tick was already written because the
// delay shrank.
func (e *Engine) SampleLocal(pressed sim.Action) (sim.Tick, bool) {
	target := e.clock.Tick().Add(e.inputDelay)
	if e.wroteAny && target <= e.lastWritten {
		return e.lastWritten, false
	}
	st := e.lastLocal.Next(pressed)
	if err := e.inputs[e.local].Insert(target, st); err != nil {
		log.Printf("local input at tick %d dropped: %v", target, err)
		return target, false
	}
	e.lastLocal = st
	e.lastWritten = target
	e.wroteAny = true
	return target, true
}

// OutgoingInput returns the local input window [now-redundancy, now+delay].
func (e *Engine) OutgoingInput() protocol.InputMessage {
	now := e.clock.Tick()
	return protocol.InputMessageFrom(e.local, e.inputs[e.local], now.Add(-e.cfg.Redundancy), now.Add(e.inputDelay))
}

// IngestRemoteInput stores another client's rebroadcast inputs. Conflicting
// rewrites are dropped and logged.
func (e *Engine) IngestRemoteInput(msg protocol.InputMessage) {
	cid := sim.ClientID(msg.ClientID)
	if cid == e.local {
		return
	}
	buf, ok := e.inputs[cid]
	if !ok {
		buf = sim.NewInputBuffer(sim.InputHistoryTicks)
		e.inputs[cid] = buf
	}
	_, errs := protocol.IngestInputs(buf, msg)
	for _, err := range errs {
		if errors.Is(err, sim.ErrWriteConflict) {
			e.tel.WriteConflicts++
			log.Printf("input from client %d dropped: %v", cid, err)
		}
	}
}

// AdvanceTick predicts one tick forward with firing enabled and records it.
func (e *Engine) AdvanceTick() (sim.StepResult, error) {
	t := e.clock.Tick() + 1
	ctx := sim.SimContext{Tick: t, Role: sim.RoleClient, OnHit: e.OnHit}
	res, err := sim.Step(e.world, ctx, e.inputs)
	if err != nil {
		return res, err
	}
	e.clock.Advance()
	e.history.Record(t, e.world)
	e.corr.decay()
	for _, b := range res.Fired {
		e.fired[b.ID] = t
	}
	for id, origin := range e.fired {
		if t.Sub(origin) > int32(e.cfg.HistoryTicks) {
			delete(e.fired, id)
		}
	}
	return res, nil
}

func (e *Engine) decorate(ent *sim.Entity) {
	ent.Predicted = true
	ent.Controlled = ent.Player != nil && ent.Player.ClientID == e.local
}

// OnSpawn registers the once components of a replicated entity and adds it
// to the predicted world unless a prespawned copy is already there. A bullet
// this client predicted and has since despawned stays gone; OnSpawn returns
// nil for it and leaves the rest to snapshot reconciliation.
func (e *Engine) OnSpawn(sp protocol.Spawn) (*sim.Entity, error) {
	id := sim.EntityID(sp.EntityID)
	e.spawns[id] = sp
	if existing, ok := e.world.Get(id); ok {
		return existing, nil
	}
	if _, ok := e.fired[id]; ok && id.IsPrespawned() {
		return nil, nil
	}
	ent, err := protocol.EntityFromSpawn(sp)
	if err != nil {
		return nil, err
	}
	e.decorate(ent)
	if err := e.world.Spawn(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// OnDespawn drops a replicated entity.
func (e *Engine) OnDespawn(id sim.EntityID) {
	if ent, ok := e.world.Get(id); ok && ent.Player != nil && ent.Player.ClientID != e.local {
		delete(e.inputs, ent.Player.ClientID)
	}
	delete(e.spawns, id)
	delete(e.corr, id)
	e.world.Despawn(id)
}

// OnSnapshot reconciles the prediction with an authoritative snapshot.
// Snapshots at or before the last one seen are dropped.
func (e *Engine) OnSnapshot(snap protocol.Snapshot) (Outcome, error) {
	e.tel.Snapshots++
	ts := sim.Tick(snap.Tick)
	if e.haveSnapshot && ts <= e.lastSnapshot {
		e.tel.StaleSnapshots++
		return OutcomeStale, nil
	}
	e.lastSnapshot, e.haveSnapshot = ts, true

	auth, err := e.authoritativeWorld(snap)
	if err != nil {
		return OutcomeStale, err
	}
	e.applySimple(snap)

	now := e.clock.Tick()
	hist, ok := e.history.Get(ts)
	if ts > now || !ok {
		return OutcomeResync, e.resync(auth, ts)
	}
	reason := Diverges(hist, auth, e.cfg.Tolerance)
	if reason == "" {
		return OutcomeConfirmed, nil
	}
	return OutcomeRollback, e.rollback(auth, ts, reason)
}

func (e *Engine) authoritativeWorld(snap protocol.Snapshot) (*sim.World, error) {
	w := sim.NewWorld()
	for _, u := range snap.Entities {
		id := sim.EntityID(u.ID)
		sp, ok := e.spawns[id]
		if !ok {
			log.Printf("snapshot %d: entity %d replicated before its spawn", snap.Tick, id)
			continue
		}
		ent, err := protocol.EntityFromSpawn(sp)
		if err != nil {
			return nil, err
		}
		if err := protocol.ApplyUpdate(ent, u); err != nil {
			return nil, err
		}
		e.decorate(ent)
		if err := w.Spawn(ent); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// applySimple overwrites simple components in the live world.
func (e *Engine) applySimple(snap protocol.Snapshot) {
	for _, u := range snap.Entities {
		ent, ok := e.world.Get(sim.EntityID(u.ID))
		if !ok {
			continue
		}
		if err := protocol.ApplyUpdate(ent, u, protocol.SyncSimple); err != nil {
			log.Printf("snapshot %d: entity %d: %v", snap.Tick, u.ID, err)
		}
	}
}

// resync replaces the prediction with the authoritative state and jumps the
// clock to its tick.
func (e *Engine) resync(auth *sim.World, ts sim.Tick) error {
	if err := e.clock.Reset(ts); err != nil {
		return err
	}
	e.world = auth
	e.history.Clear()
	e.history.Record(ts, auth)
	for id := range e.corr {
		delete(e.corr, id)
	}
	e.tel.Resyncs++
	return nil
}

// rollback restores the authoritative state at ts and replays every tick up
// to now from the input buffers with firing disabled. Bullets predicted
// after ts are carried over from history.
func (e *Engine) rollback(auth *sim.World, ts sim.Tick, reason string) error {
	now := e.clock.Tick()
	depth := now.Sub(ts)
	old := e.world
	w := auth

	e.history.Record(ts, w)
	e.clock.BeginRollback(ts)
	for t := ts + 1; t <= now; t++ {
		e.clock.SetRollbackTick(t)
		ctx := sim.SimContext{
			Tick:       e.clock.RollbackTick(),
			Role:       sim.RoleClient,
			InRollback: true,
			OnHit:      e.OnHit,
		}
		if _, err := sim.Step(w, ctx, e.inputs); err != nil {
			e.clock.EndRollback()
			return fmt.Errorf("replay tick %d: %w", t, err)
		}
		e.carryPrespawned(w, t)
		e.history.Record(t, w)
	}
	e.clock.EndRollback()

	e.world = w
	e.tel.recordRollback(depth, reason)
	for _, ne := range w.Entities() {
		oe, ok := old.Get(ne.ID)
		if !ok || oe.Body == nil || ne.Body == nil {
			continue
		}
		e.corr.add(ne.ID,
			oe.Body.Position.Sub(ne.Body.Position),
			sim.NormalizeAngle(oe.Body.Rotation-ne.Body.Rotation),
			depth)
	}
	return nil
}

// carryPrespawned re-inserts bullets that the old timeline fired at tick t
// and sets the shooter's cooldown as if it had fired.
func (e *Engine) carryPrespawned(w *sim.World, t sim.Tick) {
	hist, ok := e.history.Get(t)
	if !ok {
		return
	}
	for _, b := range hist.Entities() {
		if b.Kind != sim.KindBullet || b.Lifetime == nil || b.Lifetime.OriginTick != t {
			continue
		}
		if _, exists := w.Get(b.ID); exists {
			continue
		}
		if err := w.Spawn(b.Clone()); err != nil {
			continue
		}
		if b.Bullet == nil {
			continue
		}
		if owner, ok := w.PlayerByClient(b.Bullet.Owner); ok && owner.Weapon != nil {
			owner.Weapon.LastFireTick = t
		}
	}
}

// VisualOffset is the render-only correction still applied to id.
func (e *Engine) VisualOffset(id sim.EntityID) (sim.Vec2, float64) {
	c, ok := e.corr[id]
	if !ok {
		return sim.Vec2{}, 0
	}
	return c.Offset()
}
