package sim

import (
	"math"
	"testing"
)

func newTestPlayer(t *testing.T, w *World, client ClientID, pos Vec2) *Entity {
	t.Helper()
	e := NewPlayer(0, client, PickPlayerName(client), PlayerColors[0], pos)
	if err := w.Spawn(e); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestFireCadence(t *testing.T) {
	w := NewWorld()
	p := newTestPlayer(t, w, 1, Vec2{})
	p.Weapon.Cooldown = 13

	buf := NewInputBuffer(0)
	inputs := InputBuffers{1: buf}
	for tick := Tick(100); tick <= 200; tick++ {
		if err := buf.Insert(tick, held(ActionFire)); err != nil {
			t.Fatal(err)
		}
	}

	var fired []Tick
	for tick := Tick(100); tick <= 200; tick++ {
		res, err := Step(w, SimContext{Tick: tick, Role: RoleServer}, inputs)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		for _, b := range res.Fired {
			fired = append(fired, b.Lifetime.OriginTick)
		}
	}

	want := []Tick{100, 113, 126, 139, 152, 165, 178, 191}
	if len(fired) != len(want) {
		t.Fatalf("expected %d bullets, got %d: %v", len(want), len(fired), fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("bullet %d: expected tick %d, got %d", i, want[i], fired[i])
		}
	}
	for i := 1; i < len(fired); i++ {
		if fired[i].Sub(fired[i-1]) < p.Weapon.Cooldown {
			t.Errorf("firings %d and %d closer than cooldown", fired[i-1], fired[i])
		}
	}
}

func TestFireCooldownBoundary(t *testing.T) {
	w := NewWorld()
	p := newTestPlayer(t, w, 2, Vec2{})
	p.Weapon.LastFireTick = 100
	fire := held(ActionFire)

	if b := TryFire(w, p, fire, SimContext{Tick: 100 + Tick(p.Weapon.Cooldown) - 1}); b != nil {
		t.Error("should not fire one tick before cooldown elapses")
	}
	b := TryFire(w, p, fire, SimContext{Tick: 100 + Tick(p.Weapon.Cooldown)})
	if b == nil {
		t.Fatal("should fire once cooldown elapsed")
	}
	if b.ID != BulletID(2, 112) || b.Lifetime.OriginTick != 112 {
		t.Errorf("unexpected bullet id/origin: %d %d", b.ID, b.Lifetime.OriginTick)
	}
	if p.Weapon.LastFireTick != 112 {
		t.Errorf("expected last fire tick 112, got %d", p.Weapon.LastFireTick)
	}
	speed := b.Body.LinearVelocity.Len()
	if math.Abs(speed-BulletSpeed) > 1e-9 {
		t.Errorf("expected bullet speed %v, got %v", BulletSpeed, speed)
	}
}

func TestNoFireDuringRollback(t *testing.T) {
	w := NewWorld()
	p := newTestPlayer(t, w, 3, Vec2{})
	ctx := SimContext{Tick: 500, Role: RoleClient, InRollback: true}
	if b := TryFire(w, p, held(ActionFire), ctx); b != nil {
		t.Error("replayed ticks must not spawn bullets")
	}
	if p.Weapon.LastFireTick != 0 {
		t.Error("weapon state should be untouched")
	}
}

func TestBulletLifetimeBoundary(t *testing.T) {
	w := NewWorld()
	b := NewBullet(9, Gold, 10, Vec2{}, Vec2{})
	if err := w.Spawn(b); err != nil {
		t.Fatal(err)
	}
	despawn := b.Lifetime.DespawnTick()
	if despawn != 10+BulletLifetime {
		t.Fatalf("expected despawn at %d, got %d", 10+BulletLifetime, despawn)
	}
	if got := ExpireLifetimes(w, despawn-1); len(got) != 0 {
		t.Errorf("bullet should survive until tick %d", despawn-1)
	}
	if got := ExpireLifetimes(w, despawn); len(got) != 1 || got[0] != b.ID {
		t.Errorf("bullet should be despawned at tick %d, got %v", despawn, got)
	}
	if _, ok := w.Get(b.ID); ok {
		t.Error("bullet still in world")
	}
}

func TestSelfHitScoresZero(t *testing.T) {
	w := NewWorld()
	p := newTestPlayer(t, w, 4, Vec2{})
	victim := ClientID(4)
	ApplyHitScore(w, BulletHitEvent{BulletOwner: 4, Victim: &victim})
	if p.Score != 0 {
		t.Errorf("self hit should net zero, got %d", p.Score)
	}
}

func TestHitScoring(t *testing.T) {
	w := NewWorld()
	shooter := newTestPlayer(t, w, 1, Vec2{-100, 0})
	target := newTestPlayer(t, w, 2, Vec2{100, 0})
	victim := ClientID(2)
	ApplyHitScore(w, BulletHitEvent{BulletOwner: 1, Victim: &victim})
	if shooter.Score != 1 || target.Score != -1 {
		t.Errorf("expected +1/-1, got %d/%d", shooter.Score, target.Score)
	}

	// unknown shooter still costs the victim
	ApplyHitScore(w, BulletHitEvent{BulletOwner: 77, Victim: &victim})
	if target.Score != -2 {
		t.Errorf("expected -2, got %d", target.Score)
	}

	// ball hits carry no victim
	ApplyHitScore(w, BulletHitEvent{BulletOwner: 1})
	if shooter.Score != 1 {
		t.Errorf("ball hit should not score, got %d", shooter.Score)
	}
}

func TestBulletHitsShip(t *testing.T) {
	w := NewWorld()
	shooter := newTestPlayer(t, w, 1, Vec2{0, 0})
	target := newTestPlayer(t, w, 2, Vec2{0, 60})

	buf := NewInputBuffer(0)
	buf.Insert(20, held(ActionFire))
	inputs := InputBuffers{1: buf}

	var hits []BulletHitEvent
	ctx := SimContext{Role: RoleServer, OnHit: func(ev BulletHitEvent) {
		hits = append(hits, ev)
		ApplyHitScore(w, ev)
	}}
	for tick := Tick(20); tick < 40 && len(hits) == 0; tick++ {
		ctx.Tick = tick
		if _, err := Step(w, ctx, inputs); err != nil {
			t.Fatal(err)
		}
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	ev := hits[0]
	if ev.Victim == nil || *ev.Victim != 2 || ev.BulletOwner != 1 {
		t.Errorf("unexpected event %+v", ev)
	}
	if _, ok := w.Get(ev.BulletID); ok {
		t.Error("bullet should be despawned after the hit")
	}
	if shooter.Score != 1 || target.Score != -1 {
		t.Errorf("expected scores 1/-1, got %d/%d", shooter.Score, target.Score)
	}
}

func TestBulletWallDespawnsSilently(t *testing.T) {
	w := NewWorld()
	b := NewBullet(5, Gold, 0, Vec2{WallSize - 3, 0}, Vec2{BulletSpeed, 0})
	w.Spawn(b)
	res, err := Step(w, SimContext{Tick: 1, Role: RoleServer}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 0 {
		t.Errorf("wall contact should not emit hits, got %d", len(res.Hits))
	}
	if _, ok := w.Get(b.ID); ok {
		t.Error("bullet should despawn at the wall")
	}
}

func TestStepRejectsNegativeTick(t *testing.T) {
	if _, err := Step(NewWorld(), SimContext{Tick: -1}, nil); err == nil {
		t.Error("expected error for negative tick")
	}
}

func TestThrustSteersAndStops(t *testing.T) {
	w := NewWorld()
	p := newTestPlayer(t, w, 1, Vec2{})
	ApplyThrust(p, held(ActionRight))
	if p.Body.AngularVelocity >= 0 {
		t.Errorf("turning right from +Y should rotate clockwise, got %v", p.Body.AngularVelocity)
	}
	if p.Body.Force.X <= 0 {
		t.Errorf("expected +X force, got %v", p.Body.Force)
	}
	if _, err := w.StepPhysics(TickSeconds); err != nil {
		t.Fatal(err)
	}
	if p.Body.Force != (Vec2{}) {
		t.Error("ship force must be cleared after a step")
	}
	ApplyThrust(p, ActionState{})
	if p.Body.AngularVelocity != 0 {
		t.Error("no thrust should stop rotation")
	}
}
