package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestWorldSortedOrder(t *testing.T) {
	w := NewWorld()
	w.Spawn(&Entity{ID: 5, Kind: KindBall})
	w.Spawn(&Entity{ID: 2, Kind: KindBall})
	w.Spawn(&Entity{ID: BulletID(1, 10), Kind: KindBullet})
	w.Spawn(&Entity{ID: 3, Kind: KindBall})

	ids := w.IDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("ids not sorted: %v", ids)
		}
	}
	if !w.Despawn(3) || w.Despawn(3) {
		t.Error("despawn should succeed exactly once")
	}
	if w.Len() != 3 {
		t.Errorf("expected 3 entities, got %d", w.Len())
	}
	if id := w.AllocID(); id != 6 {
		t.Errorf("expected next id 6, got %d", id)
	}
	if err := w.Spawn(&Entity{ID: 2, Kind: KindBall}); err == nil {
		t.Error("duplicate spawn should fail")
	}
}

func TestWorldCloneIsDeep(t *testing.T) {
	w := NewWorld()
	p := NewPlayer(0, 1, "Ace", Gold, Vec2{1, 2})
	w.Spawn(p)
	c := w.Clone()

	p.Body.Position = Vec2{9, 9}
	p.Weapon.LastFireTick = 50
	p.Score = 3

	cp, _ := c.Get(p.ID)
	if cp.Body.Position != (Vec2{1, 2}) || cp.Weapon.LastFireTick != 0 || cp.Score != 0 {
		t.Errorf("clone shares state with original: %+v", cp)
	}
}

func TestBulletIDShared(t *testing.T) {
	a := BulletID(7, 1234)
	if a != BulletID(7, 1234) {
		t.Error("bullet id must be deterministic")
	}
	if !a.IsPrespawned() {
		t.Error("bullet id should carry the prespawn bit")
	}
	if a == BulletID(7, 1235) || a == BulletID(8, 1234) {
		t.Error("distinct shots should get distinct ids")
	}
}

func TestBallSpawnGeometry(t *testing.T) {
	spawns := BallSpawns()
	if len(spawns) != NumBalls {
		t.Fatalf("expected %d balls, got %d", NumBalls, len(spawns))
	}
	if spawns[0].Radius != 10 || math.Abs(spawns[0].Position.X-125) > 1e-9 || math.Abs(spawns[0].Position.Y) > 1e-9 {
		t.Errorf("ball 0: %+v", spawns[0])
	}
	if spawns[3].Radius != 22 || math.Abs(spawns[3].Position.X+125) > 1e-9 || math.Abs(spawns[3].Position.Y) > 1e-9 {
		t.Errorf("ball 3: %+v", spawns[3])
	}

	w := NewWorld()
	balls, err := SpawnBalls(w)
	if err != nil || len(balls) != NumBalls {
		t.Fatalf("spawn balls: %v (%d)", err, len(balls))
	}
	if balls[5].Ball.Radius != 30 || balls[5].Body.Collider.Radius != 30 {
		t.Errorf("ball 5 radius: %+v", balls[5].Ball)
	}
}

func TestPlayerSpawnRules(t *testing.T) {
	c, pos := PlayerSpawn(1)
	want := Vec2{200 * math.Cos(5), 200 * math.Sin(5)}
	if pos.Sub(want).Len() > 1e-9 {
		t.Errorf("player 1 spawn: got %v want %v", pos, want)
	}
	if c != PlayerColors[1] {
		t.Errorf("second player should be pink, got %v", c)
	}
	if c, _ := PlayerSpawn(0); c != (Color{R: 0.196, G: 0.804, B: 0.196, A: 1}) {
		t.Errorf("first player should be lime green, got %v", c)
	}
	// colors follow the current player count, so a rejoin reuses a slot
	if c, _ := PlayerSpawn(13); c != PlayerColors[1] {
		t.Errorf("palette should wrap at 12, got %v", c)
	}
	if len(Names) != 35 {
		t.Errorf("expected 35 names, got %d", len(Names))
	}
	if PickPlayerName(0) != "Ellen Ripley" || PickPlayerName(34) != "Mr. T" {
		t.Errorf("unexpected names %q %q", PickPlayerName(0), PickPlayerName(34))
	}
	if PickPlayerName(35) != Names[0] || PickPlayerName(36) != Names[1] {
		t.Error("names should be picked by client id modulo list length")
	}
}

func TestAccumulator(t *testing.T) {
	a := NewAccumulator(TickDuration)
	start := time.Unix(0, 0)
	if n := a.Advance(start); n != 0 {
		t.Errorf("first frame should run no steps, got %d", n)
	}
	if n := a.Advance(start.Add(TickDuration*3 + TickDuration/2)); n != 3 {
		t.Errorf("expected 3 steps, got %d", n)
	}
	if n := a.Advance(start.Add(TickDuration * 4)); n != 1 {
		t.Errorf("expected leftover to complete one step, got %d", n)
	}
	if n := a.Advance(start.Add(TickDuration*4 + 10*time.Second)); n != MaxCatchUpSteps {
		t.Errorf("expected catch-up cap %d, got %d", MaxCatchUpSteps, n)
	}
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	err := RunLoop(ctx, time.Millisecond, func(time.Time, int) {
		frames++
		if frames == 3 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if frames < 3 {
		t.Errorf("expected at least 3 frames, got %d", frames)
	}
}
