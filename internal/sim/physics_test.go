package sim

import (
	"errors"
	"math"
	"testing"
)

func scriptedInputs(client ClientID, from, to Tick) *InputBuffer {
	buf := NewInputBuffer(0)
	prev := ActionState{}
	for tick := from; tick <= to; tick++ {
		var pressed Action
		switch (tick / 16) % 4 {
		case 0:
			pressed = ActionUp
		case 1:
			pressed = ActionUp | ActionRight | ActionFire
		case 2:
			pressed = ActionLeft
		case 3:
			pressed = ActionDown | ActionFire
		}
		prev = prev.Next(pressed)
		buf.Insert(tick, prev)
	}
	return buf
}

func TestStepIsDeterministic(t *testing.T) {
	a := NewWorld()
	if _, err := SpawnBalls(a); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		c, pos := PlayerSpawn(i)
		a.Spawn(NewPlayer(0, ClientID(i+1), PickPlayerName(ClientID(i+1)), c, pos))
	}
	b := a.Clone()

	inputs := InputBuffers{
		1: scriptedInputs(1, 0, 300),
		2: scriptedInputs(2, 0, 300),
	}
	for tick := Tick(1); tick <= 300; tick++ {
		if _, err := Step(a, SimContext{Tick: tick, Role: RoleServer}, inputs); err != nil {
			t.Fatal(err)
		}
		if _, err := Step(b, SimContext{Tick: tick, Role: RoleServer}, inputs); err != nil {
			t.Fatal(err)
		}
	}

	if a.Len() != b.Len() {
		t.Fatalf("entity counts differ: %d vs %d", a.Len(), b.Len())
	}
	for _, ea := range a.Entities() {
		eb, ok := b.Get(ea.ID)
		if !ok {
			t.Fatalf("entity %d missing in second world", ea.ID)
		}
		if ea.Body.Position != eb.Body.Position || ea.Body.LinearVelocity != eb.Body.LinearVelocity {
			t.Errorf("entity %d diverged: %v vs %v", ea.ID, ea.Body.Position, eb.Body.Position)
		}
	}
}

func TestVelocityClamp(t *testing.T) {
	w := NewWorld()
	p := newTestPlayer(t, w, 1, Vec2{})
	for i := 0; i < 200; i++ {
		p.Body.ApplyForce(Vec2{0, ThrusterPower * 10})
		if _, err := w.StepPhysics(TickSeconds); err != nil {
			t.Fatal(err)
		}
		if s := p.Body.LinearVelocity.Len(); s > MaxVelocity+1e-9 {
			t.Fatalf("speed %v exceeds clamp", s)
		}
	}
}

func TestWallsContainBodies(t *testing.T) {
	w := NewWorld()
	ball := NewBall(0, 20, Gold, Vec2{320, 0})
	ball.Body.LinearVelocity = Vec2{MaxVelocity, 0}
	w.Spawn(ball)

	sawWall := false
	for i := 0; i < 30; i++ {
		contacts, err := w.StepPhysics(TickSeconds)
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range contacts {
			if c.Wall && c.A == ball.ID {
				sawWall = true
			}
		}
		if ball.Body.Position.X+20 > WallSize+1e-9 {
			t.Fatalf("ball left the arena at x=%v", ball.Body.Position.X)
		}
	}
	if !sawWall {
		t.Error("expected a wall contact")
	}
	if ball.Body.LinearVelocity.X >= 0 {
		t.Errorf("ball should bounce back, vx=%v", ball.Body.LinearVelocity.X)
	}
}

func TestBallsBounceApart(t *testing.T) {
	w := NewWorld()
	a := NewBall(0, 10, Gold, Vec2{-10.5, 0})
	b := NewBall(0, 10, Gold, Vec2{10.5, 0})
	a.Body.LinearVelocity = Vec2{50, 0}
	b.Body.LinearVelocity = Vec2{-50, 0}
	w.Spawn(a)
	w.Spawn(b)

	contacts, err := w.StepPhysics(TickSeconds)
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 || contacts[0].A != a.ID || contacts[0].B != b.ID {
		t.Fatalf("expected one contact a-b, got %+v", contacts)
	}
	if a.Body.LinearVelocity.X >= 0 || b.Body.LinearVelocity.X <= 0 {
		t.Errorf("balls should separate: %v %v", a.Body.LinearVelocity, b.Body.LinearVelocity)
	}
	// equal masses: momentum conserved
	if sum := a.Body.LinearVelocity.X + b.Body.LinearVelocity.X; math.Abs(sum) > 1e-9 {
		t.Errorf("momentum not conserved: %v", sum)
	}
}

func TestNonFiniteIsReported(t *testing.T) {
	w := NewWorld()
	p := newTestPlayer(t, w, 1, Vec2{})
	p.Body.AngularVelocity = math.NaN()
	_, err := w.StepPhysics(TickSeconds)
	if !errors.Is(err, ErrNonFinite) {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
}

func TestCollideShapes(t *testing.T) {
	ship := NewBody(ShipCollider(), ShipDensity, Vec2{})
	near := NewBody(CircleCollider(2), BallDensity, Vec2{0, 17})
	far := NewBody(CircleCollider(2), BallDensity, Vec2{0, 30})

	m, ok := Collide(ship, near)
	if !ok {
		t.Fatal("circle touching the nose should collide")
	}
	if m.Normal.Y <= 0 {
		t.Errorf("normal should point from ship to circle, got %v", m.Normal)
	}
	if _, ok := Collide(ship, far); ok {
		t.Error("distant circle should not collide")
	}

	other := NewBody(ShipCollider(), ShipDensity, Vec2{5, 10})
	if _, ok := Collide(ship, other); !ok {
		t.Error("overlapping triangles should collide")
	}
	other.Position = Vec2{40, 0}
	if _, ok := Collide(ship, other); ok {
		t.Error("separated triangles should not collide")
	}
}

func TestSpatialGridPairs(t *testing.T) {
	bodies := []*Body{
		NewBody(CircleCollider(5), 1, Vec2{0, 0}),
		NewBody(CircleCollider(5), 1, Vec2{8, 0}),
		NewBody(CircleCollider(5), 1, Vec2{300, 300}),
	}
	var g SpatialGrid
	pairs := g.candidatePairs(bodies)
	found := false
	for _, p := range pairs {
		if p.I == 0 && p.J == 2 || p.I == 1 && p.J == 2 {
			t.Errorf("far body should not pair: %+v", p)
		}
		if p.I == 0 && p.J == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected near bodies to pair")
	}
}

func TestShipMass(t *testing.T) {
	ship := NewBody(ShipCollider(), ShipDensity, Vec2{})
	want := ShipDensity * ShipWidth * ShipLength / 2
	if math.Abs(ship.Mass()-want) > 1e-9 {
		t.Errorf("expected ship mass %v, got %v", want, ship.Mass())
	}
}
