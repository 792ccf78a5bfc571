package sim

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite is returned when a body ends a step with NaN or Inf state.
var ErrNonFinite = errors.New("non-finite physics state")

// Contact is one collision reported by a physics step. When Wall is set, B is
// zero and the body touched the arena boundary.
type Contact struct {
	A, B  EntityID
	Wall  bool
	Point Vec2
}

// penetration fraction corrected per step
const positionCorrection = 0.8

// StepPhysics advances every body by dt seconds: integrate, wall constraints,
// broadphase, narrowphase, impulse resolution. Wall contacts come first in
// id order, then body pairs in ascending (A, B) order.
func (w *World) StepPhysics(dt float64) ([]Contact, error) {
	ids := make([]EntityID, 0, len(w.order))
	bodies := make([]*Body, 0, len(w.order))
	for _, id := range w.order {
		if b := w.entities[id].Body; b != nil {
			ids = append(ids, id)
			bodies = append(bodies, b)
		}
	}

	for _, b := range bodies {
		integrate(b, dt)
	}

	var contacts []Contact
	for i, b := range bodies {
		if p, hit := constrainToWalls(b); hit {
			contacts = append(contacts, Contact{A: ids[i], Wall: true, Point: p})
		}
	}

	if w.grid == nil {
		w.grid = &SpatialGrid{}
	}
	for _, p := range w.grid.candidatePairs(bodies) {
		a, b := bodies[p.I], bodies[p.J]
		m, ok := Collide(a, b)
		if !ok {
			continue
		}
		resolve(a, b, m)
		contacts = append(contacts, Contact{A: ids[p.I], B: ids[p.J], Point: m.Point})
	}

	for i, b := range bodies {
		clampVelocity(b)
		if !b.finite() {
			return contacts, fmt.Errorf("entity %d after physics step: %w", ids[i], ErrNonFinite)
		}
	}
	return contacts, nil
}

func integrate(b *Body, dt float64) {
	if inv := b.InverseMass(); inv > 0 {
		b.LinearVelocity = b.LinearVelocity.Add(b.Force.Scale(inv * dt))
	}
	clampVelocity(b)
	b.Position = b.Position.Add(b.LinearVelocity.Scale(dt))
	b.Rotation = NormalizeAngle(b.Rotation + b.AngularVelocity*dt)
	if !b.PersistentForce {
		b.Force = Vec2{}
	}
}

func clampVelocity(b *Body) {
	if b.MaxSpeed <= 0 {
		return
	}
	if l := b.LinearVelocity.Len(); l > b.MaxSpeed {
		b.LinearVelocity = b.LinearVelocity.Scale(b.MaxSpeed / l)
	}
}

// constrainToWalls pushes a body back inside the arena and reflects the
// velocity component into the wall.
func constrainToWalls(b *Body) (Vec2, bool) {
	minX, maxX, minY, maxY := extents(b)
	hit := false
	var point Vec2
	if minX < -WallSize {
		b.Position.X += -WallSize - minX
		if b.LinearVelocity.X < 0 {
			b.LinearVelocity.X = -b.LinearVelocity.X * Restitution
		}
		point, hit = Vec2{-WallSize, b.Position.Y}, true
	} else if maxX > WallSize {
		b.Position.X -= maxX - WallSize
		if b.LinearVelocity.X > 0 {
			b.LinearVelocity.X = -b.LinearVelocity.X * Restitution
		}
		point, hit = Vec2{WallSize, b.Position.Y}, true
	}
	if minY < -WallSize {
		b.Position.Y += -WallSize - minY
		if b.LinearVelocity.Y < 0 {
			b.LinearVelocity.Y = -b.LinearVelocity.Y * Restitution
		}
		point, hit = Vec2{b.Position.X, -WallSize}, true
	} else if maxY > WallSize {
		b.Position.Y -= maxY - WallSize
		if b.LinearVelocity.Y > 0 {
			b.LinearVelocity.Y = -b.LinearVelocity.Y * Restitution
		}
		point, hit = Vec2{b.Position.X, WallSize}, true
	}
	return point, hit
}

// extents returns the world-space axis-aligned bounds of the collider.
func extents(b *Body) (minX, maxX, minY, maxY float64) {
	if b.Collider.Kind == ShapeCircle {
		r := b.Collider.Radius
		return b.Position.X - r, b.Position.X + r, b.Position.Y - r, b.Position.Y + r
	}
	if len(b.Collider.Points) == 0 {
		return b.Position.X, b.Position.X, b.Position.Y, b.Position.Y
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range b.WorldPoints() {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return
}

// resolve separates a and b along the manifold normal and exchanges a linear
// impulse. Rotation is not affected by contacts.
func resolve(a, b *Body, m Manifold) {
	invA, invB := a.InverseMass(), b.InverseMass()
	sum := invA + invB
	if sum == 0 {
		return
	}
	corr := m.Normal.Scale(math.Max(m.Depth, 0) * positionCorrection / sum)
	a.Position = a.Position.Sub(corr.Scale(invA))
	b.Position = b.Position.Add(corr.Scale(invB))

	rel := b.LinearVelocity.Sub(a.LinearVelocity)
	vn := rel.Dot(m.Normal)
	if vn >= 0 {
		return
	}
	j := -(1 + Restitution) * vn / sum
	impulse := m.Normal.Scale(j)
	a.LinearVelocity = a.LinearVelocity.Sub(impulse.Scale(invA))
	b.LinearVelocity = b.LinearVelocity.Add(impulse.Scale(invB))
}
