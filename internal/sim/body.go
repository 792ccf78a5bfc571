package sim

import "math"

// ShapeKind distinguishes collider geometry.
type ShapeKind uint8

const (
	ShapeCircle ShapeKind = iota + 1
	ShapePolygon
)

// Collider is the body geometry in local space.
type Collider struct {
	Kind   ShapeKind
	Radius float64 // circle
	Points []Vec2  // convex polygon, counter-clockwise
}

// CircleCollider builds a circle of radius r.
func CircleCollider(r float64) Collider {
	return Collider{Kind: ShapeCircle, Radius: r}
}

// ConvexHullCollider builds a polygon from counter-clockwise points.
func ConvexHullCollider(points ...Vec2) Collider {
	pts := make([]Vec2, len(points))
	copy(pts, points)
	return Collider{Kind: ShapePolygon, Points: pts}
}

// ShipCollider is the player triangle pointing along +Y.
func ShipCollider() Collider {
	return ConvexHullCollider(
		Vec2{0, ShipLength / 2},
		Vec2{-ShipWidth / 2, -ShipLength / 2},
		Vec2{ShipWidth / 2, -ShipLength / 2},
	)
}

// Area of the collider.
func (c Collider) Area() float64 {
	switch c.Kind {
	case ShapeCircle:
		return math.Pi * c.Radius * c.Radius
	case ShapePolygon:
		a := 0.0
		for i := range c.Points {
			j := (i + 1) % len(c.Points)
			a += c.Points[i].Cross(c.Points[j])
		}
		return math.Abs(a) / 2
	}
	return 0
}

// BoundingRadius is the radius of a circle around the local origin that
// contains the collider.
func (c Collider) BoundingRadius() float64 {
	if c.Kind == ShapeCircle {
		return c.Radius
	}
	r := 0.0
	for _, p := range c.Points {
		if l := p.Len(); l > r {
			r = l
		}
	}
	return r
}

func (c Collider) clone() Collider {
	out := c
	if c.Points != nil {
		out.Points = make([]Vec2, len(c.Points))
		copy(out.Points, c.Points)
	}
	return out
}

// Body is a dynamic rigid body. Position, rotation and velocities are the
// replicated physics state; the rest is synthesised from the entity kind.
type Body struct {
	Position        Vec2
	Rotation        float64
	LinearVelocity  Vec2
	AngularVelocity float64

	Collider Collider
	Density  float64
	MaxSpeed float64 // linear speed clamp, 0 for none

	// Force is applied during the next step. When PersistentForce is false it
	// is cleared after the step.
	Force           Vec2
	PersistentForce bool
}

// NewBody builds a body with the given collider and density at pos.
func NewBody(c Collider, density float64, pos Vec2) *Body {
	return &Body{Position: pos, Collider: c, Density: density}
}

// Mass derived from density and collider area.
func (b *Body) Mass() float64 { return b.Density * b.Collider.Area() }

// InverseMass is 0 for massless bodies.
func (b *Body) InverseMass() float64 {
	m := b.Mass()
	if m <= 0 {
		return 0
	}
	return 1 / m
}

// WorldPoints returns the polygon vertices in world space.
func (b *Body) WorldPoints() []Vec2 {
	pts := make([]Vec2, len(b.Collider.Points))
	for i, p := range b.Collider.Points {
		pts[i] = p.Rotate(b.Rotation).Add(b.Position)
	}
	return pts
}

// ApplyForce accumulates an external force for the next step.
func (b *Body) ApplyForce(f Vec2) { b.Force = b.Force.Add(f) }

func (b *Body) clone() *Body {
	if b == nil {
		return nil
	}
	out := *b
	out.Collider = b.Collider.clone()
	return &out
}

func (b *Body) finite() bool {
	return b.Position.IsFinite() && b.LinearVelocity.IsFinite() &&
		!math.IsNaN(b.Rotation) && !math.IsInf(b.Rotation, 0) &&
		!math.IsNaN(b.AngularVelocity) && !math.IsInf(b.AngularVelocity, 0)
}
