package sim

import "math"

// Manifold describes one overlap between two bodies. Normal points from A
// to B; Depth is the penetration along it.
type Manifold struct {
	Normal Vec2
	Depth  float64
	Point  Vec2
}

// CheckCollision checks if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 <= radSum*radSum
}

// Collide runs the narrowphase for a pair of bodies.
func Collide(a, b *Body) (Manifold, bool) {
	switch {
	case a.Collider.Kind == ShapeCircle && b.Collider.Kind == ShapeCircle:
		return circleCircle(a.Position, a.Collider.Radius, b.Position, b.Collider.Radius)
	case a.Collider.Kind == ShapePolygon && b.Collider.Kind == ShapeCircle:
		return polygonCircle(a.WorldPoints(), b.Position, b.Collider.Radius)
	case a.Collider.Kind == ShapeCircle && b.Collider.Kind == ShapePolygon:
		m, ok := polygonCircle(b.WorldPoints(), a.Position, a.Collider.Radius)
		m.Normal = m.Normal.Neg()
		return m, ok
	case a.Collider.Kind == ShapePolygon && b.Collider.Kind == ShapePolygon:
		return polygonPolygon(a.WorldPoints(), b.WorldPoints())
	}
	return Manifold{}, false
}

func circleCircle(pa Vec2, ra float64, pb Vec2, rb float64) (Manifold, bool) {
	if !CheckCollision(pa.X, pa.Y, ra, pb.X, pb.Y, rb) {
		return Manifold{}, false
	}
	d := pb.Sub(pa)
	dist := d.Len()
	n := Vec2{1, 0}
	if dist > 0 {
		n = d.Scale(1 / dist)
	}
	return Manifold{
		Normal: n,
		Depth:  ra + rb - dist,
		Point:  pa.Add(n.Scale(ra)),
	}, true
}

// closestOnSegment returns the point of segment a-b closest to p.
func closestOnSegment(a, b, p Vec2) Vec2 {
	ab := b.Sub(a)
	den := ab.LenSq()
	if den == 0 {
		return a
	}
	t := Clamp(p.Sub(a).Dot(ab)/den, 0, 1)
	return a.Add(ab.Scale(t))
}

// pointInPolygon checks if p is inside the convex polygon pts.
func pointInPolygon(p Vec2, pts []Vec2) bool {
	hasNeg, hasPos := false, false
	for i := range pts {
		j := (i + 1) % len(pts)
		d := pts[j].Sub(pts[i]).Cross(p.Sub(pts[i]))
		if d < 0 {
			hasNeg = true
		}
		if d > 0 {
			hasPos = true
		}
	}
	return !(hasNeg && hasPos)
}

// polygonCircle: normal points from the polygon to the circle.
func polygonCircle(pts []Vec2, c Vec2, r float64) (Manifold, bool) {
	best := Vec2{}
	bestDist := math.Inf(1)
	for i := range pts {
		j := (i + 1) % len(pts)
		q := closestOnSegment(pts[i], pts[j], c)
		if d := q.Sub(c).LenSq(); d < bestDist {
			bestDist = d
			best = q
		}
	}
	dist := math.Sqrt(bestDist)
	inside := pointInPolygon(c, pts)
	if !inside && dist > r {
		return Manifold{}, false
	}
	n := c.Sub(best)
	if dist > 0 {
		n = n.Scale(1 / dist)
	} else {
		n = c.Sub(centroid(pts)).Normalize()
	}
	depth := r - dist
	if inside {
		n = n.Neg()
		depth = r + dist
	}
	return Manifold{Normal: n, Depth: depth, Point: best}, true
}

func centroid(pts []Vec2) Vec2 {
	var c Vec2
	for _, p := range pts {
		c = c.Add(p)
	}
	if len(pts) == 0 {
		return c
	}
	return c.Scale(1 / float64(len(pts)))
}

// polygonPolygon is a separating-axis test over both polygons' edge normals.
func polygonPolygon(a, b []Vec2) (Manifold, bool) {
	depth := math.Inf(1)
	var normal Vec2
	for _, poly := range [2][]Vec2{a, b} {
		for i := range poly {
			j := (i + 1) % len(poly)
			axis := poly[j].Sub(poly[i]).Perp().Normalize()
			minA, maxA := project(a, axis)
			minB, maxB := project(b, axis)
			if maxA < minB || maxB < minA {
				return Manifold{}, false
			}
			overlap := math.Min(maxA, maxB) - math.Max(minA, minB)
			if overlap < depth {
				depth = overlap
				normal = axis
			}
		}
	}
	ca, cb := centroid(a), centroid(b)
	if cb.Sub(ca).Dot(normal) < 0 {
		normal = normal.Neg()
	}
	// deepest vertex of b along -normal is the contact point
	point := b[0]
	minProj := math.Inf(1)
	for _, p := range b {
		if d := p.Dot(normal); d < minProj {
			minProj = d
			point = p
		}
	}
	return Manifold{Normal: normal, Depth: depth, Point: point}, true
}

func project(pts []Vec2, axis Vec2) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		d := p.Dot(axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}
