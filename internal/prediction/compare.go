package prediction

import (
	"fmt"
	"math"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

// Tolerance is the per-component divergence threshold for full components.
// Weapon state and the entity set are compared exactly.
type Tolerance struct {
	Position        float64
	Rotation        float64 // radians
	LinearVelocity  float64
	AngularVelocity float64
}

// DefaultTolerance absorbs float drift between platforms.
var DefaultTolerance = Tolerance{
	Position:        0.01,
	Rotation:        0.001,
	LinearVelocity:  0.01,
	AngularVelocity: 0.001,
}

// Diverges compares a predicted world against the authoritative one and
// returns a description of the first difference found, or "" if they agree.
func Diverges(predicted, auth *sim.World, tol Tolerance) string {
	if predicted.Len() != auth.Len() {
		return fmt.Sprintf("entity count %d != %d", predicted.Len(), auth.Len())
	}
	for _, a := range auth.Entities() {
		p, ok := predicted.Get(a.ID)
		if !ok {
			return fmt.Sprintf("entity %d not predicted", a.ID)
		}
		if reason := divergesEntity(p, a, tol); reason != "" {
			return fmt.Sprintf("entity %d: %s", a.ID, reason)
		}
	}
	return ""
}

func divergesEntity(p, a *sim.Entity, tol Tolerance) string {
	if (p.Weapon == nil) != (a.Weapon == nil) {
		return "weapon presence"
	}
	if p.Weapon != nil && *p.Weapon != *a.Weapon {
		return fmt.Sprintf("weapon %+v != %+v", *p.Weapon, *a.Weapon)
	}
	if p.Body == nil || a.Body == nil {
		if (p.Body == nil) != (a.Body == nil) {
			return "body presence"
		}
		return ""
	}
	pb, ab := p.Body, a.Body
	if d := pb.Position.Sub(ab.Position).Len(); d > tol.Position {
		return fmt.Sprintf("position off by %.4f", d)
	}
	if d := math.Abs(sim.NormalizeAngle(pb.Rotation - ab.Rotation)); d > tol.Rotation {
		return fmt.Sprintf("rotation off by %.5f", d)
	}
	if d := pb.LinearVelocity.Sub(ab.LinearVelocity).Len(); d > tol.LinearVelocity {
		return fmt.Sprintf("velocity off by %.4f", d)
	}
	if d := math.Abs(pb.AngularVelocity - ab.AngularVelocity); d > tol.AngularVelocity {
		return fmt.Sprintf("angular velocity off by %.5f", d)
	}
	return ""
}
