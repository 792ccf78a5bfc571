package sim

import "math"

// muzzleOffset is the distance from the ship center to where bullets appear,
// clear of the ship's own collider.
const muzzleOffset = ShipLength/2 + BulletSize + 0.5

// ApplyThrust turns the held directions into a non-persistent force and
// steers the ship toward the thrust direction.
func ApplyThrust(e *Entity, state ActionState) {
	b := e.Body
	if b == nil {
		return
	}
	dir := state.Thrust()
	if dir == (Vec2{}) {
		b.AngularVelocity = 0
		return
	}
	b.ApplyForce(dir.Scale(ThrusterPower))
	target := math.Atan2(-dir.X, dir.Y)
	diff := NormalizeAngle(target - b.Rotation)
	b.AngularVelocity = Clamp(diff*SteerGain, -RotationalSpeed, RotationalSpeed)
}

// TryFire spawns a bullet from e when Fire is held, firing is allowed and the
// weapon is off cooldown. It returns the bullet or nil.
func TryFire(w *World, e *Entity, state ActionState, ctx SimContext) *Entity {
	if !state.Has(ActionFire) || !ctx.FiringAllowed() {
		return nil
	}
	if e.Weapon == nil || e.Body == nil || e.Player == nil {
		return nil
	}
	if !e.Weapon.CanFire(ctx.Tick) {
		return nil
	}
	fwd := Forward(e.Body.Rotation)
	bullet := NewBullet(
		e.Player.ClientID,
		e.Color,
		ctx.Tick,
		e.Body.Position.Add(fwd.Scale(muzzleOffset)),
		fwd.Scale(e.Weapon.BulletSpeed),
	)
	if ctx.Role == RoleClient {
		bullet.Predicted = true
	}
	e.Weapon.LastFireTick = ctx.Tick
	if err := w.Spawn(bullet); err != nil {
		// already replicated from the server
		return nil
	}
	return bullet
}
