package sim

import (
	"math"
	"time"
)

const (
	TickRate     = 64 // fixed simulation ticks per second
	TickDuration = time.Second / TickRate
	TickSeconds  = 1.0 / float64(TickRate)
)

const (
	PhysicsScale = 100.0
	WallSize     = 350.0 // half extent of the arena box
	MaxVelocity  = 200.0

	ShipWidth  = 19.0
	ShipLength = 32.0
	BulletSize = 1.5 // bullet collider radius

	BulletDensity = 5.0
	BallDensity   = 1.5
	ShipDensity   = 1.0

	ThrusterPower   = 32000.0 // newtons-ish, divided by ship mass
	RotationalSpeed = 4.0     // rad/s cap when steering
	SteerGain       = 8.0     // angular velocity per radian of heading error
	Restitution     = 0.3
)

const (
	BulletLifetime    = 2 * TickRate // ticks
	WeaponCooldown    = TickRate / 5 // 12.8 truncated to 12
	BulletSpeed       = 500.0
	MaxStaleTicks     = 6
	MinInputDelay     = 3
	MaxInputDelay     = 6
	CorrectionFactor  = 1.5
	InputHistoryTicks = 256
)

const (
	NumBalls         = 6
	BallRingRadius   = 125.0
	PlayerRingRadius = 200.0
	PlayerSpawnStep  = 5.0 // radians between consecutive player spawn angles
)

// Tau is a full turn in radians.
const Tau = 2 * math.Pi
