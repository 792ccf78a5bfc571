package sim

import (
	"fmt"
	"time"
)

// EntityID identifies an entity identically on server and clients.
type EntityID uint64

// ClientID identifies a connected client.
type ClientID uint64

// prespawnBit marks ids derived from (owner, tick) rather than allocated.
const prespawnBit = EntityID(1) << 63

// Kind is the entity archetype.
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindBall
	KindBullet
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindBall:
		return "ball"
	case KindBullet:
		return "bullet"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// Weapon is the firing state of a player.
type Weapon struct {
	LastFireTick Tick
	Cooldown     int32 // ticks
	BulletSpeed  float64
}

// DefaultWeapon has the standard cooldown and bullet speed.
func DefaultWeapon() Weapon {
	return Weapon{Cooldown: WeaponCooldown, BulletSpeed: BulletSpeed}
}

// CanFire reports whether the weapon may fire at tick t.
func (w Weapon) CanFire(t Tick) bool {
	return t.Sub(w.LastFireTick) >= w.Cooldown
}

// PlayerInfo identifies the owning client and carries its connection stats.
type PlayerInfo struct {
	ClientID ClientID
	Nickname string
	RTT      time.Duration
	Jitter   time.Duration
}

// BallMarker tags a ball entity.
type BallMarker struct {
	Radius float64
}

// BulletMarker tags a bullet entity with its shooter.
type BulletMarker struct {
	Owner ClientID
}

// Lifetime records when an entity was spawned and how long it lives.
type Lifetime struct {
	OriginTick Tick
	Lifetime   int32 // ticks
}

// DespawnTick is the first tick at which the entity no longer exists.
func (l Lifetime) DespawnTick() Tick { return l.OriginTick.Add(l.Lifetime) }

// Entity is a tagged union over the three archetypes. Optional facets are nil
// when absent.
type Entity struct {
	ID    EntityID
	Kind  Kind
	Color Color
	Name  string

	Body *Body

	Player *PlayerInfo
	Weapon *Weapon
	Score  int32

	Ball *BallMarker

	Bullet   *BulletMarker
	Lifetime *Lifetime

	// client-side markers
	Predicted  bool
	Controlled bool
}

// Clone deep copies the entity.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Body = e.Body.clone()
	if e.Player != nil {
		p := *e.Player
		out.Player = &p
	}
	if e.Weapon != nil {
		w := *e.Weapon
		out.Weapon = &w
	}
	if e.Ball != nil {
		b := *e.Ball
		out.Ball = &b
	}
	if e.Bullet != nil {
		b := *e.Bullet
		out.Bullet = &b
	}
	if e.Lifetime != nil {
		l := *e.Lifetime
		out.Lifetime = &l
	}
	return &out
}

// IsPrespawned reports whether the id was derived by BulletID.
func (id EntityID) IsPrespawned() bool { return id&prespawnBit != 0 }

// BulletID derives the id of the bullet fired by owner at tick. Server and
// client compute the same id, so a client prespawned bullet is matched by the
// replicated one.
func BulletID(owner ClientID, tick Tick) EntityID {
	h := uint64(owner)*0x9e3779b97f4a7c15 ^ uint64(uint32(tick))
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return EntityID(h) | prespawnBit
}

// AttachPhysics synthesises the physics facet from the entity kind. It keeps
// the replicated motion state of an existing body.
func AttachPhysics(e *Entity) {
	var c Collider
	var density float64
	switch e.Kind {
	case KindPlayer:
		c, density = ShipCollider(), ShipDensity
	case KindBall:
		r := 10.0
		if e.Ball != nil {
			r = e.Ball.Radius
		}
		c, density = CircleCollider(r), BallDensity
	case KindBullet:
		c, density = CircleCollider(BulletSize), BulletDensity
	default:
		return
	}
	if e.Body == nil {
		e.Body = &Body{}
	}
	e.Body.Collider = c
	e.Body.Density = density
	e.Body.PersistentForce = e.Kind != KindPlayer
	// bullets leave the muzzle faster than the ship clamp
	e.Body.MaxSpeed = MaxVelocity
	if e.Kind == KindBullet {
		e.Body.MaxSpeed = 0
	}
}

// NewPlayer builds a player entity with a ship body at pos.
func NewPlayer(id EntityID, client ClientID, nickname string, color Color, pos Vec2) *Entity {
	w := DefaultWeapon()
	e := &Entity{
		ID:     id,
		Kind:   KindPlayer,
		Color:  color,
		Name:   nickname,
		Body:   &Body{Position: pos},
		Player: &PlayerInfo{ClientID: client, Nickname: nickname},
		Weapon: &w,
	}
	AttachPhysics(e)
	return e
}

// NewBall builds a ball entity.
func NewBall(id EntityID, radius float64, color Color, pos Vec2) *Entity {
	e := &Entity{
		ID:    id,
		Kind:  KindBall,
		Color: color,
		Name:  "ball",
		Body:  &Body{Position: pos},
		Ball:  &BallMarker{Radius: radius},
	}
	AttachPhysics(e)
	return e
}

// NewBullet builds the bullet fired by owner at tick.
func NewBullet(owner ClientID, color Color, tick Tick, pos, vel Vec2) *Entity {
	e := &Entity{
		ID:       BulletID(owner, tick),
		Kind:     KindBullet,
		Color:    color,
		Name:     "bullet",
		Body:     &Body{Position: pos, LinearVelocity: vel},
		Bullet:   &BulletMarker{Owner: owner},
		Lifetime: &Lifetime{OriginTick: tick, Lifetime: BulletLifetime},
	}
	AttachPhysics(e)
	return e
}
