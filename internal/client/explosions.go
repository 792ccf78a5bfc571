package client

import (
	"time"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	// ExplosionLifetime is how long a hit effect is shown.
	ExplosionLifetime = time.Second
	// seenTTL keeps bullet ids long enough that a replayed hit is not shown twice.
	seenTTL = 3 * time.Second
)

// Explosion is the visual effect of one bullet hit.
type Explosion struct {
	BulletID  sim.EntityID
	Position  sim.Vec2
	Color     sim.Color
	StartedAt time.Time
}

// Progress is how far the effect has played, from 0 to 1.
func (e Explosion) Progress(now time.Time) float64 {
	p := float64(now.Sub(e.StartedAt)) / float64(ExplosionLifetime)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Explosions tracks active hit effects. Hits seen again during a rollback
// replay are ignored by bullet id.
type Explosions struct {
	active []Explosion
	seen   map[sim.EntityID]time.Time
}

func NewExplosions() *Explosions {
	return &Explosions{seen: make(map[sim.EntityID]time.Time)}
}

// Add starts an effect for ev unless its bullet already exploded.
func (x *Explosions) Add(ev sim.BulletHitEvent, now time.Time) bool {
	if _, ok := x.seen[ev.BulletID]; ok {
		return false
	}
	x.seen[ev.BulletID] = now
	x.active = append(x.active, Explosion{
		BulletID:  ev.BulletID,
		Position:  ev.Position,
		Color:     ev.BulletColor,
		StartedAt: now,
	})
	return true
}

// Expire drops finished effects and forgets old bullet ids.
func (x *Explosions) Expire(now time.Time) {
	kept := x.active[:0]
	for _, e := range x.active {
		if now.Sub(e.StartedAt) < ExplosionLifetime {
			kept = append(kept, e)
		}
	}
	x.active = kept
	for id, at := range x.seen {
		if now.Sub(at) >= seenTTL {
			delete(x.seen, id)
		}
	}
}

func (x *Explosions) Active() []Explosion { return x.active }

func (x *Explosions) Len() int { return len(x.active) }
