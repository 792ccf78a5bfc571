package sim

// BulletHitEvent is emitted when a bullet touches a ship or ball.
type BulletHitEvent struct {
	Tick        Tick
	BulletID    EntityID
	BulletOwner ClientID
	BulletColor Color
	Victim      *ClientID
	Position    Vec2
}

// HitEvents turns contacts into at most one event per bullet. Wall contacts
// despawn the bullet silently. The returned ids are the bullets to remove.
func HitEvents(w *World, contacts []Contact, t Tick) ([]BulletHitEvent, []EntityID) {
	done := make(map[EntityID]bool)
	var events []BulletHitEvent
	var remove []EntityID
	for _, c := range contacts {
		if c.Wall {
			if e, ok := w.Get(c.A); ok && e.Kind == KindBullet && !done[c.A] {
				done[c.A] = true
				remove = append(remove, c.A)
			}
			continue
		}
		for _, pair := range [2][2]EntityID{{c.A, c.B}, {c.B, c.A}} {
			bullet, ok := w.Get(pair[0])
			if !ok || bullet.Kind != KindBullet || done[bullet.ID] {
				continue
			}
			other, ok := w.Get(pair[1])
			if !ok {
				continue
			}
			done[bullet.ID] = true
			remove = append(remove, bullet.ID)
			ev := BulletHitEvent{
				Tick:        t,
				BulletID:    bullet.ID,
				BulletColor: bullet.Color,
				Position:    c.Point,
			}
			if bullet.Bullet != nil {
				ev.BulletOwner = bullet.Bullet.Owner
			}
			if other.Kind == KindPlayer && other.Player != nil {
				victim := other.Player.ClientID
				ev.Victim = &victim
			}
			events = append(events, ev)
		}
	}
	return events, remove
}

// ApplyHitScore mutates scores for one hit. The victim loses a point and the
// shooter gains one; a self-hit nets zero. Server only.
func ApplyHitScore(w *World, ev BulletHitEvent) {
	if ev.Victim == nil {
		return
	}
	if victim, ok := w.PlayerByClient(*ev.Victim); ok {
		victim.Score--
	}
	if shooter, ok := w.PlayerByClient(ev.BulletOwner); ok {
		shooter.Score++
	}
}
