package sim

// ExpireLifetimes despawns every entity whose lifetime has run out at tick t
// and returns their ids.
func ExpireLifetimes(w *World, t Tick) []EntityID {
	var expired []EntityID
	for _, e := range w.Entities() {
		if e.Lifetime != nil && t >= e.Lifetime.DespawnTick() {
			expired = append(expired, e.ID)
		}
	}
	for _, id := range expired {
		w.Despawn(id)
	}
	return expired
}
