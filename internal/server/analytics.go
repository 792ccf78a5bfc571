package server

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	analyticsBuffer     = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// Analytics persists hit events with batched background writes.
type Analytics struct {
	db     *DB
	events chan HitRow
	stop   chan struct{}
	wg     sync.WaitGroup

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewAnalytics creates and starts the background writer. A nil db discards
// everything.
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan HitRow, analyticsBuffer),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// TrackHit enqueues a hit without blocking the game loop.
func (a *Analytics) TrackHit(ev sim.BulletHitEvent, at time.Time) {
	row := HitRow{
		Tick:    int32(ev.Tick),
		Shooter: uint64(ev.BulletOwner),
		X:       ev.Position.X,
		Y:       ev.Position.Y,
		At:      at,
	}
	if ev.Victim != nil {
		v := uint64(*ev.Victim)
		row.Victim = &v
	}
	select {
	case a.events <- row:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of events lost to a full queue.
func (a *Analytics) Dropped() uint64 { return a.dropped.Load() }

// Written is the number of events persisted.
func (a *Analytics) Written() uint64 { return a.written.Load() }

// Stop drains pending events and waits for the writer.
func (a *Analytics) Stop() {
	close(a.stop)
	a.wg.Wait()
}

func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]HitRow, 0, analyticsBatchSize)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			for drained := false; !drained; {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					drained = true
				}
			}
			a.flush(batch)
			return
		}
	}
}

func (a *Analytics) flush(batch []HitRow) {
	if a.db == nil || len(batch) == 0 {
		return
	}
	if err := a.db.InsertHits(batch); err != nil {
		log.Printf("analytics: %v", err)
		return
	}
	a.written.Add(uint64(len(batch)))
}
