package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/sim"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTopScores(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	for i, score := range []int32{3, -2, 7} {
		id, err := db.RecordConnect(uint64(i+1), sim.PickPlayerName(sim.ClientID(i+1)), now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		if err := db.RecordDisconnect(id, now.Add(time.Minute), score); err != nil {
			t.Fatal(err)
		}
	}
	// still connected, not listed
	if _, err := db.RecordConnect(9, "Jinx", now); err != nil {
		t.Fatal(err)
	}

	top, err := db.TopScores(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Score != 7 || top[0].ClientID != 3 || top[1].Score != 3 {
		t.Errorf("unexpected top scores %+v", top)
	}
	if top[0].ConnectedAt.Unix() != now.Add(2*time.Second).Unix() {
		t.Errorf("connected_at lost: %v", top[0].ConnectedAt)
	}
}

func TestAnalyticsFlushesOnStop(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db)
	victim := sim.ClientID(2)
	for i := 0; i < 3; i++ {
		a.TrackHit(sim.BulletHitEvent{Tick: sim.Tick(100 + i), BulletOwner: 1, Victim: &victim}, time.Now())
	}
	a.TrackHit(sim.BulletHitEvent{Tick: 200, BulletOwner: 1}, time.Now())
	a.Stop()

	n, err := db.HitCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || a.Written() != 4 || a.Dropped() != 0 {
		t.Errorf("expected 4 hits written, got %d (written %d, dropped %d)", n, a.Written(), a.Dropped())
	}
}

func TestAnalyticsWithoutDB(t *testing.T) {
	a := NewAnalytics(nil)
	a.TrackHit(sim.BulletHitEvent{Tick: 1}, time.Now())
	a.Stop()
	if a.Written() != 0 {
		t.Error("nothing should be written without a database")
	}
}
