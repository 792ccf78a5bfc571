package replay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

func TestRecordAndRead(t *testing.T) {
	root := t.TempDir()
	w, err := Create(root, protocol.ProtocolID, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(w.Dir()) != root || w.ID() == "" {
		t.Fatalf("unexpected recording dir %q", w.Dir())
	}

	world := sim.NewWorld()
	sim.SpawnBalls(world)
	for tick := int32(100); tick < 110; tick++ {
		snap, err := protocol.BuildSnapshot(world, sim.Tick(tick))
		if err != nil {
			t.Fatal(err)
		}
		if err := w.WriteSnapshot(snap); err != nil {
			t.Fatal(err)
		}
	}
	victim := sim.ClientID(4)
	hits := []sim.BulletHitEvent{
		{Tick: 103, BulletID: sim.BulletID(2, 99), BulletOwner: 2, Victim: &victim, Position: sim.Vec2{X: 1, Y: 2}},
		{Tick: 107, BulletID: sim.BulletID(4, 101), BulletOwner: 4, Position: sim.Vec2{X: -5}},
	}
	for _, ev := range hits {
		if err := w.WriteHit(ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHit(hits[0]); err != ErrClosed {
		t.Errorf("write after close: expected ErrClosed, got %v", err)
	}

	r, err := Open(w.Dir())
	if err != nil {
		t.Fatal(err)
	}
	m := r.Manifest()
	if m.Frames != 10 || m.Events != 2 || m.FirstTick != 100 || m.LastTick != 109 || m.ClosedAt == nil {
		t.Errorf("unexpected manifest %+v", m)
	}

	var ticks []int32
	err = r.Frames(func(s protocol.Snapshot) error {
		ticks = append(ticks, s.Tick)
		if len(s.Entities) != sim.NumBalls {
			t.Errorf("frame %d: %d entities", s.Tick, len(s.Entities))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 10 || ticks[0] != 100 || ticks[9] != 109 {
		t.Errorf("unexpected frame ticks %v", ticks)
	}

	var recs []HitRecord
	if err := r.Events(func(h HitRecord) error { recs = append(recs, h); return nil }); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Victim == nil || *recs[0].Victim != 4 || recs[1].Victim != nil {
		t.Fatalf("unexpected events %+v", recs)
	}
	if recs[0].Bullet != uint64(sim.BulletID(2, 99)) || recs[1].X != -5 {
		t.Errorf("event fields lost: %+v", recs)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("expected error for directory without manifest")
	}
}
