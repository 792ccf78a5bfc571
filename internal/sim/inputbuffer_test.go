package sim

import (
	"errors"
	"testing"
)

func held(a Action) ActionState { return ActionState{}.Next(a) }

func TestInputBufferWriteOnce(t *testing.T) {
	b := NewInputBuffer(0)
	if err := b.Insert(300, held(ActionUp)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := b.Insert(300, held(ActionDown))
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected write conflict, got %v", err)
	}
	got, ok := b.Get(300)
	if !ok || !got.Has(ActionUp) || got.Has(ActionDown) {
		t.Errorf("expected Up at 300, got %v (ok=%v)", got.Pressed, ok)
	}

	// identical rewrite is idempotent
	if err := b.Insert(300, held(ActionUp)); err != nil {
		t.Errorf("identical insert should be a no-op, got %v", err)
	}
}

func TestInputBufferStaleCoast(t *testing.T) {
	b := NewInputBuffer(0)
	if err := b.Insert(500, held(ActionUp)); err != nil {
		t.Fatal(err)
	}

	in := b.Resolve(500)
	if !in.Exact || in.Staleness != 0 || !in.State.Has(ActionUp) {
		t.Errorf("tick 500: expected exact Up, got %+v", in)
	}

	in = b.Resolve(505)
	if in.Exact || in.Staleness != 5 || !in.State.Has(ActionUp) {
		t.Errorf("tick 505: expected stale Up with staleness 5, got %+v", in)
	}

	in = b.Resolve(506)
	if in.Staleness != 6 || !in.State.Has(ActionUp) {
		t.Errorf("tick 506: staleness 6 should still apply Up, got %+v", in)
	}

	in = b.Resolve(507)
	if in.Staleness != 7 || in.State != (ActionState{}) {
		t.Errorf("tick 507: expected default with staleness 7, got %+v", in)
	}
}

func TestInputBufferResolveEmpty(t *testing.T) {
	b := NewInputBuffer(16)
	in := b.Resolve(42)
	if in.State != (ActionState{}) || in.Staleness != 0 || in.Exact {
		t.Errorf("expected default input, got %+v", in)
	}
}

func TestInputBufferEviction(t *testing.T) {
	b := NewInputBuffer(8)
	for tick := Tick(0); tick <= 20; tick++ {
		if err := b.Insert(tick, held(ActionRight)); err != nil {
			t.Fatalf("insert %d: %v", tick, err)
		}
	}
	if _, ok := b.Get(5); ok {
		t.Error("tick 5 should have been evicted")
	}
	if err := b.Insert(5, held(ActionLeft)); !errors.Is(err, ErrInputEvicted) {
		t.Errorf("expected eviction error, got %v", err)
	}
	if _, ok := b.Get(13); !ok {
		t.Error("tick 13 should still be in the window")
	}
}

func TestInputBufferGetLastWithTick(t *testing.T) {
	b := NewInputBuffer(0)
	b.Insert(10, held(ActionUp))
	b.Insert(20, held(ActionDown))

	tick, st, ok := b.GetLastWithTick(15)
	if !ok || tick != 10 || !st.Has(ActionUp) {
		t.Errorf("expected tick 10 Up, got %d %v %v", tick, st.Pressed, ok)
	}
	tick, _, ok = b.GetLastWithTick(99)
	if !ok || tick != 20 {
		t.Errorf("expected latest tick 20, got %d %v", tick, ok)
	}
	if _, _, ok := b.GetLastWithTick(9); ok {
		t.Error("nothing recorded at or before tick 9")
	}
}

func TestInputBufferRange(t *testing.T) {
	b := NewInputBuffer(0)
	for _, tick := range []Tick{3, 4, 6} {
		b.Insert(tick, held(ActionFire))
	}
	got := b.Range(2, 6)
	if len(got) != 3 || got[0].Tick != 3 || got[2].Tick != 6 {
		t.Errorf("unexpected range: %+v", got)
	}
}

func TestInputBufferNegativeTick(t *testing.T) {
	b := NewInputBuffer(0)
	if err := b.Insert(-1, held(ActionUp)); !errors.Is(err, ErrNegativeTick) {
		t.Errorf("expected negative tick error, got %v", err)
	}
}
