package registry

import (
	"errors"
	"sync"
	"testing"

	wperrors "github.com/typemesh/wirepack/errors"
)

func TestRegistry_AddFirstWins(t *testing.T) {
	r := New()

	first, second := 0, 0
	if !r.Add(1, func() error { first++; return nil }) {
		t.Fatal("first Add should insert")
	}
	if r.Add(1, func() error { second++; return nil }) {
		t.Fatal("re-Add of known handle should be ignored")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	if err := r.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if first != 1 || second != 0 {
		t.Fatalf("destructors ran first=%d second=%d, want 1/0", first, second)
	}
}

func TestRegistry_AddRejectsInvalid(t *testing.T) {
	r := New()

	if r.Add(0, func() error { return nil }) {
		t.Error("handle 0 should be rejected")
	}
	if r.Add(1, nil) {
		t.Error("nil destructor should be rejected")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_RemoveExactlyOnce(t *testing.T) {
	r := New()

	calls := 0
	r.Add(7, func() error { calls++; return nil })

	removed, err := r.Remove(7)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("first Remove should report the handle as known")
	}

	removed, err = r.Remove(7)
	if err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if removed {
		t.Fatal("second Remove should report the handle as unknown")
	}

	if calls != 1 {
		t.Fatalf("destructor ran %d times, want exactly 1", calls)
	}
}

func TestRegistry_RemoveSurfacesFailure(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	r.Add(3, func() error { return boom })

	removed, err := r.Remove(3)
	if !removed {
		t.Fatal("handle should be known")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Remove error = %v, want wrapped boom", err)
	}
	if r.Contains(3) {
		t.Fatal("failed destructor must still leave the entry removed")
	}
}

func TestRegistry_ClearSweepsAllDespiteFailures(t *testing.T) {
	r := New()

	ran := make(map[Handle]int)
	r.Add(1, func() error { ran[1]++; return nil })
	r.Add(2, func() error { ran[2]++; return errors.New("bad 2") })
	r.Add(3, func() error { ran[3]++; return nil })

	err := r.Clear()
	var sweep *wperrors.SweepError
	if !errors.As(err, &sweep) {
		t.Fatalf("Clear error = %v, want SweepError", err)
	}
	if len(sweep.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(sweep.Failures))
	}
	for h := Handle(1); h <= 3; h++ {
		if ran[h] != 1 {
			t.Errorf("destructor %d ran %d times, want 1", h, ran[h])
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", r.Len())
	}

	// A second sweep finds nothing.
	if err := r.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestRegistry_FinalizedDropsWithoutInvoking(t *testing.T) {
	finalized := false
	r := New(WithFinalizedProbe(func() bool { return finalized }))

	calls := 0
	r.Add(1, func() error { calls++; return nil })
	r.Add(2, func() error { calls++; return nil })

	finalized = true

	if err := r.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if calls != 0 {
		t.Fatalf("destructors ran %d times post-finalize, want 0", calls)
	}
	if r.Len() != 0 {
		t.Errorf("entries must still be dropped, Len = %d", r.Len())
	}
}

func TestRegistry_FinalizedRemoveLeaks(t *testing.T) {
	finalized := true
	r := New(WithFinalizedProbe(func() bool { return finalized }))

	finalized = false
	calls := 0
	r.Add(9, func() error { calls++; return nil })
	finalized = true

	removed, err := r.Remove(9)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("handle was known, Remove should report true")
	}
	if calls != 0 {
		t.Fatalf("destructor ran %d times post-finalize, want 0", calls)
	}
}

func TestRegistry_EachInsertionOrder(t *testing.T) {
	r := New()
	for h := Handle(1); h <= 5; h++ {
		r.Add(h, func() error { return nil })
	}
	r.Remove(3)

	var got []Handle
	r.Each(func(h Handle) bool {
		got = append(got, h)
		return true
	})

	want := []Handle{1, 2, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Each visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Each visited %v, want %v", got, want)
		}
	}
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base Handle) {
			defer wg.Done()
			for i := Handle(0); i < 100; i++ {
				h := base*1000 + i + 1
				r.Add(h, func() error { return nil })
				r.Remove(h)
			}
		}(Handle(g))
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatalf("Len = %d after balanced add/remove, want 0", r.Len())
	}
}
