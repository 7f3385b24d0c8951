package loopback

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/typemesh/wirepack"
)

func TestTypeStore_CommitStruct(t *testing.T) {
	w, err := NewWorld(1)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	ep := w.Endpoint(0)

	h, err := ep.CommitStruct([]wirepack.StructMember{
		{Type: wirepack.TypeInt32, Offset: 0, Extent: 1},
		{Type: wirepack.TypeInt32, Offset: 4, Extent: 1},
	})
	if err != nil {
		t.Fatalf("CommitStruct: %v", err)
	}
	if h.Builtin() || !h.Valid() {
		t.Fatalf("committed handle %d should be valid and non-builtin", h)
	}

	size, err := ep.TypeSize(h)
	if err != nil {
		t.Fatalf("TypeSize: %v", err)
	}
	if size != 8 {
		t.Fatalf("size = %d, want 8", size)
	}

	if err := ep.FreeType(h); err != nil {
		t.Fatalf("FreeType: %v", err)
	}
	if err := ep.FreeType(wirepack.TypeInt32); err == nil {
		t.Fatal("freeing a builtin type should fail")
	}
}

func TestWorld_SendRecv(t *testing.T) {
	w, err := NewWorld(2)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}

	err = w.Spawn(func(rank int, s wirepack.Substrate) error {
		switch rank {
		case 0:
			vals := []int32{3, 5, 7}
			return s.Send(unsafe.Pointer(&vals[0]), 3, wirepack.TypeInt32, 1, 42, wirepack.CommWorld)
		default:
			got := make([]int32, 3)
			st, err := s.Recv(unsafe.Pointer(&got[0]), 3, wirepack.TypeInt32, 0, 42, wirepack.CommWorld)
			if err != nil {
				return err
			}
			if st.Source != 0 || st.Tag != 42 || st.Count != 3 {
				t.Errorf("status = %+v", st)
			}
			if got[0] != 3 || got[1] != 5 || got[2] != 7 {
				t.Errorf("received %v", got)
			}
			return nil
		}
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_RecvWildcards(t *testing.T) {
	w, _ := NewWorld(2)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		if rank == 0 {
			v := int64(99)
			return s.Send(unsafe.Pointer(&v), 1, wirepack.TypeInt64, 1, 7, wirepack.CommWorld)
		}

		st, err := s.Probe(wirepack.RankAny, wirepack.TagAny, wirepack.CommWorld)
		if err != nil {
			return err
		}
		if st.Source != 0 || st.Tag != 7 || st.Count != 1 {
			t.Errorf("probe status = %+v", st)
		}

		var got int64
		st, err = s.Recv(unsafe.Pointer(&got), 1, wirepack.TypeInt64, wirepack.RankAny, wirepack.TagAny, wirepack.CommWorld)
		if err != nil {
			return err
		}
		if got != 99 || st.Source != 0 {
			t.Errorf("got %d from %d", got, st.Source)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_RecvTruncation(t *testing.T) {
	w, _ := NewWorld(2)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		if rank == 0 {
			vals := []int32{1, 2, 3, 4}
			return s.Send(unsafe.Pointer(&vals[0]), 4, wirepack.TypeInt32, 1, 0, wirepack.CommWorld)
		}
		got := make([]int32, 2)
		_, err := s.Recv(unsafe.Pointer(&got[0]), 2, wirepack.TypeInt32, 0, 0, wirepack.CommWorld)
		if err == nil {
			t.Error("oversized message should not fit a short buffer")
		} else if !strings.Contains(err.Error(), "truncated") {
			t.Errorf("unexpected error: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

// Composite transfers must move member blocks through their declared
// offsets, leaving destination padding untouched.
func TestWorld_CompositeCopySkipsPadding(t *testing.T) {
	type padded struct {
		A int8
		_ [7]byte
		B int64
	}

	w, _ := NewWorld(2)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		h, err := s.CommitStruct([]wirepack.StructMember{
			{Type: wirepack.TypeInt8, Offset: 0, Extent: 1},
			{Type: wirepack.TypeInt64, Offset: 8, Extent: 1},
		})
		if err != nil {
			return err
		}

		if rank == 0 {
			v := padded{A: -4, B: 1 << 40}
			return s.Send(unsafe.Pointer(&v), 1, h, 1, 0, wirepack.CommWorld)
		}

		var got padded
		if _, err := s.Recv(unsafe.Pointer(&got), 1, h, 0, 0, wirepack.CommWorld); err != nil {
			return err
		}
		if got.A != -4 || got.B != 1<<40 {
			t.Errorf("received %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_Bcast(t *testing.T) {
	w, _ := NewWorld(4)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		vals := []int32{0, 0}
		if rank == 0 {
			vals[0], vals[1] = 10, 20
		}
		if err := s.Bcast(unsafe.Pointer(&vals[0]), 2, wirepack.TypeInt32, wirepack.RankRoot, wirepack.CommWorld); err != nil {
			return err
		}
		if vals[0] != 10 || vals[1] != 20 {
			t.Errorf("rank %d: broadcast result %v", rank, vals)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

// A root outside the context fails the round for every rank instead of
// crashing the rank that happens to execute it.
func TestWorld_RootOutOfRange(t *testing.T) {
	w, _ := NewWorld(2)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		v := int32(rank)
		err := s.Bcast(unsafe.Pointer(&v), 1, wirepack.TypeInt32, 5, wirepack.CommWorld)
		if err == nil {
			t.Errorf("rank %d: broadcast accepted root 5 in a 2-rank context", rank)
		} else if !strings.Contains(err.Error(), "out of range") {
			t.Errorf("rank %d: unexpected error: %v", rank, err)
		}

		var got int32
		if err := s.Scatter(unsafe.Pointer(&v), unsafe.Pointer(&got), 1, wirepack.TypeInt32, -1, wirepack.CommWorld); err == nil {
			t.Errorf("rank %d: scatter accepted a negative root", rank)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_ReduceSum(t *testing.T) {
	w, _ := NewWorld(4)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		in := int64(rank + 1)
		var out int64
		if err := s.Reduce(unsafe.Pointer(&in), unsafe.Pointer(&out), 1, wirepack.TypeInt64, wirepack.OpSum, wirepack.RankRoot, wirepack.CommWorld); err != nil {
			return err
		}
		if rank == 0 && out != 10 {
			t.Errorf("sum = %d, want 10", out)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_AllreduceMax(t *testing.T) {
	w, _ := NewWorld(3)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		in := float64(rank) * 1.5
		var out float64
		if err := s.Allreduce(unsafe.Pointer(&in), unsafe.Pointer(&out), 1, wirepack.TypeFloat64, wirepack.OpMax, wirepack.CommWorld); err != nil {
			return err
		}
		if out != 3.0 {
			t.Errorf("rank %d: max = %v, want 3", rank, out)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_CustomOp(t *testing.T) {
	w, _ := NewWorld(2)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		op, err := s.CommitOp(func(a, b unsafe.Pointer, count int, _ wirepack.TypeHandle) {
			av := unsafe.Slice((*int32)(a), count)
			bv := unsafe.Slice((*int32)(b), count)
			for i := range bv {
				bv[i] = av[i] * bv[i]
			}
		}, true)
		if err != nil {
			return err
		}

		in := int32(rank + 2) // 2, 3
		var out int32
		if err := s.Allreduce(unsafe.Pointer(&in), unsafe.Pointer(&out), 1, wirepack.TypeInt32, op, wirepack.CommWorld); err != nil {
			return err
		}
		if out != 6 {
			t.Errorf("rank %d: product = %d, want 6", rank, out)
		}
		return s.FreeOp(op)
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_GatherScatter(t *testing.T) {
	w, _ := NewWorld(3)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		// Gather one value per rank at the root.
		in := int32(rank * 10)
		var all [3]int32
		if err := s.Gather(unsafe.Pointer(&in), 1, wirepack.TypeInt32, unsafe.Pointer(&all[0]), wirepack.RankRoot, wirepack.CommWorld); err != nil {
			return err
		}
		if rank == 0 && (all[0] != 0 || all[1] != 10 || all[2] != 20) {
			t.Errorf("gathered %v", all)
		}

		// Scatter a distinct value back out.
		src := [3]int32{7, 8, 9}
		var got int32
		if err := s.Scatter(unsafe.Pointer(&src[0]), unsafe.Pointer(&got), 1, wirepack.TypeInt32, wirepack.RankRoot, wirepack.CommWorld); err != nil {
			return err
		}
		if got != int32(7+rank) {
			t.Errorf("rank %d: scattered %d", rank, got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_Allgather(t *testing.T) {
	w, _ := NewWorld(3)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		in := int32(rank + 1)
		var all [3]int32
		if err := s.Allgather(unsafe.Pointer(&in), 1, wirepack.TypeInt32, unsafe.Pointer(&all[0]), wirepack.CommWorld); err != nil {
			return err
		}
		if all != [3]int32{1, 2, 3} {
			t.Errorf("rank %d: allgathered %v", rank, all)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestWorld_DupComm(t *testing.T) {
	w, _ := NewWorld(2)

	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		dup, err := s.DupComm(wirepack.CommWorld)
		if err != nil {
			return err
		}
		if dup == wirepack.CommWorld {
			t.Error("duplicate should have its own handle")
		}
		size, err := s.CommSize(dup)
		if err != nil {
			return err
		}
		if size != 2 {
			t.Errorf("dup size = %d", size)
		}

		// Traffic on the duplicate stays on the duplicate.
		if rank == 0 {
			v := int32(5)
			if err := s.Send(unsafe.Pointer(&v), 1, wirepack.TypeInt32, 1, 0, dup); err != nil {
				return err
			}
		} else {
			var v int32
			if _, err := s.Recv(unsafe.Pointer(&v), 1, wirepack.TypeInt32, 0, 0, dup); err != nil {
				return err
			}
			if v != 5 {
				t.Errorf("received %d over duplicate", v)
			}
		}
		return s.FreeComm(dup)
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := w.Endpoint(0).FreeComm(wirepack.CommWorld); err == nil {
		t.Fatal("freeing the world context should fail")
	}
}

func TestWorld_Barrier(t *testing.T) {
	w, _ := NewWorld(4)
	err := w.Spawn(func(rank int, s wirepack.Substrate) error {
		for i := 0; i < 3; i++ {
			if err := s.Barrier(wirepack.CommWorld); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestEndpoint_Finalize(t *testing.T) {
	w, _ := NewWorld(2)

	ep := w.Endpoint(0)
	if ep.Finalized() {
		t.Fatal("fresh endpoint reports finalized")
	}
	if err := ep.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := ep.Finalize(); err != nil {
		t.Fatalf("repeat Finalize: %v", err)
	}
	if !ep.Finalized() {
		t.Fatal("endpoint should report finalized")
	}

	var v int32
	if err := ep.Send(unsafe.Pointer(&v), 1, wirepack.TypeInt32, 1, 0, wirepack.CommWorld); err == nil {
		t.Fatal("finalized endpoint accepted a send")
	}
	if _, err := ep.TypeSize(wirepack.TypeInt32); err == nil {
		t.Fatal("finalized endpoint answered a type query")
	}

	// Last finalize closes mailboxes and releases blocked receivers.
	other := w.Endpoint(1)
	done := make(chan error, 1)
	go func() {
		var got int32
		_, err := other.Recv(unsafe.Pointer(&got), 1, wirepack.TypeInt32, 0, 0, wirepack.CommWorld)
		done <- err
	}()

	// The receiver owns its endpoint; finalize it from here once it is
	// parked. Closing is what unblocks it, so a short race is tolerable.
	if err := other.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := <-done; err == nil {
		t.Fatal("blocked receive should fail once the world shuts down")
	}
}
