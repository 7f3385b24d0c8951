package collective_test

import (
	"testing"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/collective"
	"github.com/typemesh/wirepack/payload"
	"github.com/typemesh/wirepack/runtime"
	"github.com/typemesh/wirepack/substrate/loopback"
)

// run spins up an in-process world and drives fn once per rank, each with
// its own runtime.
func run(t *testing.T, size int, fn func(rt *runtime.Runtime) error) {
	t.Helper()
	w, err := loopback.NewWorld(size)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	err = w.Spawn(func(_ int, s wirepack.Substrate) error {
		rt, err := runtime.New(s)
		if err != nil {
			return err
		}
		defer rt.Finalize()
		return fn(rt)
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestSendReceive_Payload(t *testing.T) {
	type sample struct {
		ID    int64
		Value float64
	}

	run(t, 2, func(rt *runtime.Runtime) error {
		world := rt.World()
		if world.Rank() == 0 {
			return collective.SendSlice(world, []sample{
				{ID: 1, Value: 0.5},
				{ID: 2, Value: 1.5},
			}, 1, 0)
		}

		p, st, err := collective.Receive[sample](world, 0, 0)
		if err != nil {
			return err
		}
		if st.Count != 2 {
			t.Errorf("status count = %d", st.Count)
		}
		if got := p.Slice(); got[0].ID != 1 || got[1].Value != 1.5 {
			t.Errorf("received %+v", got)
		}
		return nil
	})
}

func TestSendValue_ReceiveInto(t *testing.T) {
	run(t, 2, func(rt *runtime.Runtime) error {
		world := rt.World()
		if world.Rank() == 0 {
			return collective.SendValue(world, int32(77), 1, 9)
		}

		p, err := payload.Allocate[int32](world.Types(), 1)
		if err != nil {
			return err
		}
		st, err := collective.ReceiveInto(world, p, wirepack.RankAny, 9)
		if err != nil {
			return err
		}
		if st.Source != 0 || *p.At(0) != 77 {
			t.Errorf("got %d from rank %d", *p.At(0), st.Source)
		}
		return nil
	})
}

func TestBroadcast_SizesNonRootRanks(t *testing.T) {
	run(t, 3, func(rt *runtime.Runtime) error {
		world := rt.World()

		var p payload.Payload[int32]
		if world.Root(wirepack.RankRoot) {
			var err error
			if p, err = payload.FromSlice(world.Types(), []int32{4, 8, 15, 16}); err != nil {
				return err
			}
		}

		out, err := collective.Broadcast(world, p, wirepack.RankRoot)
		if err != nil {
			return err
		}
		if out.Count() != 4 {
			t.Errorf("rank %d: count = %d", world.Rank(), out.Count())
		}
		if s := out.Slice(); s[0] != 4 || s[3] != 16 {
			t.Errorf("rank %d: broadcast %v", world.Rank(), s)
		}
		return nil
	})
}

func TestBroadcastValue_Struct(t *testing.T) {
	type point struct {
		X, Y int32
	}

	run(t, 4, func(rt *runtime.Runtime) error {
		world := rt.World()

		var v point
		if world.Root(wirepack.RankRoot) {
			v = point{X: 10, Y: 20}
		}
		got, err := collective.BroadcastValue(world, v, wirepack.RankRoot)
		if err != nil {
			return err
		}
		if got.X != 10 || got.Y != 20 {
			t.Errorf("rank %d: got %+v", world.Rank(), got)
		}
		return nil
	})
}

func TestReduce_BuiltinSum(t *testing.T) {
	run(t, 4, func(rt *runtime.Runtime) error {
		world := rt.World()

		in, err := payload.FromSlice(world.Types(), []int64{int64(world.Rank()), 100})
		if err != nil {
			return err
		}
		out, err := collective.Reduce(world, in, wirepack.OpSum, wirepack.RankRoot)
		if err != nil {
			return err
		}
		if world.Root(wirepack.RankRoot) {
			if s := out.Slice(); s[0] != 6 || s[1] != 400 {
				t.Errorf("reduced %v", s)
			}
		} else if out.Count() != 0 {
			t.Errorf("rank %d: non-root got %d elements", world.Rank(), out.Count())
		}
		return nil
	})
}

func TestAllreduce_Min(t *testing.T) {
	run(t, 3, func(rt *runtime.Runtime) error {
		world := rt.World()

		v := float32(world.Rank()) + 0.25
		in, err := payload.Of(world.Types(), &v)
		if err != nil {
			return err
		}
		out, err := collective.Allreduce(world, in, wirepack.OpMin)
		if err != nil {
			return err
		}
		if got := *out.At(0); got != 0.25 {
			t.Errorf("rank %d: min = %v", world.Rank(), got)
		}
		return nil
	})
}

func TestNewOp_CustomReduction(t *testing.T) {
	run(t, 3, func(rt *runtime.Runtime) error {
		world := rt.World()

		op, err := collective.NewOp(world, func(a, b int32) int32 {
			if a > b {
				return a - b
			}
			return b - a
		}, true)
		if err != nil {
			return err
		}

		v := int32(world.Rank() + 1) // 1, 2, 3
		in, err := payload.Of(world.Types(), &v)
		if err != nil {
			return err
		}
		out, err := collective.Allreduce(world, in, op)
		if err != nil {
			return err
		}
		// |(|1-2|)-3| = 2 folding in rank order.
		if got := *out.At(0); got != 2 {
			t.Errorf("rank %d: folded %d", world.Rank(), got)
		}
		return collective.FreeOp(world, op)
	})
}

func TestGatherScatter_RoundTrip(t *testing.T) {
	run(t, 3, func(rt *runtime.Runtime) error {
		world := rt.World()

		v := int32(world.Rank()) * 11
		in, err := payload.Of(world.Types(), &v)
		if err != nil {
			return err
		}
		all, err := collective.Gather(world, in, wirepack.RankRoot)
		if err != nil {
			return err
		}
		if world.Root(wirepack.RankRoot) {
			if s := all.Slice(); s[0] != 0 || s[1] != 11 || s[2] != 22 {
				t.Errorf("gathered %v", s)
			}
		}

		back, err := collective.Scatter(world, all, wirepack.RankRoot)
		if err != nil {
			return err
		}
		if got := *back.At(0); got != v {
			t.Errorf("rank %d: round trip %d != %d", world.Rank(), got, v)
		}
		return nil
	})
}

func TestScatter_UnevenCount(t *testing.T) {
	run(t, 2, func(rt *runtime.Runtime) error {
		world := rt.World()

		var p payload.Payload[int32]
		if world.Root(wirepack.RankRoot) {
			var err error
			if p, err = payload.FromSlice(world.Types(), []int32{1, 2, 3}); err != nil {
				return err
			}
		}
		if _, err := collective.Scatter(world, p, wirepack.RankRoot); err == nil {
			t.Errorf("rank %d: uneven scatter should fail", world.Rank())
		}
		return nil
	})
}

func TestAllgather_Struct(t *testing.T) {
	type reading struct {
		Rank int32
		Temp float64
	}

	run(t, 3, func(rt *runtime.Runtime) error {
		world := rt.World()

		v := reading{Rank: int32(world.Rank()), Temp: float64(world.Rank()) * 2.5}
		in, err := payload.Of(world.Types(), &v)
		if err != nil {
			return err
		}
		all, err := collective.Allgather(world, in)
		if err != nil {
			return err
		}
		s := all.Slice()
		for i := range s {
			if s[i].Rank != int32(i) || s[i].Temp != float64(i)*2.5 {
				t.Errorf("rank %d: slot %d holds %+v", world.Rank(), i, s[i])
				break
			}
		}
		return nil
	})
}

func TestBarrier(t *testing.T) {
	run(t, 4, func(rt *runtime.Runtime) error {
		for i := 0; i < 2; i++ {
			if err := collective.Barrier(rt.World()); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestProbe_Envelope(t *testing.T) {
	run(t, 2, func(rt *runtime.Runtime) error {
		world := rt.World()
		if world.Rank() == 0 {
			return collective.SendSlice(world, []int16{1, 2, 3}, 1, 5)
		}

		st, err := collective.Probe(world, 0, wirepack.TagAny)
		if err != nil {
			return err
		}
		if st.Source != 0 || st.Tag != 5 || st.Count != 3 {
			t.Errorf("probe status = %+v", st)
		}
		// The message is still pending after the probe.
		p, _, err := collective.Receive[int16](world, 0, 5)
		if err != nil {
			return err
		}
		if p.Count() != 3 {
			t.Errorf("received %d elements", p.Count())
		}
		return nil
	})
}

func TestAsync_SendReceive(t *testing.T) {
	run(t, 2, func(rt *runtime.Runtime) error {
		world := rt.World()

		if world.Rank() == 0 {
			out, err := payload.FromSlice(world.Types(), []int64{42, 43})
			if err != nil {
				return err
			}
			req := collective.SendAsync(world, out, 1, 0)
			_, err = req.Wait()
			return err
		}

		in, err := payload.Allocate[int64](world.Types(), 2)
		if err != nil {
			return err
		}
		req := collective.ReceiveIntoAsync(world, in, 0, 0)
		if err := collective.WaitAll(req); err != nil {
			return err
		}
		st, done, err := req.Test()
		if err != nil || !done {
			t.Errorf("completed request: done=%v err=%v", done, err)
		}
		if st.Count != 2 || *in.At(0) != 42 {
			t.Errorf("async receive: status %+v, first %d", st, *in.At(0))
		}
		return nil
	})
}
