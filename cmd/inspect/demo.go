package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/collective"
	"github.com/typemesh/wirepack/payload"
	"github.com/typemesh/wirepack/runtime"
	"github.com/typemesh/wirepack/substrate/loopback"
)

func runDemo(cfg config) error {
	return demo(cfg, os.Stdout)
}

// captureDemo runs the demonstration exchange with output collected into a
// string, for the interactive view.
func captureDemo(cfg config) (string, error) {
	var b strings.Builder
	err := demo(cfg, &b)
	return b.String(), err
}

// demo spins up an in-process world and moves catalog values through it:
// a broadcast of derived-layout structs, a reduction, and a gather. Only
// the root rank reports, so out sees a single writer.
func demo(cfg config, out io.Writer) error {
	world, err := loopback.NewWorld(cfg.WorldSize)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "world: %d ranks, %d elements per rank\n", cfg.WorldSize, cfg.Elements)

	return world.Spawn(func(rank int, s wirepack.Substrate) error {
		rt, err := runtime.New(s)
		if err != nil {
			return err
		}
		defer rt.Finalize()
		w := rt.World()

		// Broadcast a block of structured records from the root.
		var seed payload.Payload[reading]
		if w.Root(wirepack.RankRoot) {
			records := make([]reading, cfg.Elements)
			for i := range records {
				records[i] = reading{
					Sensor:    int32(i),
					Timestamp: 1700000000 + int64(i),
					Values:    [4]float32{float32(i), float32(i) * 0.5, 0, 1},
					Valid:     i%2 == 0,
				}
			}
			if seed, err = payload.FromSlice(w.Types(), records); err != nil {
				return err
			}
		}
		records, err := collective.Broadcast(w, seed, wirepack.RankRoot)
		if err != nil {
			return err
		}

		// Every rank contributes its rank-scaled totals; sum at the root.
		totals := make([]int64, cfg.Elements)
		for i := range totals {
			totals[i] = int64(rank) * int64(records.At(i).Sensor)
		}
		in, err := payload.FromSlice(w.Types(), totals)
		if err != nil {
			return err
		}
		sum, err := collective.Reduce(w, in, wirepack.OpSum, wirepack.RankRoot)
		if err != nil {
			return err
		}

		// Gather one point per rank for the closing report.
		pt, err := payload.Of(w.Types(), &point{X: int32(rank), Y: int32(rank * rank)})
		if err != nil {
			return err
		}
		pts, err := collective.Gather(w, pt, wirepack.RankRoot)
		if err != nil {
			return err
		}

		if w.Root(wirepack.RankRoot) {
			if cfg.Verbose {
				fmt.Fprintf(out, "broadcast block:\n%s", spew.Sdump(records.Slice()))
			}
			fmt.Fprintf(out, "reduced totals: %v\n", sum.Slice())
			fmt.Fprintf(out, "gathered points: %v\n", pts.Slice())
		}
		return nil
	})
}
