// Package wirepack lets plain Go aggregate values transit a message-passing
// substrate without hand-written wire descriptors.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wirepack/            Root package with the Substrate interface and handle types
//	├── runtime/         Lifecycle object owning substrate, registry and descriptors
//	├── reflector/       Structural reflection over aggregate Go types
//	├── datatype/        Wire-format descriptors built from reflected layouts
//	├── payload/         Canonical (buffer, count, descriptor) message payloads
//	├── registry/        Deferred-destruction table for substrate resources
//	├── comm/            Communication contexts (rank, size, duplication)
//	├── collective/      Thin adapters over the substrate's transmission primitives
//	├── substrate/       In-process loopback substrate for tests and demos
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Wire a runtime over a substrate and broadcast a struct:
//
//	rt, err := runtime.New(subst)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Finalize()
//
//	type Point struct{ X, Y int32 }
//
//	in, _ := payload.Of(rt.Types(), &Point{X: 10, Y: 20})
//	out, err := collective.Broadcast(rt.World(), in, wirepack.RankRoot)
//
// The first payload over a new aggregate type reflects its member layout,
// commits one struct descriptor with the substrate, and memoizes the handle
// for the life of the process.
//
// # Descriptors
//
// Aggregate types are reflected automatically: member kinds, byte offsets and
// fixed-array extents are derived from the type itself, verified against a
// recomputed layout, and rejected if anything would mis-offset on the wire.
// Types that cannot be reflected (or that want an explicit wire contract)
// implement reflector.Describer and list their wire members by field name.
//
// # Ownership
//
// A payload is either a borrowed view over caller-owned memory or an owned,
// freshly allocated buffer. Borrowed payloads never copy; owned payloads may
// be aliased freely and live as long as any holder. See package payload.
//
// # Teardown
//
// Committed descriptors, duplicated contexts and custom operators are
// registered for deferred destruction. runtime.Runtime.Finalize runs exactly
// one sweep in a fixed order (descriptors, then remaining registry entries,
// then the substrate itself); once the substrate reports finalized, sweeps
// drop entries without touching it.
//
// # Thread Safety
//
// Descriptor resolution and registry mutation are safe for concurrent use.
// A payload value is not synchronized; aliasing goroutines must coordinate
// writes themselves.
package wirepack
