// Package runtime composes a working process out of a substrate: it wires a
// descriptor table and a teardown registry to the substrate, resolves the
// world communicator, and owns the final teardown ordering.
//
// A process builds exactly one Runtime per substrate and finalizes it once
// all communication is done:
//
//	rt, err := runtime.New(subst)
//	if err != nil {
//	    return err
//	}
//	defer rt.Finalize()
//
//	world := rt.World()
//	// exchange payloads through the collective package
//
// Finalize destroys in dependency order. Descriptors release first, then any
// remaining registered resources (duplicated contexts, custom operators),
// and only then does the substrate shut down. If the substrate was already
// finalized behind the runtime's back, destructors are dropped rather than
// invoked against a dead substrate.
package runtime
