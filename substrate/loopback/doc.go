// Package loopback provides an in-process wirepack.Substrate for testing and
// single-machine pipelines. A World wires n ranks together through shared
// memory: point-to-point traffic moves through per-rank mailboxes, and
// collectives rendezvous in sequence-numbered rounds where the last arriving
// rank performs the exchange for everyone.
//
// Transfers honor committed layouts. Composite types copy member by member
// through their declared offsets, so padding bytes never travel and a
// descriptor behaves on loopback the way it would on a real transport.
//
// Each rank drives its own Endpoint, usually from its own goroutine:
//
//	world, _ := loopback.NewWorld(4)
//	err := world.Spawn(func(rank int, s wirepack.Substrate) error {
//	    // build a runtime on s and exchange data
//	    return s.Finalize()
//	})
//
// The world comm is always open under handle wirepack.CommWorld. Mailboxes
// close once every rank has finalized, releasing any receiver still blocked.
package loopback
