// Package datatype builds and caches wire-format descriptors for Go types.
//
// A descriptor is an opaque substrate handle identifying the wire shape of a
// type. Builtin scalars resolve to the substrate's own predeclared handles
// and cost nothing; aggregate types are reflected on first use, committed
// through the substrate's struct-description primitive, and memoized so one
// descriptor exists per distinct type per table. Construction failures are
// memoized too: a type that failed to describe stays unusable without
// corrupting any other type's state.
//
// Every committed descriptor is registered for deferred destruction.
// Table.DestroyAll is the one-time sweep releasing them before the substrate
// finalizes.
package datatype
