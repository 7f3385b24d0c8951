// Package payload provides the canonical message value consumed by every
// transmission primitive: a (buffer, element count, wire descriptor) triple.
//
// Four input shapes normalize to the same triple: a scalar reference (Of), a
// raw pointer with an explicit count (FromPtr), a slice (FromSlice, with
// FromSliceN exposing a sub-range), and a freshly allocated receive buffer
// (Allocate). The first three borrow caller-owned memory and never copy; the
// fourth owns its allocation, which any number of payload copies may alias
// until the last holder drops.
//
// Element types must be trivially copyable: builtin scalars, reflectable
// aggregates, and fixed-size arrays of either. Anything else fails at
// construction, before a buffer is ever wrapped.
//
// At and Slice trade bounds checking for the zero-overhead contract of the
// wrapped substrate calls; out-of-range access is undefined.
package payload
