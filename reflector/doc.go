// Package reflector derives the ordered member layout of plain aggregate Go
// types with no annotation from the type's author.
//
// Two interchangeable strategies sit behind one entry point. The reflected
// route walks the struct's fields with the reflect package, classifies each
// member (builtin scalar, nested aggregate, fixed-size array), and verifies
// every derived offset against a recomputed stand-in layout: a type whose
// true layout cannot be reproduced member-by-member is rejected rather than
// silently mis-offset. The explicit route applies when a type implements
// Describer; the author then names the fields forming the wire shape, in
// wire order, and keeps full control of the contract.
//
// Variable-size and referencing members (strings, slices, maps, pointers,
// interfaces, chans, funcs) are rejected, as are platform-sized int, uint
// and uintptr, whose width is not reproducible across architectures.
//
// Layouts are memoized per type; derivation happens once per process.
package reflector
