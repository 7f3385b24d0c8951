// Package registry defers destruction of opaque substrate resources.
//
// Committed struct descriptors, duplicated communication contexts and custom
// reduction operators are expensive to create and must be released through
// the substrate before it finalizes, but never after. The registry maps each
// resource handle to a destructor closure, invokes every destructor at most
// once, and drops entries without touching the substrate once a configured
// finalized probe reports true.
//
// Add is first-registration-wins so cache-backed resources may re-announce
// their handle on every lookup. Remove reports whether the handle was known;
// removing twice never runs a destructor twice. Clear is the one-time
// teardown sweep: it collects per-entry failures rather than aborting.
package registry
