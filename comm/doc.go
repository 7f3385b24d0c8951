// Package comm wraps substrate communication contexts: the world context
// spanning every rank, and duplicates carved from it. A Communicator carries
// the calling process' rank, the context size, and the descriptor table that
// transmission over the context resolves types through.
//
// Duplicates are memoized by raw handle and registered for deferred
// destruction; re-consulting the cache never stacks a second destructor.
package comm
