package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/typemesh/wirepack/errors"
)

// Handle is an opaque reference to a substrate resource awaiting deferred
// destruction. Handle 0 is reserved and always invalid.
type Handle uint64

// Destructor releases the resource behind a handle through the substrate.
type Destructor func() error

// Namespace partitions the handle space. Substrate facilities mint their
// handles independently, so a committed type and a committed operator may
// share a raw value; keying registrations by namespace keeps them apart.
type Namespace uint8

const (
	NamespaceType Namespace = iota + 1
	NamespaceOp
	NamespaceComm
)

// Key derives the registry handle for a raw substrate handle within ns.
func Key(ns Namespace, raw uint64) Handle {
	return Handle(uint64(ns)<<56 | raw&(1<<56-1))
}

// Registry maps resource handles to deferred destructors. Entries are added
// when an expensive substrate resource (a committed struct descriptor, a
// duplicated context, a custom operator) is created, and swept in one pass
// right before the substrate finalizes.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	entries   map[Handle]Destructor
	order     []Handle
	finalized func() bool
	log       *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithFinalizedProbe installs the substrate-finalized check consulted before
// any destructor runs. Once the probe reports true, entries are dropped
// without invoking their destructors: leaking is preferred over calling into
// a torn-down substrate.
func WithFinalizedProbe(probe func() bool) Option {
	return func(r *Registry) { r.finalized = probe }
}

// WithLogger installs a logger for sweep diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Handle]Destructor),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a destructor for a handle and reports whether the entry was
// inserted. Re-adding a known handle is ignored: the first registration wins,
// so duplicate-and-cache callers may re-announce a handle on every cache hit
// without stacking destructors.
func (r *Registry) Add(h Handle, d Destructor) bool {
	if h == 0 || d == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[h]; exists {
		return false
	}
	r.entries[h] = d
	r.order = append(r.order, h)
	return true
}

// Contains reports whether the handle is currently tracked.
func (r *Registry) Contains(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[h]
	return ok
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Remove extracts the handle's destructor and invokes it exactly once,
// reporting whether the handle was known. A second Remove of the same handle
// returns false and runs nothing. If the substrate has already finalized the
// entry is dropped without invoking its destructor.
func (r *Registry) Remove(h Handle) (bool, error) {
	d, ok := r.extract(h)
	if !ok {
		return false, nil
	}

	if r.isFinalized() {
		r.log.Warn("resource leaked: substrate finalized before release",
			zap.Uint64("handle", uint64(h)))
		return true, nil
	}

	if err := d(); err != nil {
		return true, errors.Wrap(errors.PhaseTeardown, errors.KindRegistration, err, "release resource")
	}
	return true, nil
}

// Clear sweeps every remaining entry, invoking each destructor at most once,
// then empties the registry. The sweep never aborts early: per-entry failures
// are collected into a *errors.SweepError. When the substrate has already
// finalized, every entry is dropped without invoking anything.
//
// Clear is idempotent; a second call finds an empty registry and does nothing.
func (r *Registry) Clear() error {
	r.mu.Lock()
	handles := r.order
	entries := r.entries
	r.order = nil
	r.entries = make(map[Handle]Destructor)
	r.mu.Unlock()

	if len(handles) == 0 {
		return nil
	}

	if r.isFinalized() {
		r.log.Warn("registry sweep skipped: substrate already finalized",
			zap.Int("leaked", len(handles)))
		return nil
	}

	var failures []error
	for _, h := range handles {
		d, ok := entries[h]
		if !ok {
			continue
		}
		if err := d(); err != nil {
			r.log.Warn("resource destructor failed during sweep",
				zap.Uint64("handle", uint64(h)),
				zap.Error(err))
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return &errors.SweepError{Failures: failures}
	}
	return nil
}

// Each iterates over a snapshot of tracked handles in insertion order,
// stopping early if fn returns false.
func (r *Registry) Each(fn func(Handle) bool) {
	r.mu.Lock()
	snapshot := make([]Handle, len(r.order))
	copy(snapshot, r.order)
	r.mu.Unlock()

	for _, h := range snapshot {
		if !fn(h) {
			return
		}
	}
}

func (r *Registry) extract(h Handle) (Destructor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.entries[h]
	if !ok {
		return nil, false
	}
	delete(r.entries, h)
	for i, oh := range r.order {
		if oh == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return d, true
}

func (r *Registry) isFinalized() bool {
	return r.finalized != nil && r.finalized()
}
