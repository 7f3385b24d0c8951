package runtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/comm"
	"github.com/typemesh/wirepack/datatype"
	"github.com/typemesh/wirepack/errors"
	"github.com/typemesh/wirepack/registry"
)

// Runtime owns one process' view of a substrate: the descriptor table, the
// teardown registry, and the world communicator. It is the composition root;
// everything it hands out shares its registry, so Finalize can sweep the
// whole process in one ordered pass.
type Runtime struct {
	subst wirepack.Substrate
	reg   *registry.Registry
	types *datatype.Table
	world *comm.Communicator
	log   *zap.Logger

	finalizeOnce sync.Once
	finalizeErr  error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger installs a logger shared by the runtime, its registry, and its
// descriptor table.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runtime) {
		if log != nil {
			r.log = log
		}
	}
}

// New builds a runtime over an initialized substrate.
func New(subst wirepack.Substrate, opts ...Option) (*Runtime, error) {
	if subst == nil {
		return nil, errors.NilPointer(errors.PhaseConfig, nil, "substrate")
	}
	if subst.Finalized() {
		return nil, errors.Finalized(errors.PhaseConfig, "substrate")
	}

	r := &Runtime{
		subst: subst,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.reg = registry.New(
		registry.WithFinalizedProbe(subst.Finalized),
		registry.WithLogger(r.log),
	)
	r.types = datatype.NewTable(subst, r.reg, datatype.WithLogger(r.log))

	world, err := comm.New(subst, r.types, r.reg, wirepack.CommWorld)
	if err != nil {
		return nil, err
	}
	r.world = world

	r.log.Debug("runtime initialized",
		zap.Int32("rank", int32(world.Rank())),
		zap.Int("size", world.Size()))
	return r, nil
}

// World returns the communicator spanning every rank of the substrate.
func (r *Runtime) World() *comm.Communicator { return r.world }

// Rank reports this process' rank within the world.
func (r *Runtime) Rank() wirepack.Rank { return r.world.Rank() }

// Size reports the number of ranks in the world.
func (r *Runtime) Size() int { return r.world.Size() }

// Types returns the process-wide descriptor table.
func (r *Runtime) Types() *datatype.Table { return r.types }

// Registry returns the teardown registry.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// Substrate exposes the underlying substrate.
func (r *Runtime) Substrate() wirepack.Substrate { return r.subst }

// Finalized reports whether Finalize has run.
func (r *Runtime) Finalized() bool { return r.subst.Finalized() }

// Finalize tears the process down in dependency order: descriptors first,
// then every remaining registered resource, then the substrate itself. The
// teardown runs exactly once; later calls return the first outcome. Sweep
// failures are collected and reported, but never stop the substrate from
// finalizing.
func (r *Runtime) Finalize() error {
	r.finalizeOnce.Do(func() {
		var failures []error

		if err := r.types.DestroyAll(); err != nil {
			failures = append(failures, err)
		}
		if err := r.reg.Clear(); err != nil {
			failures = append(failures, err)
		}
		if err := r.subst.Finalize(); err != nil {
			failures = append(failures, err)
		}

		r.log.Debug("runtime finalized", zap.Int("failures", len(failures)))
		if len(failures) > 0 {
			r.finalizeErr = &errors.SweepError{Failures: failures}
		}
	})
	return r.finalizeErr
}
