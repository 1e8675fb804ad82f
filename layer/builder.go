package layer

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/tilepipe/cluster"
	"github.com/sarchlab/tilepipe/kernel"
	"github.com/sarchlab/tilepipe/l1"
	"github.com/sarchlab/tilepipe/tile"
	"github.com/sarchlab/tilepipe/xfer"
)

// The arena name of the kernel's re-packing workspace.
const scratchRegion = "scratch"

// Builder can create layer engines.
type Builder struct {
	params    Params
	cluster   *cluster.Cluster
	copier    xfer.Engine
	kern      kernel.Kernel
	budget    int
	alignment int
	scratch   int
}

// NewBuilder returns a builder with defaults for everything a caller is
// allowed to omit.
func NewBuilder() Builder {
	return Builder{
		kern:      kernel.Depthwise{},
		alignment: 4,
	}
}

// WithParams sets the layer parameters.
func (b Builder) WithParams(p Params) Builder {
	b.params = p
	return b
}

// WithCluster sets the execution cluster.
func (b Builder) WithCluster(c *cluster.Cluster) Builder {
	b.cluster = c
	return b
}

// WithTransferEngine sets the copy engine transfers go through.
func (b Builder) WithTransferEngine(e xfer.Engine) Builder {
	b.copier = e
	return b
}

// WithKernel sets the compute kernel.
func (b Builder) WithKernel(k kernel.Kernel) Builder {
	b.kern = k
	return b
}

// WithLocalBudget sets the local arena capacity in bytes.
func (b Builder) WithLocalBudget(budget int) Builder {
	b.budget = budget
	return b
}

// WithAlignment sets the arena region alignment.
func (b Builder) WithAlignment(alignment int) Builder {
	b.alignment = alignment
	return b
}

// WithScratchBytes reserves a shared scratch workspace of n bytes that every
// kernel invocation receives, for kernels that re-pack their inputs before
// computing. Zero reserves none.
func (b Builder) WithScratchBytes(n int) Builder {
	b.scratch = n
	return b
}

// Build validates the configuration, plans the local memory layout, and
// returns the engine. An over-budget layout fails here, before any data
// moves.
func (b Builder) Build(name string) (*Engine, error) {
	if b.cluster == nil {
		return nil, errors.Errorf("%s: no cluster configured", name)
	}
	if b.copier == nil {
		return nil, errors.Errorf("%s: no transfer engine configured", name)
	}
	if err := b.params.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}

	planner, err := tile.NewPlanner(b.params.Shape())
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}

	ab := l1.NewBuilder().
		WithBudget(b.budget).
		WithAlignment(b.alignment).
		ReservePair(l1.RoleInput, planner.MaxInputBytes()).
		ReservePair(l1.RoleWeight, planner.MaxWeightBytes()).
		ReservePair(l1.RoleOutput, planner.MaxOutputBytes())
	if b.params.ScaleBias {
		ab = ab.
			ReservePair(l1.RoleScale, planner.MaxScaleBytes()).
			ReservePair(l1.RoleBias, planner.MaxScaleBytes())
	}
	if b.scratch > 0 {
		ab = ab.Reserve(scratchRegion, b.scratch)
	}

	arena, err := ab.Build(name + ".L1")
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		name:    name,
		params:  b.params,
		planner: planner,
		arena:   arena,
		cluster: b.cluster,
		copier:  b.copier,
		kern:    b.kern,
	}
	if b.scratch > 0 {
		region, _ := arena.Region(scratchRegion)
		eng.scratch = arena.Bytes(region)
	}

	return eng, nil
}
