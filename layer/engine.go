package layer

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sarchlab/tilepipe/cluster"
	"github.com/sarchlab/tilepipe/kernel"
	"github.com/sarchlab/tilepipe/l1"
	"github.com/sarchlab/tilepipe/tile"
	"github.com/sarchlab/tilepipe/xfer"
)

// Barrier ids, one per synchronization point of the iteration. The cluster
// barrier panics when units arrive at different points, so a scheduling bug
// surfaces as a panic instead of silent corruption.
const (
	barrierWarm uint32 = iota + 1
	barrierTileReady
	barrierComputeDone
	barrierAdvance
	barrierDrain
)

// An Engine executes one layer tile by tile. The leader unit issues every
// transfer; all units compute; barriers keep the two in lockstep. Buffers
// are double-buffered, so the next tile's loads overlap the current tile's
// compute.
type Engine struct {
	name    string
	params  Params
	planner *tile.Planner
	arena   *l1.Arena
	cluster *cluster.Cluster
	copier  xfer.Engine
	kern    kernel.Kernel
	scratch []byte
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// Arena exposes the local memory layout, mainly for inspection and tests.
func (e *Engine) Arena() *l1.Arena {
	return e.arena
}

// Planner exposes the tile planner of the layer.
func (e *Engine) Planner() *tile.Planner {
	return e.planner
}

// run is the shared state of one Run call.
type run struct {
	tensors Tensors

	// Leader-only fields. Non-leader units never touch them; barriers order
	// the leader's writes against everyone's reads of the arena.
	prefetch  []xfer.Handle
	reload    bool
	writeback [2]xfer.Handle

	mu  sync.Mutex
	err error
}

func (r *run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *run) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Run executes the layer over the given tensors and blocks until the last
// writeback has landed.
func (e *Engine) Run(t Tensors) error {
	if err := t.validate(e.params); err != nil {
		return errors.Wrapf(err, "%s", e.name)
	}

	r := &run{tensors: t}
	return e.cluster.Run(func(u *cluster.Unit) error {
		return e.runUnit(r, u)
	})
}

func (e *Engine) runUnit(r *run, u *cluster.Unit) error {
	n := e.planner.Iterations()
	igN := e.planner.Shape().InGroups()

	if u.IsLeader() {
		e.stageFirstTile(r)
		u.Fence()
	}
	u.Barrier(barrierWarm)

	for iter := 0; iter < n; iter++ {
		cur := e.planner.At(iter)

		if u.IsLeader() {
			e.prefetchNext(r, iter, cur)
			e.reclaimOutputSlot(r)
			u.Fence()
		}
		u.Barrier(barrierTileReady)

		if err := e.kern.Run(e.invocation(r, cur, u)); err != nil {
			r.fail(errors.Wrapf(err, "%s: tile %d", e.name, iter))
		}
		u.Barrier(barrierComputeDone)

		// Every unit observes the same verdict, so they leave the loop
		// together and no one is left parked at a barrier.
		if err := r.failure(); err != nil {
			if u.IsLeader() {
				e.drain(r)
			}
			return err
		}

		if u.IsLeader() {
			for _, h := range r.prefetch {
				h.Wait()
			}
			r.prefetch = nil

			// The output tile is finished only once the input-channel
			// revolution wraps; partial sums stay resident until then.
			flush := (iter+1)%igN == 0
			if flush {
				e.issueWriteback(r, cur)
			}
			e.swap(r, flush)
			u.Fence()
		}
		u.Barrier(barrierAdvance)
	}

	if u.IsLeader() {
		e.drain(r)
		u.Fence()
	}
	u.Barrier(barrierDrain)

	return nil
}

// stageFirstTile loads tile zero's buffers into the active slots and waits
// for them. There is nothing to overlap with yet.
func (e *Engine) stageFirstTile(r *run) {
	d0 := e.planner.At(0)

	hs := []xfer.Handle{
		e.copier.IssueGroup(inputLoad(
			e.params, r.tensors.Input, d0,
			e.arena.Bytes(e.arena.Pair(l1.RoleInput).Active()))),
		e.copier.IssueGroup(weightLoad(
			e.params, r.tensors.Weights, d0,
			e.arena.Bytes(e.arena.Pair(l1.RoleWeight).Active()))),
	}
	if e.params.ScaleBias {
		hs = append(hs,
			e.copier.IssueGroup(vectorLoad(
				e.params, r.tensors.Scale, d0,
				e.arena.Bytes(e.arena.Pair(l1.RoleScale).Active()))),
			e.copier.IssueGroup(vectorLoad(
				e.params, r.tensors.Bias, d0,
				e.arena.Bytes(e.arena.Pair(l1.RoleBias).Active()))))
	}

	for _, h := range hs {
		h.Wait()
	}
}

// prefetchNext issues the next tile's loads into the target slots. The last
// iteration has nothing to prefetch. Weights and scale/bias are fetched only
// when the next tile moves to another channel group.
func (e *Engine) prefetchNext(r *run, iter int, cur tile.Descriptor) {
	r.prefetch = nil
	r.reload = false
	if iter+1 >= e.planner.Iterations() {
		return
	}

	next := e.planner.At(iter + 1)

	r.prefetch = append(r.prefetch, e.copier.IssueGroup(inputLoad(
		e.params, r.tensors.Input, next,
		e.arena.Bytes(e.arena.Pair(l1.RoleInput).Target()))))

	if tile.NeedsParamReload(next, cur) {
		r.reload = true
		r.prefetch = append(r.prefetch, e.copier.IssueGroup(weightLoad(
			e.params, r.tensors.Weights, next,
			e.arena.Bytes(e.arena.Pair(l1.RoleWeight).Target()))))
		if e.params.ScaleBias {
			r.prefetch = append(r.prefetch,
				e.copier.IssueGroup(vectorLoad(
					e.params, r.tensors.Scale, next,
					e.arena.Bytes(e.arena.Pair(l1.RoleScale).Target()))),
				e.copier.IssueGroup(vectorLoad(
					e.params, r.tensors.Bias, next,
					e.arena.Bytes(e.arena.Pair(l1.RoleBias).Target()))))
		}
	}

	xfer.Trace("Prefetch",
		"Engine", e.name,
		"Iter", iter+1,
		"OutGroup", next.OutGroup,
		"Row", next.Row,
		"Col", next.Col,
		"Reload", r.reload,
	)
}

// reclaimOutputSlot waits for the writeback that last used the output slot
// compute is about to fill. Two iterations back it was issued; usually it
// has long finished.
func (e *Engine) reclaimOutputSlot(r *run) {
	idx := e.arena.Pair(l1.RoleOutput).ActiveIndex()
	if h := r.writeback[idx]; h != nil {
		h.Wait()
		r.writeback[idx] = nil
	}
}

// issueWriteback stores the finished tile from the active output slot. The
// handle is parked on the slot so reclaimOutputSlot can find it.
func (e *Engine) issueWriteback(r *run, cur tile.Descriptor) {
	out := e.arena.Pair(l1.RoleOutput)
	r.writeback[out.ActiveIndex()] = e.copier.IssueGroup(outputStore(
		e.params, cur, e.arena.Bytes(out.Active()), r.tensors.Output))
}

// swap flips the double buffers for the next iteration. The output pair
// holds its slot until its tile went out, so a kernel summing over input
// groups accumulates in place; parameters flip only when fresh ones were
// actually fetched.
func (e *Engine) swap(r *run, flush bool) {
	e.arena.Pair(l1.RoleInput).Swap()
	if flush {
		e.arena.Pair(l1.RoleOutput).Swap()
	}
	if r.reload {
		e.arena.Pair(l1.RoleWeight).Swap()
		if e.params.ScaleBias {
			e.arena.Pair(l1.RoleScale).Swap()
			e.arena.Pair(l1.RoleBias).Swap()
		}
	}
}

// drain waits for everything still in flight.
func (e *Engine) drain(r *run) {
	for _, h := range r.prefetch {
		h.Wait()
	}
	r.prefetch = nil
	for i, h := range r.writeback {
		if h != nil {
			h.Wait()
			r.writeback[i] = nil
		}
	}
}

func padAmount(flag bool, amount int) int {
	if flag {
		return amount
	}
	return 0
}

// invocation assembles the kernel's view of the current tile from the active
// slots.
func (e *Engine) invocation(r *run, d tile.Descriptor, u *cluster.Unit) kernel.Invocation {
	p := e.params
	igN := e.planner.Shape().InGroups()

	inv := kernel.Invocation{
		Input:       e.arena.Bytes(e.arena.Pair(l1.RoleInput).Active()),
		InH:         d.InH,
		InW:         d.InW,
		InChannels:  d.InC,
		InGroup:     d.Iter % igN,
		InGroups:    igN,
		Weights:     e.arena.Bytes(e.arena.Pair(l1.RoleWeight).Active()),
		OutChannels: d.OutC,
		KernelH:     p.KernelH,
		KernelW:     p.KernelW,
		StrideH:     p.StrideH,
		StrideW:     p.StrideW,
		PadTop:      padAmount(d.PadTop, p.PadTop),
		PadBottom:   padAmount(d.PadBottom, p.PadBottom),
		PadLeft:     padAmount(d.PadLeft, p.PadLeft),
		PadRight:    padAmount(d.PadRight, p.PadRight),
		OutShift:    p.OutShift,
		OutMult:     p.OutMult,
		Output:      e.arena.Bytes(e.arena.Pair(l1.RoleOutput).Active()),
		OutH:        d.OutH,
		OutW:        d.OutW,
		Scratch:     e.scratch,
		Unit:        u,
	}
	if p.ScaleBias {
		inv.Scale = e.arena.Bytes(e.arena.Pair(l1.RoleScale).Active())[:d.OutC*4]
		inv.Bias = e.arena.Bytes(e.arena.Pair(l1.RoleBias).Active())[:d.OutC*4]
	}

	return inv
}
