// Package cluster models a fixed group of execution units that run the same
// program and synchronize only through barriers, in the manner of an
// accelerator compute cluster.
package cluster

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// A Cluster is a fixed set of execution units. Units are created once by the
// builder and live for the duration of a Run call.
type Cluster struct {
	name     string
	numUnits int
	leaderID int

	barrier   *barrier
	fenceWord uint32
}

// Name returns the name of the cluster.
func (c *Cluster) Name() string {
	return c.name
}

// NumUnits returns the number of execution units in the cluster.
func (c *Cluster) NumUnits() int {
	return c.numUnits
}

// Run executes body once per unit, all units concurrently, and blocks until
// every unit has returned. The first non-nil error is returned. A body that
// returns early while other units are parked at a barrier deadlocks the
// cluster, so bodies must keep barrier calls aligned across units.
func (c *Cluster) Run(body func(u *Unit) error) error {
	var wg sync.WaitGroup
	errs := make([]error, c.numUnits)

	for i := 0; i < c.numUnits; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs[id] = body(&Unit{id: id, cluster: c})
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// A Unit is one execution unit's view of the cluster. It is handed to the
// Run body and must not outlive it.
type Unit struct {
	id      int
	cluster *Cluster
}

// ID returns the index of the unit within the cluster.
func (u *Unit) ID() int {
	return u.id
}

// Count returns the number of units participating in the run.
func (u *Unit) Count() int {
	return u.cluster.numUnits
}

// IsLeader reports whether this unit is the one elected to issue shared
// transfers on behalf of the cluster.
func (u *Unit) IsLeader() bool {
	return u.id == u.cluster.leaderID
}

// Barrier blocks until every unit in the cluster has called Barrier with the
// same id. Mismatched ids across units are a programming error and panic.
func (u *Unit) Barrier(id uint32) {
	u.cluster.barrier.await(id)
}

// Fence publishes this unit's prior writes before any later read. It is
// called after issuing a transfer whose result is read on the far side of a
// barrier, and before reading a buffer that crossed a barrier.
func (u *Unit) Fence() {
	atomic.AddUint32(&u.cluster.fenceWord, 1)
	_ = atomic.LoadUint32(&u.cluster.fenceWord)
}

// barrier is a reusable generation-counted barrier.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
	roundID uint32
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.waiting == 0 {
		b.roundID = id
	} else if b.roundID != id {
		panic(fmt.Sprintf(
			"barrier id mismatch: round started with %d, unit arrived with %d",
			b.roundID, id))
	}

	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return
	}

	for gen == b.gen {
		b.cond.Wait()
	}
}
