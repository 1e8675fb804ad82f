// Package l1 manages the fast local memory tier as a structured arena of
// named regions. Offsets are computed once at build time; the engine indexes
// regions symbolically and never hard-codes byte offsets.
package l1

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Role identifies the tensor a buffer pair holds.
type Role int

const (
	RoleInput Role = iota
	RoleWeight
	RoleScale
	RoleBias
	RoleOutput
)

// Name returns the name of the role.
func (r Role) Name() string {
	switch r {
	case RoleInput:
		return "Input"
	case RoleWeight:
		return "Weight"
	case RoleScale:
		return "Scale"
	case RoleBias:
		return "Bias"
	case RoleOutput:
		return "Output"
	default:
		panic("invalid role")
	}
}

// A Region is a fixed range of bytes inside the arena.
type Region struct {
	Offset int
	Size   int
}

// A Pair holds the two slots of one double-buffered role. Exactly one slot
// is active at any time; the other is the prefetch target. Swap is the only
// transition and is meant to be called at the scheduler's advance point.
type Pair struct {
	role   Role
	slots  [2]Region
	active int
}

// Role returns the tensor role of the pair.
func (p *Pair) Role() Role {
	return p.role
}

// Active returns the slot being consumed this iteration.
func (p *Pair) Active() Region {
	return p.slots[p.active]
}

// Target returns the slot transfers may fill for the next iteration.
func (p *Pair) Target() Region {
	return p.slots[1-p.active]
}

// ActiveIndex returns 0 or 1 for the current active slot.
func (p *Pair) ActiveIndex() int {
	return p.active
}

// Swap exchanges the active and target designations.
func (p *Pair) Swap() {
	p.active = 1 - p.active
}

// Slot returns one slot by index, regardless of designation.
func (p *Pair) Slot(i int) Region {
	return p.slots[i]
}

// An Arena is the local memory tier: one byte buffer carved into fixed,
// non-overlapping regions. The carving never changes after Build.
type Arena struct {
	name    string
	buf     []byte
	regions map[string]Region
	pairs   map[Role]*Pair
}

// Name returns the name of the arena.
func (a *Arena) Name() string {
	return a.name
}

// Capacity returns the byte budget of the arena.
func (a *Arena) Capacity() int {
	return len(a.buf)
}

// Bytes returns the backing bytes of a region.
func (a *Arena) Bytes(r Region) []byte {
	return a.buf[r.Offset : r.Offset+r.Size]
}

// Region returns a named scratch region.
func (a *Arena) Region(name string) (Region, bool) {
	r, ok := a.regions[name]
	return r, ok
}

// Pair returns the double-buffer pair for a role. Asking for a role that was
// never reserved is a programming error.
func (a *Arena) Pair(role Role) *Pair {
	p, ok := a.pairs[role]
	if !ok {
		panic("no buffer pair reserved for role " + role.Name())
	}
	return p
}

// Builder carves an arena out of a fixed byte budget.
type Builder struct {
	budget    int
	alignment int
	pairs     []pairReservation
	regions   []regionReservation
}

type pairReservation struct {
	role Role
	size int
}

type regionReservation struct {
	name string
	size int
}

// NewBuilder returns a builder with default word alignment.
func NewBuilder() Builder {
	return Builder{alignment: 4}
}

// WithBudget sets the arena capacity in bytes.
func (b Builder) WithBudget(budget int) Builder {
	b.budget = budget
	return b
}

// WithAlignment sets the alignment applied to every region offset.
func (b Builder) WithAlignment(alignment int) Builder {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		panic("alignment must be a power of two")
	}
	b.alignment = alignment
	return b
}

// ReservePair reserves two slots of size bytes each for a role. The size is
// the worst case over all tiles of that role.
func (b Builder) ReservePair(role Role, size int) Builder {
	b.pairs = append(b.pairs, pairReservation{role: role, size: size})
	return b
}

// Reserve reserves a single named scratch region.
func (b Builder) Reserve(name string, size int) Builder {
	b.regions = append(b.regions, regionReservation{name: name, size: size})
	return b
}

func (b Builder) align(offset int) int {
	return (offset + b.alignment - 1) &^ (b.alignment - 1)
}

// Build computes all offsets and returns the arena. It fails when the
// reservations exceed the budget; this is the generation-time capacity check
// and the only place it happens.
func (b Builder) Build(name string) (*Arena, error) {
	a := &Arena{
		name:    name,
		regions: make(map[string]Region),
		pairs:   make(map[Role]*Pair),
	}

	offset := 0
	for _, pr := range b.pairs {
		if _, ok := a.pairs[pr.role]; ok {
			return nil, errors.Errorf("role %s reserved twice", pr.role.Name())
		}
		p := &Pair{role: pr.role}
		for i := 0; i < 2; i++ {
			offset = b.align(offset)
			p.slots[i] = Region{Offset: offset, Size: pr.size}
			offset += pr.size
		}
		a.pairs[pr.role] = p
	}

	for _, rr := range b.regions {
		if _, ok := a.regions[rr.name]; ok {
			return nil, errors.Errorf("region %q reserved twice", rr.name)
		}
		offset = b.align(offset)
		a.regions[rr.name] = Region{Offset: offset, Size: rr.size}
		offset += rr.size
	}

	if offset > b.budget {
		// Nearby sizes humanize alike, so spell out the exact counts too.
		return nil, errors.Errorf(
			"%s: layout needs %d bytes (%s) but the budget is %d bytes (%s)",
			name, offset, humanize.IBytes(uint64(offset)),
			b.budget, humanize.IBytes(uint64(b.budget)))
	}

	a.buf = make([]byte, b.budget)
	return a, nil
}
