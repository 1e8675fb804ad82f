package cluster

// Builder can create new clusters.
type Builder struct {
	numUnits int
	leaderID int
}

// NewBuilder returns a builder with the default unit count.
func NewBuilder() Builder {
	return Builder{
		numUnits: 8, // default 8 units
	}
}

// WithUnits sets the number of execution units.
func (b Builder) WithUnits(numUnits int) Builder {
	if numUnits < 1 {
		panic("need at least 1 unit")
	}
	b.numUnits = numUnits
	return b
}

// WithLeader sets which unit issues shared transfers.
func (b Builder) WithLeader(id int) Builder {
	b.leaderID = id
	return b
}

// Build creates a cluster.
func (b Builder) Build(name string) *Cluster {
	if b.leaderID < 0 || b.leaderID >= b.numUnits {
		panic("leader id out of range")
	}

	return &Cluster{
		name:     name,
		numUnits: b.numUnits,
		leaderID: b.leaderID,
		barrier:  newBarrier(b.numUnits),
	}
}
