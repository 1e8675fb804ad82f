package timing

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/tilepipe/layer"
	"github.com/sarchlab/tilepipe/tile"
)

// Builder can create timing models.
type Builder struct {
	engine        sim.Engine
	freq          sim.Freq
	params        layer.Params
	bytesPerCycle int
	macsPerCycle  int
}

// NewBuilder returns a builder with default machine rates.
func NewBuilder() Builder {
	return Builder{
		bytesPerCycle: 8,
		macsPerCycle:  16,
	}
}

// WithEngine sets the event engine.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the model.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithParams sets the layer the model replays.
func (b Builder) WithParams(p layer.Params) Builder {
	b.params = p
	return b
}

// WithBytesPerCycle sets the transfer engine's byte rate.
func (b Builder) WithBytesPerCycle(n int) Builder {
	if n < 1 {
		panic("need at least 1 byte per cycle")
	}
	b.bytesPerCycle = n
	return b
}

// WithMACsPerCycle sets the compute array's multiply-accumulate rate.
func (b Builder) WithMACsPerCycle(n int) Builder {
	if n < 1 {
		panic("need at least 1 MAC per cycle")
	}
	b.macsPerCycle = n
	return b
}

// Build creates the model.
func (b Builder) Build(name string) (*Model, error) {
	if err := b.params.Validate(); err != nil {
		return nil, err
	}

	planner, err := tile.NewPlanner(b.params.Shape())
	if err != nil {
		return nil, err
	}

	m := &Model{
		phases:        buildPhases(b.params, planner),
		bytesPerCycle: b.bytesPerCycle,
		macsPerCycle:  b.macsPerCycle,
	}
	m.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, m)

	return m, nil
}
