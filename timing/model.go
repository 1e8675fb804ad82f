// Package timing estimates the cycle cost of a tiled layer run on a simple
// machine model: one transfer engine with a fixed byte rate and a compute
// array with a fixed multiply-accumulate rate, overlapped the way the layer
// engine overlaps them.
package timing

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/tilepipe/layer"
	"github.com/sarchlab/tilepipe/tile"
)

// An Estimate is the outcome of replaying one layer schedule on the model.
type Estimate struct {
	TotalCycles int

	// Cycles either side spent waiting for the other within a phase.
	ComputeStallCycles int
	TransferIdleCycles int

	TransferBytes int
	MACs          int

	Time sim.VTimeInSec
}

// A phase is one overlap window of the schedule: the transfer work and the
// compute work that the double buffering lets run side by side.
type phase struct {
	transferBytes int
	macs          int
}

// Model replays a layer schedule cycle by cycle as a ticking component.
type Model struct {
	*sim.TickingComponent

	phases        []phase
	bytesPerCycle int
	macsPerCycle  int

	phaseIdx     int
	transferLeft int
	computeLeft  int

	est Estimate
}

// Tick advances the model by one cycle. Both sides drain their budget; the
// model moves to the next phase when the slower side finishes.
func (m *Model) Tick() (madeProgress bool) {
	if m.phaseIdx >= len(m.phases) {
		return false
	}

	m.est.TotalCycles++

	busyTransfer := m.transferLeft > 0
	busyCompute := m.computeLeft > 0

	if busyTransfer {
		m.transferLeft -= m.bytesPerCycle
	} else if busyCompute {
		m.est.TransferIdleCycles++
	}
	if busyCompute {
		m.computeLeft -= m.macsPerCycle
	} else if busyTransfer {
		m.est.ComputeStallCycles++
	}

	if m.transferLeft <= 0 && m.computeLeft <= 0 {
		m.phaseIdx++
		if m.phaseIdx < len(m.phases) {
			m.loadPhase()
		}
	}

	return true
}

func (m *Model) loadPhase() {
	p := m.phases[m.phaseIdx]
	m.transferLeft = p.transferBytes
	m.computeLeft = p.macs
}

// Estimate runs the model to completion and returns the tally.
func (m *Model) Estimate() (Estimate, error) {
	m.phaseIdx = 0
	m.est = Estimate{}
	for _, p := range m.phases {
		m.est.TransferBytes += p.transferBytes
		m.est.MACs += p.macs
	}
	m.loadPhase()

	m.TickNow()
	if err := m.Engine.Run(); err != nil {
		return Estimate{}, err
	}

	m.est.Time = m.Engine.CurrentTime()
	return m.est, nil
}

// buildPhases lays the schedule out as overlap windows: a warmup phase that
// only transfers, then one phase per iteration pairing that tile's compute
// with the next tile's prefetch and, once the input-channel revolution
// wraps, the finished tile's writeback.
func buildPhases(p layer.Params, planner *tile.Planner) []phase {
	n := planner.Iterations()
	igN := planner.Shape().InGroups()
	phases := make([]phase, 0, n+1)

	d0 := planner.At(0)
	warm := phase{transferBytes: stageBytes(p, planner, d0)}
	phases = append(phases, warm)

	for i := 0; i < n; i++ {
		cur := planner.At(i)
		ph := phase{macs: computeMACs(p, cur)}
		if (i+1)%igN == 0 {
			ph.transferBytes += planner.OutputBytes(cur)
		}
		if i+1 < n {
			next := planner.At(i + 1)
			ph.transferBytes += planner.InputBytes(next)
			if tile.NeedsParamReload(next, cur) {
				ph.transferBytes += paramBytes(p, planner, next)
			}
		}
		phases = append(phases, ph)
	}

	return phases
}

func stageBytes(p layer.Params, planner *tile.Planner, d tile.Descriptor) int {
	return planner.InputBytes(d) + paramBytes(p, planner, d)
}

func paramBytes(p layer.Params, planner *tile.Planner, d tile.Descriptor) int {
	b := planner.WeightBytes(d)
	if p.ScaleBias {
		b += 2 * planner.ScaleBytes(d)
	}
	return b
}

func computeMACs(p layer.Params, d tile.Descriptor) int {
	macs := d.OutH * d.OutW * d.OutC * p.KernelH * p.KernelW
	if !p.Depthwise {
		macs *= d.InC
	}
	return macs
}
