// Package kernel defines the compute contract the layer engine hands to a
// tile kernel, and a reference depthwise implementation. Kernels see only
// local buffers; they never touch external memory.
package kernel

import "github.com/pkg/errors"

// A Unit is the calling execution unit's identity. Kernels partition their
// work across units by it.
type Unit interface {
	ID() int
	Count() int
}

// SoloUnit is the identity of a single-unit run, used by untiled reference
// execution.
type SoloUnit struct{}

// ID returns 0.
func (SoloUnit) ID() int { return 0 }

// Count returns 1.
func (SoloUnit) Count() int { return 1 }

// An Invocation is everything a kernel may look at for one tile. The buffers
// alias the local arena; the engine guarantees they are stable for the
// duration of the call.
type Invocation struct {
	// Input is the tile input, channel-major: all positions of channel 0,
	// then channel 1, and so on.
	Input      []byte
	InH, InW   int
	InChannels int

	// Position in the input-channel revolution that shares this tile's
	// output. A kernel tiled over input channels starts fresh when InGroup
	// is zero and adds onto the resident partial sums afterwards; zero
	// values mean the whole input depth is resident.
	InGroup, InGroups int

	// Weights holds KernelH*KernelW signed bytes per channel, channels
	// contiguous.
	Weights     []byte
	OutChannels int

	KernelH, KernelW int
	StrideH, StrideW int

	// Padding amounts for this tile. Interior tiles carry zeros; the input
	// buffer never contains padded rows or columns.
	PadTop, PadBottom, PadLeft, PadRight int

	// Requantization. When Scale is present, Bias must be too, and each
	// holds one little-endian 32-bit word per output channel. When Scale is
	// absent the scalar OutMult applies instead.
	OutShift int
	OutMult  int32
	Scale    []byte
	Bias     []byte

	// Output is the tile output, position-major: the channels of one
	// position packed together.
	Output     []byte
	OutH, OutW int

	// Scratch is a shared re-packing workspace, present when the layer
	// reserved one. The engine never touches its contents.
	Scratch []byte

	Unit Unit
}

func (inv Invocation) validate() error {
	switch {
	case inv.InH < 1 || inv.InW < 1 || inv.InChannels < 1:
		return errors.New("bad input extents")
	case inv.OutH < 1 || inv.OutW < 1 || inv.OutChannels < 1:
		return errors.New("bad output extents")
	case len(inv.Input) < inv.InH*inv.InW*inv.InChannels:
		return errors.Errorf("input buffer holds %d bytes, tile needs %d",
			len(inv.Input), inv.InH*inv.InW*inv.InChannels)
	case len(inv.Output) < inv.OutH*inv.OutW*inv.OutChannels:
		return errors.Errorf("output buffer holds %d bytes, tile needs %d",
			len(inv.Output), inv.OutH*inv.OutW*inv.OutChannels)
	case inv.OutShift < 0:
		return errors.New("negative requantization shift")
	case (inv.Scale == nil) != (inv.Bias == nil):
		return errors.New("scale and bias must be present together")
	case inv.Scale != nil && len(inv.Scale) < inv.OutChannels*4:
		return errors.New("scale vector shorter than the channel group")
	case inv.Bias != nil && len(inv.Bias) < inv.OutChannels*4:
		return errors.New("bias vector shorter than the channel group")
	case inv.Unit == nil:
		return errors.New("missing unit identity")
	}
	return nil
}

// A Kernel computes one tile. Run is called concurrently by every unit of
// the cluster with the same invocation except for Unit; implementations must
// write disjoint output elements across units.
type Kernel interface {
	Run(inv Invocation) error
}
