// Package verify checks a tiled layer run against an untiled reference
// execution of the same layer. The arithmetic is exact integer math, so the
// comparison demands byte equality; any mismatch points at the tiling, the
// transfers, or the scheduler rather than at rounding.
package verify

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/tilepipe/kernel"
	"github.com/sarchlab/tilepipe/layer"
)

// Reference computes the layer output without tiling: the whole input is
// deinterleaved into one channel-major buffer and the kernel runs once over
// the full extents.
func Reference(p layer.Params, t layer.Tensors) ([]byte, error) {
	if !p.Depthwise {
		return nil, errors.New("reference execution covers depthwise layers only")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "reference")
	}

	input := deinterleave(t.Input, p.InH*p.InW, p.InChannels)
	output := make([]byte, p.OutH()*p.OutW()*p.OutChannels)

	inv := kernel.Invocation{
		Input:       input,
		InH:         p.InH,
		InW:         p.InW,
		InChannels:  p.InChannels,
		Weights:     t.Weights,
		OutChannels: p.OutChannels,
		KernelH:     p.KernelH,
		KernelW:     p.KernelW,
		StrideH:     p.StrideH,
		StrideW:     p.StrideW,
		PadTop:      p.PadTop,
		PadBottom:   p.PadBottom,
		PadLeft:     p.PadLeft,
		PadRight:    p.PadRight,
		OutShift:    p.OutShift,
		OutMult:     p.OutMult,
		Scale:       t.Scale,
		Bias:        t.Bias,
		Output:      output,
		OutH:        p.OutH(),
		OutW:        p.OutW(),
		Unit:        kernel.SoloUnit{},
	}

	if err := (kernel.Depthwise{}).Run(inv); err != nil {
		return nil, errors.Wrap(err, "reference")
	}

	return output, nil
}

// deinterleave turns a position-packed tensor into a channel-major one.
func deinterleave(src []byte, positions, channels int) []byte {
	dst := make([]byte, len(src))
	for pos := 0; pos < positions; pos++ {
		for c := 0; c < channels; c++ {
			dst[c*positions+pos] = src[pos*channels+c]
		}
	}
	return dst
}

// Check runs the reference and compares the tiled output against it.
func Check(p layer.Params, t layer.Tensors) (*Report, error) {
	want, err := Reference(p, t)
	if err != nil {
		return nil, err
	}
	return Compare(p, t.Output, want), nil
}
