package kernel

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Depthwise is the reference depthwise convolution kernel: signed 8-bit
// input and weights, 32-bit accumulation, per-channel requantization, and a
// rectified unsigned 8-bit output. Units split the tile by output row.
type Depthwise struct{}

// Run computes the rows of the tile assigned to the calling unit.
func (k Depthwise) Run(inv Invocation) error {
	if err := inv.validate(); err != nil {
		return errors.Wrap(err, "depthwise kernel")
	}
	if inv.InChannels != inv.OutChannels {
		return errors.Errorf(
			"depthwise kernel needs matching channel counts, got %d in and %d out",
			inv.InChannels, inv.OutChannels)
	}

	id := inv.Unit.ID()
	count := inv.Unit.Count()
	kArea := inv.KernelH * inv.KernelW

	for or := id; or < inv.OutH; or += count {
		for oc := 0; oc < inv.OutW; oc++ {
			outBase := (or*inv.OutW + oc) * inv.OutChannels
			for ch := 0; ch < inv.OutChannels; ch++ {
				acc := int32(0)
				inBase := ch * inv.InH * inv.InW
				wBase := ch * kArea

				for kr := 0; kr < inv.KernelH; kr++ {
					ir := or*inv.StrideH + kr - inv.PadTop
					if ir < 0 || ir >= inv.InH {
						continue
					}
					for kc := 0; kc < inv.KernelW; kc++ {
						ic := oc*inv.StrideW + kc - inv.PadLeft
						if ic < 0 || ic >= inv.InW {
							continue
						}
						x := int32(int8(inv.Input[inBase+ir*inv.InW+ic]))
						w := int32(int8(inv.Weights[wBase+kr*inv.KernelW+kc]))
						acc += x * w
					}
				}

				inv.Output[outBase+ch] = requantize(inv, ch, acc)
			}
		}
	}

	return nil
}

// requantize scales an accumulator down to the output byte, rectifying into
// [0, 255].
func requantize(inv Invocation, ch int, acc int32) byte {
	var v int32
	if inv.Scale != nil {
		scale := int32(binary.LittleEndian.Uint32(inv.Scale[ch*4:]))
		bias := int32(binary.LittleEndian.Uint32(inv.Bias[ch*4:]))
		v = (acc*scale + bias) >> uint(inv.OutShift)
	} else {
		v = (acc * inv.OutMult) >> uint(inv.OutShift)
	}

	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
