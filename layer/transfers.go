package layer

import (
	"github.com/sarchlab/tilepipe/tile"
	"github.com/sarchlab/tilepipe/xfer"
)

// The transfer builders translate one tile descriptor into groups of
// two-level strided copies. Offsets on the local side are relative to the
// destination slot, so the same builders serve either slot of a pair.

func (p Params) inChannelBase(d tile.Descriptor) int {
	if p.Depthwise {
		return d.OutGroup * p.GroupOut
	}
	return d.InGroup * p.GroupIn
}

// inputLoad gathers the tile's input halo into the local slot, deinterleaving
// the position-packed external layout into channel-major: one descriptor per
// channel and row, picking single bytes at the external channel stride.
func inputLoad(p Params, ext []byte, d tile.Descriptor, dst []byte) []xfer.Descriptor {
	chBase := p.inChannelBase(d)
	ds := make([]xfer.Descriptor, 0, d.InC*d.InH)

	for c := 0; c < d.InC; c++ {
		for r := 0; r < d.InH; r++ {
			srcOffset := ((d.SrcRow+r)*p.InW+d.SrcCol)*p.InChannels + chBase + c
			ds = append(ds, xfer.Descriptor{
				Direction:  xfer.Load,
				Src:        ext,
				SrcOffset:  srcOffset,
				SrcStride:  p.InChannels,
				Dst:        dst,
				DstOffset:  c*d.InH*d.InW + r*d.InW,
				DstStride:  1,
				InnerBytes: 1,
				Count:      d.InW,
			})
		}
	}

	return ds
}

// weightLoad fetches the channel group's filters. Depthwise filters are
// contiguous in the external tensor; grouped general filters are one strided
// segment per output channel.
func weightLoad(p Params, ext []byte, d tile.Descriptor, dst []byte) []xfer.Descriptor {
	kArea := p.KernelH * p.KernelW
	chBase := d.OutGroup * p.GroupOut

	if p.Depthwise {
		return []xfer.Descriptor{{
			Direction:  xfer.Load,
			Src:        ext,
			SrcOffset:  chBase * kArea,
			Dst:        dst,
			InnerBytes: d.OutC * kArea,
			Count:      1,
		}}
	}

	inBase := d.InGroup * p.GroupIn
	return []xfer.Descriptor{{
		Direction:  xfer.Load,
		Src:        ext,
		SrcOffset:  (chBase*p.InChannels + inBase) * kArea,
		SrcStride:  p.InChannels * kArea,
		Dst:        dst,
		DstStride:  d.InC * kArea,
		InnerBytes: d.InC * kArea,
		Count:      d.OutC,
	}}
}

// vectorLoad fetches the channel group's slice of a per-channel word vector,
// used for both scale and bias.
func vectorLoad(p Params, ext []byte, d tile.Descriptor, dst []byte) []xfer.Descriptor {
	return []xfer.Descriptor{{
		Direction:  xfer.Load,
		Src:        ext,
		SrcOffset:  d.OutGroup * p.GroupOut * 4,
		Dst:        dst,
		InnerBytes: d.OutC * 4,
		Count:      1,
	}}
}

// outputStore scatters the tile's position-packed rows back into the
// external tensor, one descriptor per output row.
func outputStore(p Params, d tile.Descriptor, src []byte, ext []byte) []xfer.Descriptor {
	outW := p.OutW()
	chBase := d.OutGroup * p.GroupOut
	ds := make([]xfer.Descriptor, 0, d.OutH)

	for r := 0; r < d.OutH; r++ {
		rowAbs := d.Row*p.TileOutH + r
		colAbs := d.Col * p.TileOutW
		ds = append(ds, xfer.Descriptor{
			Direction:  xfer.Store,
			Src:        src,
			SrcOffset:  r * d.OutW * d.OutC,
			SrcStride:  d.OutC,
			Dst:        ext,
			DstOffset:  (rowAbs*outW+colAbs)*p.OutChannels + chBase,
			DstStride:  p.OutChannels,
			InnerBytes: d.OutC,
			Count:      d.OutW,
		})
	}

	return ds
}
