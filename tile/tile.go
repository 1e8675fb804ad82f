// Package tile computes the geometry of the tiles a layer is cut into: the
// fixed loop nest, per-tile element extents including the convolution halo,
// boundary padding flags, and the weight-reload condition.
package tile

// Shape describes the iteration space of one layer. Extents are in elements;
// input and weight elements are one byte, scale and bias elements four.
type Shape struct {
	OutH, OutW  int // full output spatial extents
	OutChannels int
	InChannels  int

	KernelH, KernelW int
	StrideH, StrideW int

	// Layer-level padding, applied only on boundary tiles.
	PadTop, PadBottom, PadLeft, PadRight int

	// Output tile extents and channel-group widths.
	TileOutH, TileOutW int
	GroupOut, GroupIn  int

	// Depthwise layers tie the input channel group to the output channel
	// group, so the innermost loop axis degenerates.
	Depthwise bool
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// RowTiles returns the number of tiles along the output height.
func (s Shape) RowTiles() int {
	return ceilDiv(s.OutH, s.TileOutH)
}

// ColTiles returns the number of tiles along the output width.
func (s Shape) ColTiles() int {
	return ceilDiv(s.OutW, s.TileOutW)
}

// OutGroups returns the number of output channel groups.
func (s Shape) OutGroups() int {
	return ceilDiv(s.OutChannels, s.GroupOut)
}

// InGroups returns the number of input channel groups per output group.
func (s Shape) InGroups() int {
	if s.Depthwise {
		return 1
	}
	return ceilDiv(s.InChannels, s.GroupIn)
}

// InHTotal returns the input height the layer consumes, excluding padding.
func (s Shape) InHTotal() int {
	return (s.OutH-1)*s.StrideH + s.KernelH - s.PadTop - s.PadBottom
}

// InWTotal returns the input width the layer consumes, excluding padding.
func (s Shape) InWTotal() int {
	return (s.OutW-1)*s.StrideW + s.KernelW - s.PadLeft - s.PadRight
}

// A Descriptor is the geometry of one tile. It is computed fresh for an
// iteration index, is immutable, and is consumed within that iteration.
type Descriptor struct {
	Iter int

	OutGroup, InGroup int
	Row, Col          int

	// True output extents of this tile.
	OutH, OutW, OutC int

	// Input extents including the convolution halo. Padded border rows and
	// columns are not fetched; the pad flags tell the kernel which edges to
	// treat as synthetic zeros.
	InH, InW, InC int

	// First input element this tile reads, in full-tensor coordinates.
	SrcRow, SrcCol int

	PadTop, PadBottom, PadLeft, PadRight bool
}

// NeedsParamReload reports whether executing cur after prev requires fresh
// weight and scale/bias tiles. Tiles sharing both channel-group indices
// reuse the already resident parameters.
func NeedsParamReload(cur, prev Descriptor) bool {
	return cur.OutGroup != prev.OutGroup || cur.InGroup != prev.InGroup
}

// A Planner enumerates the tiles of a shape in the fixed loop order: output
// channel group outermost, then row tile, then column tile, with the input
// channel group revolving innermost.
type Planner struct {
	shape Shape
}

// NewPlanner validates the shape and returns a planner for it.
func NewPlanner(shape Shape) (*Planner, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	return &Planner{shape: shape}, nil
}

// Shape returns the planner's shape.
func (p *Planner) Shape() Shape {
	return p.shape
}

// Iterations returns the total number of loop iterations.
func (p *Planner) Iterations() int {
	s := p.shape
	return s.OutGroups() * s.RowTiles() * s.ColTiles() * s.InGroups()
}

// At computes the descriptor for one iteration.
func (p *Planner) At(iter int) Descriptor {
	s := p.shape
	if iter < 0 || iter >= p.Iterations() {
		panic("tile iteration out of range")
	}

	igN := s.InGroups()
	colN := s.ColTiles()
	rowN := s.RowTiles()

	ig := iter % igN
	col := (iter / igN) % colN
	row := (iter / (igN * colN)) % rowN
	og := iter / (igN * colN * rowN)

	d := Descriptor{
		Iter:     iter,
		OutGroup: og,
		InGroup:  ig,
		Row:      row,
		Col:      col,
	}

	d.OutH = minInt(s.TileOutH, s.OutH-row*s.TileOutH)
	d.OutW = minInt(s.TileOutW, s.OutW-col*s.TileOutW)
	d.OutC = minInt(s.GroupOut, s.OutChannels-og*s.GroupOut)

	d.PadTop = row == 0 && s.PadTop > 0
	d.PadBottom = row == rowN-1 && s.PadBottom > 0
	d.PadLeft = col == 0 && s.PadLeft > 0
	d.PadRight = col == colN-1 && s.PadRight > 0

	bT, bB, bL, bR := 0, 0, 0, 0
	if d.PadTop {
		bT = s.PadTop
	}
	if d.PadBottom {
		bB = s.PadBottom
	}
	if d.PadLeft {
		bL = s.PadLeft
	}
	if d.PadRight {
		bR = s.PadRight
	}

	d.InH = (d.OutH-1)*s.StrideH + s.KernelH - bT - bB
	d.InW = (d.OutW-1)*s.StrideW + s.KernelW - bL - bR

	d.SrcRow = row*s.TileOutH*s.StrideH - s.PadTop
	if d.SrcRow < 0 {
		d.SrcRow = 0
	}
	d.SrcCol = col*s.TileOutW*s.StrideW - s.PadLeft
	if d.SrcCol < 0 {
		d.SrcCol = 0
	}

	if s.Depthwise {
		d.InGroup = og
		d.InC = d.OutC
	} else {
		d.InC = minInt(s.GroupIn, s.InChannels-ig*s.GroupIn)
	}

	return d
}

// InputBytes returns the local footprint of a tile's input.
func (p *Planner) InputBytes(d Descriptor) int {
	return d.InH * d.InW * d.InC
}

// OutputBytes returns the local footprint of a tile's output.
func (p *Planner) OutputBytes(d Descriptor) int {
	return d.OutH * d.OutW * d.OutC
}

// WeightBytes returns the local footprint of a tile's weights.
func (p *Planner) WeightBytes(d Descriptor) int {
	s := p.shape
	if s.Depthwise {
		return d.OutC * s.KernelH * s.KernelW
	}
	return d.OutC * d.InC * s.KernelH * s.KernelW
}

// ScaleBytes returns the local footprint of a tile's per-channel scale or
// bias vector.
func (p *Planner) ScaleBytes(d Descriptor) int {
	return d.OutC * 4
}

// MaxInputBytes returns the worst-case input footprint over all tiles. The
// layout is sized with this, so the engine never bounds-checks at run time.
func (p *Planner) MaxInputBytes() int {
	return p.maxOver(p.InputBytes)
}

// MaxOutputBytes returns the worst-case output footprint over all tiles.
func (p *Planner) MaxOutputBytes() int {
	return p.maxOver(p.OutputBytes)
}

// MaxWeightBytes returns the worst-case weight footprint over all tiles.
func (p *Planner) MaxWeightBytes() int {
	return p.maxOver(p.WeightBytes)
}

// MaxScaleBytes returns the worst-case scale/bias footprint over all tiles.
func (p *Planner) MaxScaleBytes() int {
	return p.maxOver(p.ScaleBytes)
}

func (p *Planner) maxOver(f func(Descriptor) int) int {
	max := 0
	for i := 0; i < p.Iterations(); i++ {
		if b := f(p.At(i)); b > max {
			max = b
		}
	}
	return max
}

func (s Shape) validate() error {
	switch {
	case s.OutH < 1 || s.OutW < 1:
		return errOutExtents
	case s.OutChannels < 1:
		return errChannels
	case !s.Depthwise && s.InChannels < 1:
		return errChannels
	case s.KernelH < 1 || s.KernelW < 1:
		return errKernel
	case s.StrideH < 1 || s.StrideW < 1:
		return errStride
	case s.TileOutH < 1 || s.TileOutW < 1:
		return errTileExtents
	case s.GroupOut < 1:
		return errGroups
	case !s.Depthwise && s.GroupIn < 1:
		return errGroups
	case s.PadTop < 0 || s.PadBottom < 0 || s.PadLeft < 0 || s.PadRight < 0:
		return errPadding
	case s.PadTop >= s.KernelH || s.PadBottom >= s.KernelH:
		return errPadding
	case s.PadLeft >= s.KernelW || s.PadRight >= s.KernelW:
		return errPadding
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
