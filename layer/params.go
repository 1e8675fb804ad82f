// Package layer runs one convolution layer over a memory budget that cannot
// hold its tensors: the layer is cut into tiles, each tile's buffers are
// double-buffered in the local arena, and a leader unit overlaps transfers
// with the compute of the whole cluster.
package layer

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/tilepipe/tile"
)

// Params describes one layer. Extents are elements; input, weight, and
// output elements are one byte each.
type Params struct {
	InH        int `yaml:"in_h"`
	InW        int `yaml:"in_w"`
	InChannels int `yaml:"in_channels"`

	OutChannels int `yaml:"out_channels"`

	KernelH int `yaml:"kernel_h"`
	KernelW int `yaml:"kernel_w"`
	StrideH int `yaml:"stride_h"`
	StrideW int `yaml:"stride_w"`

	PadTop    int `yaml:"pad_top"`
	PadBottom int `yaml:"pad_bottom"`
	PadLeft   int `yaml:"pad_left"`
	PadRight  int `yaml:"pad_right"`

	TileOutH int `yaml:"tile_out_h"`
	TileOutW int `yaml:"tile_out_w"`
	GroupOut int `yaml:"group_out"`
	GroupIn  int `yaml:"group_in"`

	Depthwise bool `yaml:"depthwise"`

	// Requantization. With ScaleBias set, the layer carries per-channel
	// scale and bias vectors; otherwise the scalar OutMult applies.
	OutShift  int   `yaml:"out_shift"`
	OutMult   int32 `yaml:"out_mult"`
	ScaleBias bool  `yaml:"scale_bias"`
}

// LoadParamsFromYAML reads layer parameters from a YAML file.
func LoadParamsFromYAML(path string) (Params, error) {
	var p Params

	data, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrap(err, "read layer params")
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, errors.Wrapf(err, "parse layer params %s", path)
	}

	return p, nil
}

// OutH returns the output height of the layer.
func (p Params) OutH() int {
	return (p.InH+p.PadTop+p.PadBottom-p.KernelH)/p.StrideH + 1
}

// OutW returns the output width of the layer.
func (p Params) OutW() int {
	return (p.InW+p.PadLeft+p.PadRight-p.KernelW)/p.StrideW + 1
}

// Shape returns the tiling shape of the layer.
func (p Params) Shape() tile.Shape {
	groupIn := p.GroupIn
	if p.Depthwise {
		groupIn = p.GroupOut
	}

	return tile.Shape{
		OutH:        p.OutH(),
		OutW:        p.OutW(),
		OutChannels: p.OutChannels,
		InChannels:  p.InChannels,
		KernelH:     p.KernelH,
		KernelW:     p.KernelW,
		StrideH:     p.StrideH,
		StrideW:     p.StrideW,
		PadTop:      p.PadTop,
		PadBottom:   p.PadBottom,
		PadLeft:     p.PadLeft,
		PadRight:    p.PadRight,
		TileOutH:    p.TileOutH,
		TileOutW:    p.TileOutW,
		GroupOut:    p.GroupOut,
		GroupIn:     groupIn,
		Depthwise:   p.Depthwise,
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.InH < 1 || p.InW < 1 {
		return errors.New("input extents must be positive")
	}
	if p.KernelH < 1 || p.KernelW < 1 {
		return errors.New("kernel extents must be positive")
	}
	// OutH and OutW divide by the strides; check them first.
	if p.StrideH < 1 || p.StrideW < 1 {
		return errors.New("strides must be positive")
	}
	if p.Depthwise && p.InChannels != p.OutChannels {
		return errors.Errorf(
			"depthwise layer needs matching channel counts, got %d in and %d out",
			p.InChannels, p.OutChannels)
	}
	if p.OutH() < 1 || p.OutW() < 1 {
		return errors.New("layer produces no output")
	}

	if _, err := tile.NewPlanner(p.Shape()); err != nil {
		return err
	}

	return nil
}
