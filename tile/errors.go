package tile

import "github.com/pkg/errors"

var (
	errOutExtents  = errors.New("output extents must be positive")
	errChannels    = errors.New("channel counts must be positive")
	errKernel      = errors.New("kernel extents must be positive")
	errStride      = errors.New("strides must be positive")
	errTileExtents = errors.New("tile extents must be positive")
	errGroups      = errors.New("channel group widths must be positive")
	errPadding     = errors.New("padding must be non-negative and smaller than the kernel")
)
