// Package xfer moves bytes between the external memory tier and local
// buffers through an asynchronous copy engine. Transfers are expressed as
// two-level strided descriptors; richer access patterns are built by issuing
// a group of descriptors that completes as one unit.
package xfer

// Direction tells which tier a transfer reads from.
type Direction int

const (
	// Load copies external bytes into a local buffer.
	Load Direction = iota
	// Store copies local bytes back to external memory.
	Store
)

// Name returns the name of the direction.
func (d Direction) Name() string {
	switch d {
	case Load:
		return "Load"
	case Store:
		return "Store"
	default:
		panic("invalid direction")
	}
}

// A Descriptor is one two-level strided copy: Count segments of InnerBytes
// each, the source cursor advancing by SrcStride and the destination cursor
// by DstStride between segments. Segments must not overlap within either
// buffer.
type Descriptor struct {
	Direction Direction

	Src       []byte
	SrcOffset int
	SrcStride int

	Dst       []byte
	DstOffset int
	DstStride int

	InnerBytes int
	Count      int
}

// Bytes returns the total payload of the descriptor.
func (d Descriptor) Bytes() int {
	return d.InnerBytes * d.Count
}

// A Handle tracks one issued transfer or transfer group. Completion of the
// handle means every byte of the group has landed.
type Handle interface {
	// Done is closed when the transfer has completed.
	Done() <-chan struct{}

	// Wait blocks until the transfer has completed.
	Wait()
}

// An Engine accepts transfer descriptors and completes them asynchronously,
// in issue order.
type Engine interface {
	// Issue enqueues a single transfer.
	Issue(d Descriptor) Handle

	// IssueGroup enqueues several descriptors that complete as one unit,
	// with a single handle.
	IssueGroup(ds []Descriptor) Handle
}

// A Record summarizes one completed transfer group for observers.
type Record struct {
	Direction   Direction
	Bytes       int
	Descriptors int
}

// A Recorder observes completed transfers. The engine calls Record from its
// worker goroutine, before the group's handle completes.
type Recorder interface {
	Record(r Record)
}
