package xfer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tilepipe/xfer"
)

type captureRecorder struct {
	records []xfer.Record
}

func (r *captureRecorder) Record(rec xfer.Record) {
	r.records = append(r.records, rec)
}

var _ = Describe("CopyEngine", func() {
	var (
		engine   *xfer.CopyEngine
		recorder *captureRecorder
	)

	BeforeEach(func() {
		recorder = &captureRecorder{}
		engine = xfer.NewEngineBuilder().
			WithQueueDepth(4).
			WithRecorder(recorder).
			Build("DMA")
	})

	AfterEach(func() {
		engine.Shutdown()
	})

	It("should copy a contiguous block", func() {
		src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		dst := make([]byte, 8)

		engine.Issue(xfer.Descriptor{
			Direction:  xfer.Load,
			Src:        src,
			Dst:        dst,
			InnerBytes: 8,
			Count:      1,
		}).Wait()

		Expect(dst).To(Equal(src))
	})

	It("should gather strided bytes into a packed buffer", func() {
		// Three interleaved channels; pick out channel 1.
		src := []byte{
			10, 11, 12,
			20, 21, 22,
			30, 31, 32,
			40, 41, 42,
		}
		dst := make([]byte, 4)

		engine.Issue(xfer.Descriptor{
			Direction:  xfer.Load,
			Src:        src,
			SrcOffset:  1,
			SrcStride:  3,
			Dst:        dst,
			DstStride:  1,
			InnerBytes: 1,
			Count:      4,
		}).Wait()

		Expect(dst).To(Equal([]byte{11, 21, 31, 41}))
	})

	It("should scatter packed segments at a stride", func() {
		src := []byte{1, 2, 3, 4}
		dst := make([]byte, 12)

		engine.Issue(xfer.Descriptor{
			Direction:  xfer.Store,
			Src:        src,
			SrcStride:  2,
			Dst:        dst,
			DstOffset:  1,
			DstStride:  5,
			InnerBytes: 2,
			Count:      2,
		}).Wait()

		Expect(dst).To(Equal([]byte{0, 1, 2, 0, 0, 0, 3, 4, 0, 0, 0, 0}))
	})

	It("should complete groups in issue order", func() {
		buf := make([]byte, 4)
		first := engine.Issue(xfer.Descriptor{
			Direction: xfer.Load, Src: []byte{1}, Dst: buf,
			InnerBytes: 1, Count: 1,
		})
		second := engine.Issue(xfer.Descriptor{
			Direction: xfer.Load, Src: []byte{2}, Dst: buf[1:],
			InnerBytes: 1, Count: 1,
		})

		second.Wait()
		Expect(first.Done()).To(BeClosed())
	})

	It("should complete a group as one unit", func() {
		dst := make([]byte, 2)
		h := engine.IssueGroup([]xfer.Descriptor{
			{Direction: xfer.Load, Src: []byte{7}, Dst: dst,
				InnerBytes: 1, Count: 1},
			{Direction: xfer.Load, Src: []byte{9}, Dst: dst[1:],
				InnerBytes: 1, Count: 1},
		})
		h.Wait()

		Expect(dst).To(Equal([]byte{7, 9}))
		Expect(recorder.records).To(HaveLen(1))
		Expect(recorder.records[0].Descriptors).To(Equal(2))
		Expect(recorder.records[0].Bytes).To(Equal(2))
		Expect(recorder.records[0].Direction).To(Equal(xfer.Load))
	})

	It("should tally the bytes moved", func() {
		dst := make([]byte, 16)
		engine.Issue(xfer.Descriptor{
			Direction: xfer.Load, Src: make([]byte, 16), Dst: dst,
			InnerBytes: 16, Count: 1,
		}).Wait()

		Expect(engine.BytesMoved()).To(Equal(uint64(16)))
	})

	It("should reject descriptors that reach outside their buffers", func() {
		issue := func() {
			engine.Issue(xfer.Descriptor{
				Direction: xfer.Load,
				Src:       make([]byte, 4), Dst: make([]byte, 2),
				InnerBytes: 4, Count: 1,
			})
		}
		Expect(issue).To(Panic())
	})

	It("should reject empty groups", func() {
		Expect(func() { engine.IssueGroup(nil) }).To(Panic())
	})
})
