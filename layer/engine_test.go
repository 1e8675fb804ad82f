package layer_test

import (
	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/sarchlab/tilepipe/cluster"
	"github.com/sarchlab/tilepipe/kernel"
	"github.com/sarchlab/tilepipe/l1"
	"github.com/sarchlab/tilepipe/layer"
	"github.com/sarchlab/tilepipe/xfer"
)

// doneHandle is a transfer handle that has already completed.
type doneHandle struct{}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (doneHandle) Done() <-chan struct{} { return closedChan }
func (doneHandle) Wait()                 {}

// transferTally classifies the groups a scheduler run issues by the local
// slot they fill. Only the leader unit issues transfers, so no locking is
// needed.
type transferTally struct {
	slots map[*byte]l1.Role

	inputLoads  int
	weightLoads int
	vectorLoads int
	stores      []int
}

// observe learns the engine's slot addresses so loads can be classified by
// the buffer they land in rather than by their shape.
func (c *transferTally) observe(eng *layer.Engine, p layer.Params) {
	c.slots = map[*byte]l1.Role{}
	roles := []l1.Role{l1.RoleInput, l1.RoleWeight}
	if p.ScaleBias {
		roles = append(roles, l1.RoleScale, l1.RoleBias)
	}
	for _, role := range roles {
		pair := eng.Arena().Pair(role)
		for i := 0; i < 2; i++ {
			buf := eng.Arena().Bytes(pair.Slot(i))
			c.slots[&buf[0]] = role
		}
	}
}

func (c *transferTally) record(ds []xfer.Descriptor) {
	d := ds[0]
	if d.Direction == xfer.Store {
		total := 0
		for _, s := range ds {
			total += s.Bytes()
		}
		c.stores = append(c.stores, total)
		return
	}

	role, known := c.slots[&d.Dst[0]]
	if !known {
		panic("load into an unknown local slot")
	}
	switch role {
	case l1.RoleInput:
		c.inputLoads++
	case l1.RoleWeight:
		c.weightLoads++
	case l1.RoleScale, l1.RoleBias:
		c.vectorLoads++
	}
}

func eightGroupParams() layer.Params {
	return layer.Params{
		InH: 32, InW: 16,
		InChannels: 128, OutChannels: 128,
		KernelH: 3, KernelW: 3,
		StrideH: 1, StrideW: 1,
		PadTop: 1, PadBottom: 1, PadLeft: 1, PadRight: 1,
		TileOutH: 32, TileOutW: 16,
		GroupOut:  16,
		Depthwise: true,
		OutShift:  10,
		ScaleBias: true,
	}
}

func emptyTensors(p layer.Params) layer.Tensors {
	weightBytes := p.OutChannels * p.KernelH * p.KernelW
	if !p.Depthwise {
		weightBytes *= p.InChannels
	}

	t := layer.Tensors{
		Input:   make([]byte, p.InH*p.InW*p.InChannels),
		Weights: make([]byte, weightBytes),
		Output:  make([]byte, p.OutH()*p.OutW()*p.OutChannels),
	}
	if p.ScaleBias {
		t.Scale = make([]byte, p.OutChannels*4)
		t.Bias = make([]byte, p.OutChannels*4)
	}
	return t
}

var _ = Describe("Engine", func() {
	var (
		mockCtrl *gomock.Controller
		copier   *MockEngine
		kern     *MockKernel
		tally    *transferTally
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		copier = NewMockEngine(mockCtrl)
		kern = NewMockKernel(mockCtrl)
		tally = &transferTally{}

		copier.EXPECT().
			IssueGroup(gomock.Any()).
			DoAndReturn(func(ds []xfer.Descriptor) xfer.Handle {
				tally.record(ds)
				return doneHandle{}
			}).
			AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func(p layer.Params, units int) *layer.Engine {
		cl := cluster.NewBuilder().WithUnits(units).Build("Cluster")
		eng, err := layer.NewBuilder().
			WithParams(p).
			WithCluster(cl).
			WithTransferEngine(copier).
			WithKernel(kern).
			WithLocalBudget(64 * 1024).
			Build("Layer")
		Expect(err).ToNot(HaveOccurred())
		tally.observe(eng, p)
		return eng
	}

	It("should issue one parameter pair and one writeback per channel group", func() {
		p := eightGroupParams()
		eng := build(p, 4)
		kern.EXPECT().Run(gomock.Any()).Return(nil).AnyTimes()

		Expect(eng.Planner().Iterations()).To(Equal(8))
		Expect(eng.Run(emptyTensors(p))).To(Succeed())

		// Every iteration changes channel group, so every tile fetches
		// fresh weights, scale, and bias. The last iteration prefetches
		// nothing, leaving exactly one input load per tile.
		Expect(tally.inputLoads).To(Equal(8))
		Expect(tally.weightLoads).To(Equal(8))
		Expect(tally.vectorLoads).To(Equal(16))
		Expect(tally.stores).To(HaveLen(8))
		for _, bytes := range tally.stores {
			Expect(bytes).To(Equal(32 * 16 * 16))
		}
	})

	It("should reuse parameters across spatial tiles of one group", func() {
		p := eightGroupParams()
		p.InChannels = 16
		p.OutChannels = 16
		p.TileOutH = 8 // 4 row tiles, single channel group
		eng := build(p, 4)
		kern.EXPECT().Run(gomock.Any()).Return(nil).AnyTimes()

		Expect(eng.Planner().Iterations()).To(Equal(4))
		Expect(eng.Run(emptyTensors(p))).To(Succeed())

		Expect(tally.weightLoads).To(Equal(1))
		Expect(tally.vectorLoads).To(Equal(2))
		Expect(tally.inputLoads).To(Equal(4))
		Expect(tally.stores).To(HaveLen(4))
	})

	It("should write back once per input-channel revolution", func() {
		p := layer.Params{
			InH: 8, InW: 8,
			InChannels: 8, OutChannels: 4,
			KernelH: 1, KernelW: 1,
			StrideH: 1, StrideW: 1,
			TileOutH: 4, TileOutW: 8,
			GroupOut: 4, GroupIn: 4,
			OutShift: 1, OutMult: 1,
		}
		eng := build(p, 4)
		kern.EXPECT().Run(gomock.Any()).Return(nil).AnyTimes()

		// Two row tiles, each revolving over two input groups. The output
		// tile goes out once its revolution has finished, not per group.
		Expect(eng.Planner().Iterations()).To(Equal(4))
		Expect(eng.Run(emptyTensors(p))).To(Succeed())

		Expect(tally.inputLoads).To(Equal(4))
		Expect(tally.stores).To(HaveLen(2))
		for _, bytes := range tally.stores {
			Expect(bytes).To(Equal(4 * 8 * 4))
		}
	})

	It("should hand the kernel the reserved scratch workspace", func() {
		p := eightGroupParams()
		cl := cluster.NewBuilder().WithUnits(1).Build("Cluster")
		eng, err := layer.NewBuilder().
			WithParams(p).
			WithCluster(cl).
			WithTransferEngine(copier).
			WithKernel(kern).
			WithLocalBudget(64 * 1024).
			WithScratchBytes(512).
			Build("Layer")
		Expect(err).ToNot(HaveOccurred())
		tally.observe(eng, p)

		var scratch int
		kern.EXPECT().
			Run(gomock.Any()).
			DoAndReturn(func(inv kernel.Invocation) error {
				scratch = len(inv.Scratch)
				return nil
			}).
			AnyTimes()

		Expect(eng.Run(emptyTensors(p))).To(Succeed())
		Expect(scratch).To(Equal(512))
	})

	It("should run the kernel once per unit per tile", func() {
		p := eightGroupParams()
		const units = 4
		eng := build(p, units)

		kern.EXPECT().Run(gomock.Any()).Return(nil).Times(8 * units)

		Expect(eng.Run(emptyTensors(p))).To(Succeed())
	})

	It("should stop all units together when the kernel fails", func() {
		p := eightGroupParams()
		eng := build(p, 4)

		kern.EXPECT().
			Run(gomock.Any()).
			Return(errors.New("saturated accumulator")).
			AnyTimes()

		err := eng.Run(emptyTensors(p))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("saturated accumulator"))
	})

	It("should reject tensors that do not match the layer", func() {
		p := eightGroupParams()
		eng := build(p, 2)

		t := emptyTensors(p)
		t.Input = t.Input[:16]
		Expect(eng.Run(t)).ToNot(Succeed())
	})
})
