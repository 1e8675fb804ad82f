package xfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	// LevelTrace sits above Info so per-transfer traces can be enabled
	// without drowning in Debug output.
	LevelTrace slog.Level = slog.LevelInfo + 1
)

// Trace logs high-volume transfer events at LevelTrace.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// CopyEngine is a software transfer engine. A single worker goroutine drains
// the queue, so transfers complete strictly in issue order.
type CopyEngine struct {
	name string
	jobs chan job

	recorder   Recorder
	bytesMoved uint64

	wg sync.WaitGroup
}

type job struct {
	descriptors []Descriptor
	done        chan struct{}
}

type handle struct {
	done chan struct{}
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

func (h *handle) Wait() {
	<-h.done
}

// Name returns the name of the engine.
func (e *CopyEngine) Name() string {
	return e.name
}

// BytesMoved returns the total payload completed so far.
func (e *CopyEngine) BytesMoved() uint64 {
	return atomic.LoadUint64(&e.bytesMoved)
}

// Issue enqueues a single transfer.
func (e *CopyEngine) Issue(d Descriptor) Handle {
	return e.IssueGroup([]Descriptor{d})
}

// IssueGroup enqueues a group of descriptors that completes as one unit.
// Descriptors are validated at issue time; a descriptor that reaches outside
// its buffers is a programming error and panics.
func (e *CopyEngine) IssueGroup(ds []Descriptor) Handle {
	if len(ds) == 0 {
		panic("empty transfer group")
	}
	for i := range ds {
		validate(ds[i])
	}

	h := &handle{done: make(chan struct{})}
	e.jobs <- job{descriptors: ds, done: h.done}
	return h
}

// Shutdown drains the queue and stops the worker. Issuing after Shutdown
// panics.
func (e *CopyEngine) Shutdown() {
	close(e.jobs)
	e.wg.Wait()
}

func (e *CopyEngine) work() {
	defer e.wg.Done()

	for j := range e.jobs {
		total := 0
		for _, d := range j.descriptors {
			perform(d)
			total += d.Bytes()
		}
		atomic.AddUint64(&e.bytesMoved, uint64(total))

		dir := j.descriptors[0].Direction
		if e.recorder != nil {
			e.recorder.Record(Record{
				Direction:   dir,
				Bytes:       total,
				Descriptors: len(j.descriptors),
			})
		}
		Trace("Transfer",
			"Engine", e.name,
			"Direction", dir.Name(),
			"Bytes", total,
			"Descriptors", len(j.descriptors),
		)

		close(j.done)
	}
}

func perform(d Descriptor) {
	so := d.SrcOffset
	do := d.DstOffset
	for i := 0; i < d.Count; i++ {
		copy(d.Dst[do:do+d.InnerBytes], d.Src[so:so+d.InnerBytes])
		so += d.SrcStride
		do += d.DstStride
	}
}

func validate(d Descriptor) {
	if d.InnerBytes <= 0 || d.Count <= 0 {
		panic(fmt.Sprintf(
			"bad transfer shape: %d segments of %d bytes",
			d.Count, d.InnerBytes))
	}
	if d.SrcStride < 0 || d.DstStride < 0 {
		panic("negative transfer stride")
	}
	srcEnd := d.SrcOffset + (d.Count-1)*d.SrcStride + d.InnerBytes
	dstEnd := d.DstOffset + (d.Count-1)*d.DstStride + d.InnerBytes
	if d.SrcOffset < 0 || srcEnd > len(d.Src) {
		panic(fmt.Sprintf(
			"transfer source reaches [%d, %d) in a buffer of %d bytes",
			d.SrcOffset, srcEnd, len(d.Src)))
	}
	if d.DstOffset < 0 || dstEnd > len(d.Dst) {
		panic(fmt.Sprintf(
			"transfer destination reaches [%d, %d) in a buffer of %d bytes",
			d.DstOffset, dstEnd, len(d.Dst)))
	}
}

// EngineBuilder can create copy engines.
type EngineBuilder struct {
	queueDepth int
	recorder   Recorder
}

// NewEngineBuilder returns a builder with a default queue depth.
func NewEngineBuilder() EngineBuilder {
	return EngineBuilder{queueDepth: 16}
}

// WithQueueDepth sets how many transfer groups may be outstanding before
// Issue blocks.
func (b EngineBuilder) WithQueueDepth(depth int) EngineBuilder {
	if depth < 1 {
		panic("queue depth must be at least 1")
	}
	b.queueDepth = depth
	return b
}

// WithRecorder attaches an observer for completed transfers.
func (b EngineBuilder) WithRecorder(r Recorder) EngineBuilder {
	b.recorder = r
	return b
}

// Build creates the engine and starts its worker.
func (b EngineBuilder) Build(name string) *CopyEngine {
	e := &CopyEngine{
		name:     name,
		jobs:     make(chan job, b.queueDepth),
		recorder: b.recorder,
	}
	e.wg.Add(1)
	go e.work()
	return e
}
