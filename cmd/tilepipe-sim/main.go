package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"
	"k8s.io/klog/v2"

	"github.com/sarchlab/tilepipe/cluster"
	"github.com/sarchlab/tilepipe/layer"
	"github.com/sarchlab/tilepipe/timing"
	"github.com/sarchlab/tilepipe/util"
	"github.com/sarchlab/tilepipe/verify"
	"github.com/sarchlab/tilepipe/xfer"
)

var (
	paramsPath = flag.String("params", "samples/dwconv9.yaml",
		"layer parameter file")
	units  = flag.Int("units", 8, "execution units in the cluster")
	budget = flag.Int("l1", 64*1024, "local memory budget in bytes")
	check  = flag.Bool("verify", true,
		"compare the tiled output against the untiled reference")
	estimate = flag.Bool("estimate", true, "print the timing estimate")
	traceLog = flag.Bool("trace", false, "emit per-transfer traces")
)

func makeTensors(p layer.Params) layer.Tensors {
	t := layer.Tensors{
		Input:  make([]byte, p.InH*p.InW*p.InChannels),
		Output: make([]byte, p.OutH()*p.OutW()*p.OutChannels),
	}

	weightBytes := p.OutChannels * p.KernelH * p.KernelW
	if !p.Depthwise {
		weightBytes *= p.InChannels
	}
	t.Weights = make([]byte, weightBytes)

	valgen.FillBytes(t.Input, valgen.MakeCyclicGen(23))
	valgen.FillBytes(t.Weights, valgen.MakeCyclicGen(7))

	if p.ScaleBias {
		t.Scale = make([]byte, p.OutChannels*4)
		t.Bias = make([]byte, p.OutChannels*4)
		valgen.FillWords(t.Scale, valgen.MakeConstGen(1))
		valgen.FillWords(t.Bias, valgen.MakeConstGen(16))
	}

	return t
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *traceLog {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: xfer.LevelTrace,
		})
		slog.SetDefault(slog.New(handler))
	}

	p, err := layer.LoadParamsFromYAML(*paramsPath)
	if err != nil {
		klog.Fatalf("load params: %v", err)
	}

	cl := cluster.NewBuilder().
		WithUnits(*units).
		Build("Cluster")
	copier := xfer.NewEngineBuilder().
		Build("DMA")

	eng, err := layer.NewBuilder().
		WithParams(p).
		WithCluster(cl).
		WithTransferEngine(copier).
		WithLocalBudget(*budget).
		Build("Layer")
	if err != nil {
		klog.Fatalf("build layer engine: %v", err)
	}

	t := makeTensors(p)
	if err := eng.Run(t); err != nil {
		klog.Fatalf("run layer: %v", err)
	}
	copier.Shutdown()

	fmt.Printf("%d tiles, %d bytes moved\n",
		eng.Planner().Iterations(), copier.BytesMoved())

	if *check {
		report, err := verify.Check(p, t)
		if err != nil {
			klog.Fatalf("verify: %v", err)
		}
		report.WriteReport(os.Stdout)
		if !report.OK() {
			atexit.Exit(1)
		}
	}

	if *estimate {
		engine := sim.NewSerialEngine()
		model, err := timing.NewBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithParams(p).
			Build("Timing")
		if err != nil {
			klog.Fatalf("build timing model: %v", err)
		}
		est, err := model.Estimate()
		if err != nil {
			klog.Fatalf("run timing model: %v", err)
		}
		est.WriteEstimate(os.Stdout)
	}

	atexit.Exit(0)
}
