package main

import (
	"flag"
	"strings"

	"github.com/tebeka/atexit"
	"k8s.io/klog/v2"

	"github.com/sarchlab/tilepipe/annotate"
)

var (
	tracePath = flag.String("trace", "", "execution trace to annotate")
	outPath   = flag.String("o", "", "annotated output file")
	debugList = flag.String("debug", "",
		"comma-separated debug-info files")
	toolCmd = flag.String("tool", "",
		"toolchain command producing debug info on stdout, e.g. 'objdump -dl prog.elf'")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *tracePath == "" || *outPath == "" {
		klog.Fatal("both -trace and -o are required")
	}

	table := annotate.NewDebugTable()

	for _, path := range strings.Split(*debugList, ",") {
		if path == "" {
			continue
		}
		if err := table.MergeFile(path); err != nil {
			klog.Fatalf("load debug info: %v", err)
		}
	}

	if *toolCmd != "" {
		parts := strings.Fields(*toolCmd)
		if err := table.MergeFromTool(parts[0], parts[1:]...); err != nil {
			klog.Fatalf("run toolchain: %v", err)
		}
	}

	if len(table) == 0 {
		klog.Warning("no debug info loaded; every row will get the placeholder")
	}

	if err := annotate.AnnotateFile(*tracePath, *outPath, table); err != nil {
		klog.Fatalf("annotate: %v", err)
	}

	klog.Infof("annotated %s into %s", *tracePath, *outPath)
	atexit.Exit(0)
}
