package main

import (
	"fmt"
	"log"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"

	"github.com/minirop/xenia/cpu"
	clog "github.com/minirop/xenia/log"
	"github.com/minirop/xenia/memory"
)

var (
	fBase      = pflag.Uint32P("base", "b", 0x70000000, "guest address of the managed range")
	fSize      = pflag.Uint32P("size", "s", 64*1024*1024, "size of the managed range in bytes")
	fStackSize = pflag.Uint32("stack-size", 64*1024, "stack size per thread")
	fThreads   = pflag.IntP("threads", "t", 2, "number of thread states to create")
	fDump      = pflag.Bool("dump", false, "dump full register files")
)

type threadSummary struct {
	ThreadID     uint32
	StackBase    string
	StackSize    uint32
	StackPointer string
	ThreadEnv    string
	RegsBlock    string
}

func main() {
	pflag.Parse()

	clog.EnableDebug()

	mem := memory.New(*fBase, *fSize)

	proc, err := cpu.NewProcessor(mem)
	if err != nil {
		log.Fatal(err)
	}

	proc.AddModule("default.xex", *fBase, *fSize)

	for i := 0; i < *fThreads; i++ {
		id := uint32(i + 1)

		ts, err := cpu.NewThreadState(proc, *fStackSize, 0x7FE00000+id*0x1000, id)
		if err != nil {
			log.Fatal(err)
		}

		regs := ts.Regs()

		spew.Dump(threadSummary{
			ThreadID:     ts.ThreadID(),
			StackBase:    fmt.Sprintf("%#x", ts.StackBase()),
			StackSize:    ts.StackSize(),
			StackPointer: fmt.Sprintf("%#x", regs.SP()),
			ThreadEnv:    fmt.Sprintf("%#x", regs.ThreadEnv()),
			RegsBlock:    fmt.Sprintf("%#x", ts.RegsAddr()),
		})

		if *fDump {
			spew.Dump(regs)
		}

		fmt.Printf("sp location: %s\n", proc.LocationOf(uint32(regs.SP())))
	}

	for _, ts := range proc.Threads() {
		ts.Release()
	}

	fmt.Printf("heap in use after teardown: %d bytes, %d allocations\n",
		mem.Heap().InUse(), mem.Heap().Outstanding())
}
