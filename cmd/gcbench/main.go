// gcbench measures allocation, free, and force-collect throughput for one
// in-process collector, stdlib-only like the teacher's own seed-bench tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/calvinalkan/gclib/pkg/gc"
)

func main() {
	count := flag.Int("count", 100000, "number of alloc/free cycles")
	size := flag.Int("size", 64, "bytes per allocation")
	keepFraction := flag.Float64("keep", 0.1, "fraction of allocations kept unfreed (held in a Go slice, which the collector does not scan)")
	flag.Parse()

	if err := run(*count, *size, *keepFraction); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(count, size int, keepFraction float64) error {
	collector, err := gc.New(gc.DefaultConfig())
	if err != nil {
		return fmt.Errorf("constructing collector: %w", err)
	}

	if err := collector.Init(); err != nil {
		return fmt.Errorf("initializing collector: %w", err)
	}
	defer collector.Cleanup()

	kept := make([]gc.Ptr, 0, int(float64(count)*keepFraction)+1)

	start := time.Now()

	for i := 0; i < count; i++ {
		ptr := collector.Alloc(size, false)
		if ptr == gc.NilPtr {
			return fmt.Errorf("allocation %d failed", i)
		}

		if float64(i)/float64(count) < keepFraction {
			kept = append(kept, ptr)
		} else {
			collector.Free(ptr)
		}
	}

	allocElapsed := time.Since(start)

	collectStart := time.Now()
	collector.ForceCollect()
	collectElapsed := time.Since(collectStart)

	fmt.Printf("alloc+free: %d ops in %v (%.0f ops/sec)\n", count, allocElapsed.Round(time.Millisecond),
		float64(count)/allocElapsed.Seconds())
	fmt.Printf("force-collect: %v with %d blocks kept unfreed\n", collectElapsed.Round(time.Millisecond), len(kept))

	st := collector.Stats()
	for g := range st.CountPerGen {
		fmt.Printf("generation %d: %d chunks, %d bytes\n", g, st.CountPerGen[g], st.BytesPerGen[g])
	}

	return nil
}
