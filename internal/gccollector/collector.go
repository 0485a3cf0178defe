// Package gccollector implements the generational mark-sweep policy: which
// generations to collect, marking roots and the chunks they reach, and
// sweeping each selected generation in the order that makes promotion safe.
package gccollector

import (
	"github.com/calvinalkan/gclib/internal/chunkregistry"
	"github.com/calvinalkan/gclib/internal/scanner"
)

// Roots carries the address ranges the mark phase scans without looking at
// any chunk: the portion of the stack above the collector's own frames, and
// the process's static data segment.
type Roots struct {
	StackTop, StackBase uintptr
	DataStart, DataEnd  uintptr
}

// Thresholds gives the per-generation byte ceiling past which that
// generation is included in a threshold collection. Its length must equal
// the registry's Generations().
type Thresholds []uint64

// Run selects which generations to collect, marks every chunk reachable
// from roots (and transitively from other marked chunks), then sweeps the
// selected generations from the oldest down to the nursery.
//
// A generation is selected if allGens is true (force_collect) or its
// current byte total exceeds its threshold. If no generation is selected,
// Run returns immediately without scanning anything.
//
// Sweeping MUST run from the highest generation down to 0: a record
// promoted from g into g+1 by an earlier sweep step must not be revisited
// by the sweep of g+1 within the same cycle: promotion clears its mark, so
// that second visit would release a block that was just found reachable.
func Run(reg *chunkregistry.Registry, scn *scanner.Scanner, roots Roots, thresholds Thresholds, allGens bool, release chunkregistry.ReleaseFunc) {
	generations := reg.Generations()

	toCollect := make([]bool, generations)

	anySelected := false

	for g := 0; g < generations; g++ {
		max := uint64(0)
		if g < len(thresholds) {
			max = thresholds[g]
		}

		if allGens || reg.BytesInGeneration(g) > max {
			toCollect[g] = true
			anySelected = true
		}
	}

	if !anySelected {
		return
	}

	if roots.StackTop < roots.StackBase {
		scn.ScanRange(roots.StackTop, roots.StackBase, toCollect)
	}

	if roots.DataStart < roots.DataEnd {
		scn.ScanRange(roots.DataStart, roots.DataEnd, toCollect)
	}

	for g := generations - 1; g >= 0; g-- {
		if !toCollect[g] {
			continue
		}

		reg.Sweep(g, g < generations-1, release)
	}
}
