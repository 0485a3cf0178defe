// Package scanner implements the conservative root/heap scanner: given a
// contiguous word-aligned address range, it finds every word that,
// interpreted as an address, falls inside some recorded chunk in a target
// set of generations, marks that chunk reachable, and recursively scans the
// chunk's own interior.
//
// This is the module's unsafe boundary for scanning: the collector and the
// façade deal in uintptr handles and never reinterpret raw memory
// themselves (internal/sysalloc and internal/rootscan keep their own
// unsafe use for mapping pages and taking stack addresses). Scanner
// exposes a single safe, typed entry point (Scanner.ScanRange) to its
// callers.
package scanner

import "github.com/calvinalkan/gclib/internal/chunkregistry"

// GenerationSet selects which generations a scan should consider reachable
// chunks in. Its length must equal the owning registry's Generations().
type GenerationSet = []bool

// ScanResult summarizes one ScanRange call, for diagnostics/testing only;
// it plays no role in collection correctness.
type ScanResult struct {
	WordsScanned int
	NewlyMarked  int
}

// Scanner scans memory ranges against a chunkregistry.Registry, using the
// native machine word as the unit of pointer interpretation.
type Scanner struct {
	reg *chunkregistry.Registry
}

// New returns a Scanner backed by reg. reg must not be nil.
func New(reg *chunkregistry.Registry) *Scanner {
	if reg == nil {
		panic("scanner: nil registry")
	}

	return &Scanner{reg: reg}
}

type memRange struct {
	start, end uintptr
}

// ScanRange treats [start, end) as a sequence of wordSize-aligned machine
// words. Every word is read as a candidate address; any candidate that
// falls inside a not-yet-marked record in one of the target generations
// marks that record reachable and queues its own [Base, Base+Size) range
// for the same treatment.
//
// start and end must be word-aligned and end-start must be a multiple of
// wordSize; callers are responsible for this (stack and data ranges are
// aligned by construction, and a chunk's Base is guaranteed aligned by the
// system allocator).
//
// Marking is idempotent — an already-marked record is never re-scanned —
// so this uses an explicit slice-backed work-queue rather than native
// recursion, bounding scanner stack usage regardless of how deep the
// object graph gets.
func (s *Scanner) ScanRange(start, end uintptr, target GenerationSet) ScanResult {
	var result ScanResult

	if start >= end {
		return result
	}

	queue := []memRange{{start, end}}

	for len(queue) > 0 {
		last := len(queue) - 1
		rng := queue[last]
		queue = queue[:last]

		for p := rng.start; p+wordSize <= rng.end; p += wordSize {
			candidate := readWord(p)
			result.WordsScanned++

			rec := s.reg.FindCovering(candidate, target)
			if rec == nil || rec.Reachable {
				continue
			}

			rec.Reachable = true
			result.NewlyMarked++

			queue = append(queue, memRange{rec.Base, rec.Base + rec.Size})
		}
	}

	return result
}
