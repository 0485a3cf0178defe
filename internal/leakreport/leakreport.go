// Package leakreport formats the registry's live chunks into the
// collector's stable leak-report layout and, for tooling that wants a
// durable on-disk snapshot between runs, writes that same report atomically
// to disk.
package leakreport

import (
	"bytes"
	"fmt"
	"io"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/gclib/internal/chunkregistry"
)

// Block is one unfreed allocation as it appears in a report.
type Block struct {
	Base uintptr
	Size uintptr
}

// GenReport groups every live block currently held in one generation.
type GenReport struct {
	Generation int
	Blocks     []Block
}

// Report is the structured form both PrintLeaks (streamed) and
// WriteReport (durable snapshot) are derived from, so both share a single
// source of truth for what counts as a leak.
type Report struct {
	Generations []GenReport
	TotalChunks int
	TotalBytes  uint64
}

// Build snapshots every live record currently held by reg into a Report.
func Build(reg *chunkregistry.Registry) Report {
	byGen := make(map[int][]Block)

	var rep Report

	reg.Enumerate(func(gen int, rec *chunkregistry.Record) {
		byGen[gen] = append(byGen[gen], Block{Base: rec.Base, Size: rec.Size})
		rep.TotalChunks++
		rep.TotalBytes += uint64(rec.Size)
	})

	for gen := 0; gen < reg.Generations(); gen++ {
		rep.Generations = append(rep.Generations, GenReport{Generation: gen, Blocks: byGen[gen]})
	}

	return rep
}

// Format writes rep to w in the collector's stable leak-report layout:
//
//	Generation <g>:
//
//	    Unfreed block:
//	        Address: <hex>
//	        Size: <decimal> (bytes)
//	    …
//
//	TOTAL:
//	    Unfreed chunks: <count>
//	    Unfreed bytes: <decimal>
func Format(w io.Writer, rep Report) error {
	for _, gen := range rep.Generations {
		if _, err := fmt.Fprintf(w, "Generation %d:\n\n", gen.Generation); err != nil {
			return err
		}

		for _, b := range gen.Blocks {
			if _, err := fmt.Fprintf(w, "\tUnfreed block:\n\t\tAddress: %#x\n\t\tSize: %d (bytes)\n\n", b.Base, b.Size); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "TOTAL:\n\tUnfreed chunks: %d\n\tUnfreed bytes: %d\n", rep.TotalChunks, rep.TotalBytes)

	return err
}

// WriteReport durably writes rep's formatted text to path: a temp file in
// the same directory, then a rename over path, so a crash mid-write never
// leaves a half-written report behind.
func WriteReport(path string, rep Report) error {
	var buf bytes.Buffer

	if err := Format(&buf, rep); err != nil {
		return fmt.Errorf("leakreport: formatting report: %w", err)
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("leakreport: writing %s: %w", path, err)
	}

	return nil
}
