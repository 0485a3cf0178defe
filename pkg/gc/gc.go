package gc

import (
	"fmt"
	"io"

	"github.com/calvinalkan/gclib/internal/chunkregistry"
	"github.com/calvinalkan/gclib/internal/gccollector"
	"github.com/calvinalkan/gclib/internal/leakreport"
	"github.com/calvinalkan/gclib/internal/rootscan"
	"github.com/calvinalkan/gclib/internal/scanner"
	"github.com/calvinalkan/gclib/internal/sysalloc"
)

// Ptr is an opaque handle to a block managed by a Collector. It wraps the
// block's base address, but callers must never dereference it directly:
// the memory lives in an mmap'd arena outside Go's own GC-visible heap.
// NilPtr is the zero value and plays the role of a null pointer.
type Ptr uintptr

// NilPtr is the Ptr returned wherever the original contract returns NULL.
const NilPtr Ptr = 0

// Stats reports the collector's live-chunk bookkeeping, one entry per
// generation, indexed from the nursery (0) to the oldest generation.
type Stats struct {
	BytesPerGen []uint64
	CountPerGen []int
}

// Collector is a conservative, generational, tracing garbage collector
// standing in for a manual heap allocator. The zero value is not usable;
// construct one with New and call Init before any other method.
//
// Collector is not safe for concurrent use: callers sharing one Collector
// across goroutines must serialize their own access.
type Collector struct {
	cfg Config

	reg   *chunkregistry.Registry
	scn   *scanner.Scanner
	sys   *sysalloc.Allocator
	roots gccollector.Roots

	initialized bool
	cleaned     bool

	// allocFault, when non-nil, is consulted before every real sysalloc
	// call and lets tests deterministically exercise the force-collect-
	// and-retry path without actually exhausting memory.
	allocFault func() bool
}

// New constructs a Collector from cfg. It does not touch the system
// allocator or capture roots; call Init to do that.
func New(cfg Config) (*Collector, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Collector{
		cfg: cfg,
		reg: chunkregistry.New(cfg.Generations, cfg.Buckets),
		sys: sysalloc.New(),
	}, nil
}

// Init captures the collector's root boundaries (the caller's stack frame
// and the process's static data segment) and marks the collector ready.
// It must be called from at or near the program's entry point, since
// everything below Init's own frame on the stack is invisible to the
// scanner. A second call while already initialized is a no-op; calling
// Init again after Cleanup is rejected.
func (c *Collector) Init() error {
	if c.cleaned {
		return errAlreadyReady
	}

	if c.initialized {
		return nil
	}

	c.scn = scanner.New(c.reg)
	c.roots.StackBase = rootscan.FrameAddress()

	if bounds, err := rootscan.DataSegment(); err == nil {
		c.roots.DataStart = bounds.Start
		c.roots.DataEnd = bounds.End
	}

	c.initialized = true

	return nil
}

// Ready reports whether the collector has been initialized and not yet
// cleaned up.
func (c *Collector) Ready() bool {
	return c.initialized && !c.cleaned
}

// Cleanup releases every block the collector still holds and marks it
// unready. It does not force a collection first: live blocks are released
// exactly as they're found in the registry, matching the original's
// resolved choice not to run a final GC pass on shutdown.
func (c *Collector) Cleanup() {
	if !c.Ready() {
		return
	}

	c.reg.DrainAll(c.sys.Release)
	c.cleaned = true
	c.initialized = false
}

// stackTop captures the caller's current frame as the lower bound of the
// scanned stack range for this collection cycle.
func (c *Collector) stackTop() uintptr {
	return rootscan.FrameAddress()
}

func (c *Collector) currentRoots() gccollector.Roots {
	r := c.roots
	r.StackTop = c.stackTop()

	return r
}

// Collect runs a threshold-gated collection: only generations whose live
// byte total exceeds their configured threshold are scanned and swept.
// It is a no-op if the collector is not ready.
func (c *Collector) Collect() {
	if !c.Ready() {
		return
	}

	gccollector.Run(c.reg, c.scn, c.currentRoots(), gccollector.Thresholds(c.cfg.Thresholds), false, c.sys.Release)
}

// ForceCollect runs a collection over every generation unconditionally. It
// is a no-op if the collector is not ready.
func (c *Collector) ForceCollect() {
	if !c.Ready() {
		return
	}

	gccollector.Run(c.reg, c.scn, c.currentRoots(), gccollector.Thresholds(c.cfg.Thresholds), true, c.sys.Release)
}

func (c *Collector) injectedFailure() bool {
	return c.allocFault != nil && c.allocFault()
}

// Alloc requests a block of size bytes, zero-filled when zeroed is true
// (mmap-backed pages are always zero-filled, so the two modes only differ
// in intent, not in observable content). It runs a threshold collection
// first. If the system allocator fails, it force-collects once and
// retries; a second failure propagates as NilPtr. size==0 always returns
// NilPtr without creating a record.
func (c *Collector) Alloc(size int, zeroed bool) Ptr {
	if !c.Ready() || size == 0 {
		return NilPtr
	}

	c.Collect()

	base, ok := c.doAlloc(size, zeroed)
	if !ok {
		c.ForceCollect()

		base, ok = c.doAlloc(size, zeroed)
		if !ok {
			return NilPtr
		}
	}

	c.reg.Insert(base, uintptr(size))

	return Ptr(base)
}

func (c *Collector) doAlloc(size int, zeroed bool) (uintptr, bool) {
	if c.injectedFailure() {
		return 0, false
	}

	if zeroed {
		return c.sys.AllocZeroed(size)
	}

	return c.sys.Alloc(size)
}

// Realloc resizes the block at ptr to newSize bytes, preserving its
// shared prefix. (NilPtr, newSize>0) behaves like Alloc(newSize, false).
// (ptr, 0) behaves like Free(ptr) and returns NilPtr. (NilPtr, 0) returns
// NilPtr. On allocator failure with newSize>0, it force-collects and
// retries once; on definitive failure the original block remains tracked
// and live, and NilPtr is returned.
func (c *Collector) Realloc(ptr Ptr, newSize int) Ptr {
	if !c.Ready() {
		return NilPtr
	}

	if ptr == NilPtr && newSize == 0 {
		return NilPtr
	}

	if ptr == NilPtr {
		return c.Alloc(newSize, false)
	}

	if newSize == 0 {
		c.Free(ptr)
		return NilPtr
	}

	c.Collect()

	newBase, ok := c.doResize(uintptr(ptr), newSize)
	if !ok {
		c.ForceCollect()

		newBase, ok = c.doResize(uintptr(ptr), newSize)
		if !ok {
			return NilPtr
		}
	}

	c.reg.RemoveExact(uintptr(ptr))
	c.reg.Insert(newBase, uintptr(newSize))

	return Ptr(newBase)
}

func (c *Collector) doResize(base uintptr, newSize int) (uintptr, bool) {
	if c.injectedFailure() {
		return 0, false
	}

	return c.sys.Resize(base, newSize)
}

// Free releases the block at ptr and removes its record. Free(NilPtr) is
// a no-op, and so is freeing a pointer this collector does not track.
func (c *Collector) Free(ptr Ptr) {
	if !c.Ready() || ptr == NilPtr {
		return
	}

	if c.reg.RemoveExact(uintptr(ptr)) {
		c.sys.Release(uintptr(ptr))
	}
}

// GenerationOf reports which generation currently holds ptr, and whether
// ptr is tracked at all.
func (c *Collector) GenerationOf(ptr Ptr) (int, bool) {
	return c.reg.GenerationOf(uintptr(ptr))
}

// AllocChecked wraps Alloc with the explicit errors Go callers expect in
// place of the core's null-on-failure contract. It is what cmd/gcstat and
// cmd/gcrepl call, so a user sees "collector is not ready" or "allocation
// failed" instead of a bare nil handle.
func (c *Collector) AllocChecked(size int, zeroed bool) (Ptr, error) {
	if !c.Ready() {
		return NilPtr, errNotReady
	}

	ptr := c.Alloc(size, zeroed)
	if ptr == NilPtr && size != 0 {
		return NilPtr, errAllocFailed
	}

	return ptr, nil
}

// FreeChecked wraps Free, reporting an unready collector or an untracked
// pointer as errors instead of silently doing nothing.
func (c *Collector) FreeChecked(ptr Ptr) error {
	if !c.Ready() {
		return errNotReady
	}

	if ptr == NilPtr {
		return errNilPtr
	}

	if _, ok := c.reg.GenerationOf(uintptr(ptr)); !ok {
		return errUnknownPtr
	}

	c.Free(ptr)

	return nil
}

// Stats snapshots the registry's per-generation bookkeeping.
func (c *Collector) Stats() Stats {
	st := Stats{
		BytesPerGen: make([]uint64, c.reg.Generations()),
		CountPerGen: make([]int, c.reg.Generations()),
	}

	for g := 0; g < c.reg.Generations(); g++ {
		st.BytesPerGen[g] = c.reg.BytesInGeneration(g)
		st.CountPerGen[g] = c.reg.CountInGeneration(g)
	}

	return st
}

// LeakReport snapshots every still-tracked block into a leakreport.Report,
// for callers that want a durable on-disk copy (leakreport.WriteReport)
// rather than the streamed text PrintLeaks writes.
func (c *Collector) LeakReport() leakreport.Report {
	return leakreport.Build(c.reg)
}

// PrintLeaks writes every still-tracked block's address and size to w, in
// the collector's stable report layout, followed by totals. It does not
// force a collection first: a block legitimately rooted at the time of
// the call is reported as "unfreed" too, matching a process-exit audit.
func (c *Collector) PrintLeaks(w io.Writer) error {
	rep := leakreport.Build(c.reg)
	if err := leakreport.Format(w, rep); err != nil {
		return fmt.Errorf("printing leaks: %w", err)
	}

	return nil
}
