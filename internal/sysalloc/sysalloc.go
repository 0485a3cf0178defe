// Package sysalloc implements the collector's required external primitives
// (sys_alloc/sys_alloc_zeroed/sys_resize/sys_release) on top of anonymous
// mmap pages rather than Go's own make([]byte, n).
//
// Blocks handed out this way live outside the Go runtime's GC-visible heap:
// they are never referenced by a Go slice or pointer the runtime's own
// collector can see, move, or scan. That is the entire point — the
// conservative collector in pkg/gc manages these bytes itself, and letting
// Go's moving-free-but-copying-stack runtime also think it owns them would
// mean two collectors fighting over one block.
package sysalloc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Allocator hands out page-backed blocks via mmap and tracks their lengths,
// since sys_resize/sys_release only receive a base address, not a size.
//
// Not safe for concurrent use, matching the single-threaded contract the
// rest of this module relies on.
type Allocator struct {
	pageSize int
	lengths  map[uintptr]int
}

// New returns an Allocator ready to serve allocations.
func New() *Allocator {
	return &Allocator{
		pageSize: unix.Getpagesize(),
		lengths:  make(map[uintptr]int),
	}
}

func (a *Allocator) roundToPage(n int) int {
	if n <= 0 {
		return a.pageSize
	}

	pages := (n + a.pageSize - 1) / a.pageSize

	return pages * a.pageSize
}

// Alloc maps a fresh, zero-filled (mmap's kernel-level guarantee) block of
// at least n bytes and returns its base address. It reports ok=false if the
// mapping could not be made.
func (a *Allocator) Alloc(n int) (base uintptr, ok bool) {
	size := a.roundToPage(n)

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, false
	}

	base = uintptr(unsafe.Pointer(&data[0])) //nolint:gosec // mmap-backed block, deliberately outside Go's heap
	a.lengths[base] = size

	return base, true
}

// AllocZeroed is equivalent to Alloc: anonymous mmap pages are always
// zero-filled by the kernel, so there is no separate zeroing path.
func (a *Allocator) AllocZeroed(n int) (base uintptr, ok bool) {
	return a.Alloc(n)
}

// Resize changes the length of the block at ptr, copying the overlapping
// prefix of the old contents into the new block and releasing the old one.
// mmap offers no native resize, so this emulates realloc's contract
// (preserve contents up to min(old,new)) via alloc+copy+release.
//
// ptr==0 is treated as NULL: Resize acts like Alloc(n). n==0 is treated as
// free: the block at ptr is released and Resize reports (0, true).
func (a *Allocator) Resize(ptr uintptr, n int) (base uintptr, ok bool) {
	if ptr == 0 {
		if n == 0 {
			return 0, true
		}

		return a.Alloc(n)
	}

	oldLen, tracked := a.lengths[ptr]
	if !tracked {
		return 0, false
	}

	if n == 0 {
		a.Release(ptr)
		return 0, true
	}

	newBase, allocOK := a.Alloc(n)
	if !allocOK {
		return 0, false
	}

	copyLen := oldLen
	if n < copyLen {
		copyLen = n
	}

	if copyLen > 0 {
		copy(a.view(newBase, copyLen), a.view(ptr, copyLen))
	}

	a.Release(ptr)

	return newBase, true
}

// Release unmaps the block at base. Unmapping an address this allocator
// never handed out, or 0, is a no-op.
func (a *Allocator) Release(base uintptr) {
	if base == 0 {
		return
	}

	length, ok := a.lengths[base]
	if !ok {
		return
	}

	delete(a.lengths, base)

	_ = unix.Munmap(a.view(base, length))
}

// view reinterprets [base, base+n) as a byte slice. Confined to this
// package alongside the rest of the mmap boundary; callers elsewhere in the
// module never see raw pointers, only uintptr handles.
func (a *Allocator) view(base uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), n) //nolint:gosec // mmap-backed block
}
