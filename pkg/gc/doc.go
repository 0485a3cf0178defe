// Package gc is a conservative, generational, tracing garbage collector
// that acts as a drop-in replacement for a manual heap allocator.
//
// User code requests blocks of raw bytes through Collector's Alloc/Realloc,
// and the collector reclaims blocks no longer reachable from the process
// stack or the static data segment. A Collector is single-threaded: callers
// needing concurrent access must add their own mutex around every public
// method, matching the original's own non-goal ("thread safety" is out of
// scope for the core engine itself).
package gc
