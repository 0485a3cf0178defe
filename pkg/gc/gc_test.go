package gc_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/gclib/pkg/gc"
)

func newTestCollector(t *testing.T) *gc.Collector {
	t.Helper()

	c, err := gc.New(gc.Config{Generations: 3, Buckets: 64, Thresholds: []uint64{1 << 30, 1 << 30, 1 << 30}})
	require.NoError(t, err)

	return c
}

func TestNotReadyBeforeInitRejectsEverything(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)

	assert.False(t, c.Ready())
	assert.Equal(t, gc.NilPtr, c.Alloc(8, false))
	assert.Equal(t, gc.NilPtr, c.Realloc(gc.NilPtr, 8))

	c.Free(gc.NilPtr) // must not panic
	c.Collect()       // must not panic
	c.ForceCollect()  // must not panic
}

func TestInitIsIdempotentWhileReady(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())
	require.NoError(t, c.Init())
	assert.True(t, c.Ready())
}

func TestInitAfterCleanupIsRejected(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())
	c.Cleanup()
	assert.False(t, c.Ready())
	require.Error(t, c.Init())
}

func TestAllocReturnsATrackedBlockWithItsOwnGeneration(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	ptr := c.Alloc(64, false)
	require.NotEqual(t, gc.NilPtr, ptr)

	gen, ok := c.GenerationOf(ptr)
	require.True(t, ok)
	assert.Equal(t, 0, gen)

	c.Free(ptr)

	_, ok = c.GenerationOf(ptr)
	assert.False(t, ok)
}

func TestFreeOfNilAndUnknownPointerIsNoop(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	c.Free(gc.NilPtr)
	c.Free(gc.Ptr(0xdeadbeef)) // never allocated; must not panic
}

func TestReallocNilWithPositiveSizeBehavesLikeAlloc(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	ptr := c.Realloc(gc.NilPtr, 32)
	require.NotEqual(t, gc.NilPtr, ptr)

	_, ok := c.GenerationOf(ptr)
	assert.True(t, ok)
}

func TestReallocToZeroFreesAndReturnsNil(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	ptr := c.Alloc(32, false)
	require.NotEqual(t, gc.NilPtr, ptr)

	got := c.Realloc(ptr, 0)
	assert.Equal(t, gc.NilPtr, got)

	_, ok := c.GenerationOf(ptr)
	assert.False(t, ok)
}

func TestReallocNilAndZeroReturnsNilWithoutAllocating(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	assert.Equal(t, gc.NilPtr, c.Realloc(gc.NilPtr, 0))
	assert.Equal(t, 0, c.Stats().CountPerGen[0])
}

func TestReallocGrowsAndKeepsOneTrackedRecord(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	ptr := c.Alloc(16, false)
	require.NotEqual(t, gc.NilPtr, ptr)

	grown := c.Realloc(ptr, 256)
	require.NotEqual(t, gc.NilPtr, grown)

	assert.Equal(t, 1, c.Stats().CountPerGen[0])

	c.Free(grown)
}

func TestStatsReflectsAllocationsInGenerationZero(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	a := c.Alloc(16, false)
	b := c.Alloc(32, false)
	require.NotEqual(t, gc.NilPtr, a)
	require.NotEqual(t, gc.NilPtr, b)

	st := c.Stats()
	assert.Equal(t, 2, st.CountPerGen[0])
	assert.Equal(t, uint64(48), st.BytesPerGen[0])
}

func TestPrintLeaksReportsEveryLiveBlock(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	ptr := c.Alloc(16, false)
	require.NotEqual(t, gc.NilPtr, ptr)

	var buf strings.Builder
	require.NoError(t, c.PrintLeaks(&buf))

	assert.Contains(t, buf.String(), "Unfreed chunks: 1")
}

func TestCleanupReleasesEveryLiveBlockAndBecomesNotReady(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	_ = c.Alloc(16, false)
	_ = c.Alloc(32, false)

	c.Cleanup()

	assert.False(t, c.Ready())

	st := c.Stats()
	for g := range st.CountPerGen {
		assert.Zero(t, st.CountPerGen[g])
		assert.Zero(t, st.BytesPerGen[g])
	}
}

func TestAllocCheckedReportsNotReady(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)

	_, err := c.AllocChecked(8, false)
	require.Error(t, err)
}

func TestFreeCheckedReportsUnknownPointer(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	err := c.FreeChecked(gc.Ptr(0x1234))
	require.Error(t, err)
}

func TestFreeCheckedSucceedsForATrackedPointer(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	require.NoError(t, c.Init())

	ptr, err := c.AllocChecked(8, false)
	require.NoError(t, err)

	require.NoError(t, c.FreeChecked(ptr))
}
