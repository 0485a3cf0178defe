package chunkregistry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/gclib/internal/chunkregistry"
)

func newTestRegistry() *chunkregistry.Registry {
	return chunkregistry.New(chunkregistry.DefaultGenerations, chunkregistry.DefaultBuckets)
}

func TestInsertAddsToGenerationZero(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	rec := reg.Insert(0x1000, 64)

	assert.Equal(t, uintptr(0x1000), rec.Base)
	assert.Equal(t, uintptr(64), rec.Size)
	assert.False(t, rec.Reachable)
	assert.Equal(t, 0, rec.Generation)
	assert.Equal(t, uint64(64), reg.BytesInGeneration(0))
	assert.Equal(t, 1, reg.CountInGeneration(0))
}

func TestRemoveExactOnlyMatchesExactBase(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	reg.Insert(0x2000, 32)

	// An interior address must not be removed by RemoveExact.
	assert.False(t, reg.RemoveExact(0x2001))
	assert.Equal(t, 1, reg.CountInGeneration(0))

	assert.True(t, reg.RemoveExact(0x2000))
	assert.Equal(t, 0, reg.CountInGeneration(0))
	assert.Equal(t, uint64(0), reg.BytesInGeneration(0))
}

func TestRemoveExactMissIsNoop(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	assert.False(t, reg.RemoveExact(0xdeadbeef))
}

func TestFindCoveringHonorsHalfOpenRange(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	reg.Insert(0x3000, 16)

	gens := allGens(reg)

	// base is covered.
	rec := reg.FindCovering(0x3000, gens)
	require.NotNil(t, rec)
	assert.Equal(t, uintptr(0x3000), rec.Base)

	// interior address is covered.
	rec = reg.FindCovering(0x3008, gens)
	require.NotNil(t, rec)

	// base+size is NOT covered (half-open upper bound).
	rec = reg.FindCovering(0x3010, gens)
	assert.Nil(t, rec)
}

func TestFindCoveringRespectsTargetGenerationSet(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	rec := reg.Insert(0x4000, 8)
	rec.Reachable = true
	reg.Sweep(0, true, func(uintptr) {}) // promotes into generation 1

	gens := make([]bool, reg.Generations())
	gens[0] = true

	assert.Nil(t, reg.FindCovering(0x4000, gens))

	gens[0] = false
	gens[1] = true
	assert.NotNil(t, reg.FindCovering(0x4000, gens))
}

func TestSweepFreesUnreachableAndPromotesReachable(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	dead := reg.Insert(0x5000, 8)
	alive := reg.Insert(0x6000, 8)
	alive.Reachable = true

	var released []uintptr

	reg.Sweep(0, true, func(base uintptr) {
		released = append(released, base)
	})

	assert.Equal(t, []uintptr{dead.Base}, released)
	assert.Equal(t, 0, reg.CountInGeneration(0))
	assert.Equal(t, 1, reg.CountInGeneration(1))
	assert.False(t, alive.Reachable, "mark must be cleared after sweep")
	assert.Equal(t, 1, alive.Generation)
}

func TestSweepWithoutPromotionKeepsReachableInPlace(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	rec := reg.Insert(0x7000, 8)

	// Promote the record into the tenured generation first.
	for g := 0; g < reg.Generations()-1; g++ {
		rec.Reachable = true
		reg.Sweep(g, true, func(uintptr) {})
	}

	rec.Reachable = true

	reg.Sweep(reg.Generations()-1, false, func(uintptr) {
		t.Fatal("tenured generation must not release a reachable record")
	})

	assert.False(t, rec.Reachable)
	assert.Equal(t, reg.Generations()-1, rec.Generation)
	assert.Equal(t, 1, reg.CountInGeneration(reg.Generations()-1))
}

func TestDrainAllReleasesAndClearsEverything(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	reg.Insert(0x8000, 16)
	reg.Insert(0x8100, 16)

	var released []uintptr

	reg.DrainAll(func(base uintptr) {
		released = append(released, base)
	})

	assert.Len(t, released, 2)

	for g := 0; g < reg.Generations(); g++ {
		assert.Equal(t, uint64(0), reg.BytesInGeneration(g))
		assert.Equal(t, 0, reg.CountInGeneration(g))
	}
}

func TestGenerationOf(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	reg.Insert(0x9000, 8)

	gen, ok := reg.GenerationOf(0x9000)
	require.True(t, ok)
	assert.Equal(t, 0, gen)

	_, ok = reg.GenerationOf(0x9001)
	assert.False(t, ok)
}

func TestEnumerateVisitsEveryRecord(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	reg.Insert(0xa000, 8)
	reg.Insert(0xa100, 16)

	seen := map[uintptr]uintptr{}

	reg.Enumerate(func(_ int, rec *chunkregistry.Record) {
		seen[rec.Base] = rec.Size
	})

	assert.Equal(t, map[uintptr]uintptr{0xa000: 8, 0xa100: 16}, seen)
}

func TestHashIsDeterministicAcrossCalls(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	rec1 := reg.Insert(0xb000, 8)
	reg.RemoveExact(0xb000)
	rec2 := reg.Insert(0xb000, 8)

	_ = rec1

	gen, ok := reg.GenerationOf(0xb000)
	require.True(t, ok)
	assert.Equal(t, 0, gen)
	assert.Equal(t, uintptr(0xb000), rec2.Base)
}

func allGens(reg *chunkregistry.Registry) []bool {
	gens := make([]bool, reg.Generations())
	for i := range gens {
		gens[i] = true
	}

	return gens
}
