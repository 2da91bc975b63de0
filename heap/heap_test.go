package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// conservation: allocated = in use + binned + free listed
func checkConserved(t *testing.T, ws *Workspace) {
	t.Helper()
	assert.Equal(t, ws.Allocated(), ws.InUse()+ws.Binned()+ws.FreeListed(),
		"heap accounting out of balance")
}

func TestBinSizes(t *testing.T) {
	assert.Equal(t, 46, numBins)
	assert.Equal(t, 0, binSizes[0])
	assert.Equal(t, 128, binSizes[32])
	assert.Equal(t, 256, binSizes[33])
	assert.Equal(t, 1024, binSizes[39])
	assert.Equal(t, 2048, binSizes[40])
	assert.Equal(t, 65536, binSizes[45])

	tests := []struct {
		n    int
		size int
	}{
		{1, 4}, {4, 4}, {5, 8}, {128, 128}, {129, 256},
		{256, 256}, {257, 384}, {1024, 1024}, {1025, 2048},
		{2049, 4096}, {65536, 65536},
	}
	for _, tt := range tests {
		_, size := binFor(tt.n)
		assert.Equalf(t, tt.size, size, "binFor(%d)", tt.n)
	}
}

func TestAllocReuse(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	p, err := ws.Alloc(20)
	assert.NoError(t, err)
	q, err := ws.Alloc(20)
	assert.NoError(t, err)
	assert.NotEqual(t, p, q)

	// freeing a non-top block parks it in a bin; the next same-size
	// request must get the identical pointer back
	ws.Free(p, 20)
	r, err := ws.Alloc(17) // same size class
	assert.NoError(t, err)
	assert.Equal(t, p, r)
	checkConserved(t, ws)
}

func TestFreeTopPopsBumpPointer(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	before := ws.Vartop
	p, _ := ws.Alloc(40)
	assert.True(t, ws.Returnable(p, 40))
	ws.Free(p, 40)
	assert.Equal(t, before, ws.Vartop)
	assert.Equal(t, 0, ws.Binned())
	checkConserved(t, ws)
}

func TestEmptySentinel(t *testing.T) {
	ws := New(MinSize)

	p, err := ws.Alloc(0)
	assert.NoError(t, err)
	assert.Equal(t, Empty, p)

	q, _ := ws.Alloc(0)
	assert.Equal(t, p, q, "all empty strings share one address")

	ws.Free(p, 0) // must be a no-op
	checkConserved(t, ws)
}

func TestBinsSortedByAddress(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	var ptrs []int
	for i := 0; i < 4; i++ {
		p, _ := ws.Alloc(16)
		ptrs = append(ptrs, p)
	}
	hold, _ := ws.Alloc(16) // keeps the freed ones off the top

	// free out of address order
	ws.Free(ptrs[2], 16)
	ws.Free(ptrs[0], 16)
	ws.Free(ptrs[3], 16)
	ws.Free(ptrs[1], 16)
	checkConserved(t, ws)

	// allocations come back lowest address first
	for i := 0; i < 4; i++ {
		p, _ := ws.Alloc(16)
		assert.Equal(t, ptrs[i], p)
	}
	ws.Free(hold, 16)
	checkConserved(t, ws)
}

func TestCoalesce(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	a, _ := ws.Alloc(16)
	b, _ := ws.Alloc(16)
	c, _ := ws.Alloc(16)
	hold, _ := ws.Alloc(16)

	ws.Free(a, 16)
	ws.Free(b, 16)
	ws.Free(c, 16)
	assert.Equal(t, 48, ws.Binned())

	ws.Coalesce()
	checkConserved(t, ws)

	// a..c merged into one 48 byte block, filed under the 48 bin
	assert.Equal(t, 48, ws.Binned())
	assert.Equal(t, 0, ws.FreeListed())

	// and a 48 byte request gets the whole merged block
	p, err := ws.Alloc(45)
	assert.NoError(t, err)
	assert.Equal(t, a, p)

	ws.Free(hold, 16)
	checkConserved(t, ws)
}

func TestFirstFitAfterCoalesce(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	a, _ := ws.Alloc(48)
	b, _ := ws.Alloc(48)
	c, _ := ws.Alloc(48)
	hold, _ := ws.Alloc(16)

	// soak up the rest of the bump region
	for {
		if _, err := ws.Alloc(100); err != nil {
			break
		}
	}

	ws.Free(a, 48)
	ws.Free(b, 48)
	ws.Free(c, 48)
	ws.Coalesce()
	checkConserved(t, ws)

	// 144 bytes is no bin size, so the merged block sits on the
	// secondary list
	assert.Equal(t, 144, ws.FreeListed())

	// bump is full; a 100 byte request is carved from the front of
	// the merged block and the 44 byte remainder goes back to a bin
	p, err := ws.Alloc(100)
	assert.NoError(t, err)
	assert.Equal(t, a, p)
	assert.Equal(t, 44, ws.Binned())
	checkConserved(t, ws)

	// and a request nothing can satisfy reports no room
	_, err = ws.Alloc(4096)
	assert.Error(t, err)

	_ = hold
}

func TestCoalesceReturnsTopToBump(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	base := ws.Vartop
	a, _ := ws.Alloc(16)
	b, _ := ws.Alloc(16)

	ws.Free(a, 16) // parks, b is above it
	ws.Free(b, 16) // pops the top
	assert.Equal(t, 16, ws.Allocated())

	ws.Coalesce()
	assert.Equal(t, base, ws.Vartop, "merged top block rejoins the bump allocator")
	checkConserved(t, ws)
}

func TestResize(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	p, _ := ws.Alloc(10)
	copy(ws.Mem[p:], "abcdefghij")

	// same size class, same pointer
	q, err := ws.Resize(p, 10, 12)
	assert.NoError(t, err)
	assert.Equal(t, p, q)

	// growth copies the contents
	q, err = ws.Resize(p, 12, 200)
	assert.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(ws.Mem[q:q+10]))

	checkConserved(t, ws)
}

func TestResizeShrinkSplitsInPlace(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	p, _ := ws.Alloc(256)
	hold, _ := ws.Alloc(16)

	// 256 -> 128 releases a 128 byte tail which is itself a bin size
	q, err := ws.Resize(p, 256, 128)
	assert.NoError(t, err)
	assert.Equal(t, p, q)
	assert.Equal(t, 128, ws.Binned())
	checkConserved(t, ws)

	tail, _ := ws.Alloc(128)
	assert.Equal(t, p+128, tail)

	ws.Free(hold, 16)
	checkConserved(t, ws)
}

func TestExhaustion(t *testing.T) {
	ws := New(MinSize)
	ws.SetLomem(64)

	_, err := ws.Alloc(len(ws.Mem) * 2)
	assert.Error(t, err)
}

func TestStackBlocks(t *testing.T) {
	ws := New(MinSize)

	mark := ws.Sp
	p, err := ws.StackAlloc(101)
	assert.NoError(t, err)
	assert.Equal(t, ws.Sp, p)
	assert.Equal(t, mark-104, ws.Sp) // rounded up

	ws.StackRestore(mark)
	assert.Equal(t, mark, ws.Sp)

	_, err = ws.StackAlloc(len(ws.Mem) * 2)
	assert.Error(t, err)
}

func TestPeekPoke(t *testing.T) {
	ws := New(MinSize)

	assert.NoError(t, ws.Poke(100, 0x42))
	b, err := ws.Peek(100)
	assert.NoError(t, err)
	assert.EqualValues(t, 0x42, b)

	assert.NoError(t, ws.PokeWord(104, -70000))
	w, _ := ws.PeekWord(104)
	assert.EqualValues(t, -70000, w)

	assert.NoError(t, ws.PokeLong(112, int64(1)<<40))
	l, _ := ws.PeekLong(112)
	assert.EqualValues(t, int64(1)<<40, l)

	assert.NoError(t, ws.PokeFloat(120, 2.5))
	f, _ := ws.PeekFloat(120)
	assert.EqualValues(t, 2.5, f)

	assert.NoError(t, ws.PokeString(130, "HELLO"))
	s, _ := ws.PeekString(130)
	assert.Equal(t, "HELLO", s)

	_, err = ws.Peek(-1)
	assert.Error(t, err)
	err = ws.PokeWord(len(ws.Mem)-2, 1)
	assert.Error(t, err)
}
