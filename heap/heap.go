// Package heap owns the interpreter workspace: one contiguous byte vector
// holding the tokenised program, the variable heap and the byte-block
// stack. String storage comes from a size-binned allocator over the
// variable heap so the churn of short strings stays cheap.
package heap

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
)

// Empty is the shared sentinel address of the zero-length string.
// Allocations are 4-aligned and start past the guard page, so no real
// block can ever land on it.
const Empty = 1

// Default sizes, overridable from the command line.
const (
	DefaultSize = 4 * 1024 * 1024
	MinSize     = 64 * 1024
	guardBytes  = 1024 // safety buffer between VARTOP and the stack
	pageBase    = 16   // offsets 0..15 are never handed out
)

const numBins = 46

// binSizes lists every size class: 33 short bins in 4 byte steps, 7
// medium bins in 128 byte steps, 6 long bins doubling up to 64K.
var binSizes [numBins]int

func init() {
	n := 0
	for sz := 0; sz <= 128; sz += 4 {
		binSizes[n] = sz
		n++
	}
	for sz := 256; sz <= 1024; sz += 128 {
		binSizes[n] = sz
		n++
	}
	for sz := 2048; sz <= 65536; sz *= 2 {
		binSizes[n] = sz
		n++
	}
}

// binFor maps a request to its size class. Requests beyond the largest
// bin get -1 and a 4-aligned raw size.
func binFor(n int) (idx int, size int) {
	switch {
	case n <= 128:
		idx = (n + 3) / 4
	case n <= 1024:
		idx = 33 + (n+127)/128 - 2
	case n <= 65536:
		idx = 40
		for sz := 2048; sz < n; sz *= 2 {
			idx++
		}
	default:
		return -1, align(n)
	}
	return idx, binSizes[idx]
}

func align(n int) int {
	return (n + 3) &^ 3
}

// Workspace is the memory a running program lives in. All addresses are
// byte offsets from the base of Mem, which is what the BASIC indirection
// operators see.
type Workspace struct {
	Mem []byte

	Page   int // start of the program area
	Top    int // first byte past the end-of-program marker
	Lomem  int // start of the variable heap
	Vartop int // bump pointer for the variable heap
	Himem  int // top of the workspace
	Sp     int // byte-block stack pointer, grows down from Himem

	bins     [numBins]int // free-list heads, 0 means empty
	freelist int          // secondary list of odd-sized blocks

	inUse    int // bytes handed out and not yet released
	binned   int // bytes parked in bins
	freeListed int // bytes parked on the secondary list
}

// New builds a workspace of the requested size.
func New(size int) *Workspace {
	if size < MinSize {
		size = MinSize
	}
	ws := &Workspace{
		Mem:   make([]byte, size),
		Page:  pageBase,
		Himem: size,
	}
	ws.Top = ws.Page
	ws.Lomem = ws.Page
	ws.Vartop = ws.Lomem
	ws.Sp = ws.Himem
	return ws
}

// SetLomem moves the base of the variable heap and empties it. The
// program area editor calls this after every change to TOP.
func (ws *Workspace) SetLomem(off int) {
	ws.Lomem = align(off)
	ws.ClearHeap()
}

// ClearHeap throws away every heap allocation, as CLEAR does. The
// program area and its resolved tokens are untouched.
func (ws *Workspace) ClearHeap() {
	ws.Vartop = ws.Lomem
	ws.bins = [numBins]int{}
	ws.freelist = 0
	ws.inUse = 0
	ws.binned = 0
	ws.freeListed = 0
	ws.Sp = ws.Himem
}

// Accounting for the conservation check: every byte between LOMEM and
// VARTOP is either in use, binned, or on the secondary free list.
func (ws *Workspace) Allocated() int  { return ws.Vartop - ws.Lomem }
func (ws *Workspace) InUse() int      { return ws.inUse }
func (ws *Workspace) Binned() int     { return ws.binned }
func (ws *Workspace) FreeListed() int { return ws.freeListed }

// Returnable reports whether a block is the topmost heap allocation, in
// which case releasing it is a pop of the bump pointer.
func (ws *Workspace) Returnable(p, size int) bool {
	_, sz := binFor(size)
	return p+sz == ws.Vartop
}

// Alloc hands out a block big enough for n bytes. Order: matching bin,
// then the bump allocator, then a first-fit walk of the secondary list,
// then one coalesce and retry.
func (ws *Workspace) Alloc(n int) (int, error) {
	if n == 0 {
		return Empty, nil
	}
	p, err := ws.alloc(n)
	if err != nil {
		ws.Coalesce()
		p, err = ws.alloc(n)
	}
	return p, err
}

func (ws *Workspace) alloc(n int) (int, error) {
	idx, size := binFor(n)

	if idx >= 0 && ws.bins[idx] != 0 {
		p := ws.bins[idx]
		ws.bins[idx] = ws.link(p)
		ws.binned -= size
		ws.inUse += size
		return p, nil
	}

	// bump from the variable heap, respecting the stack guard
	if ws.Vartop+size <= ws.Sp-guardBytes {
		p := ws.Vartop
		ws.Vartop += size
		ws.inUse += size
		return p, nil
	}

	// first fit on the secondary list
	prev := 0
	for p := ws.freelist; p != 0; p = ws.link(p) {
		bsz := ws.blockSize(p)
		if bsz < size {
			prev = p
			continue
		}
		ws.unlinkFree(prev, p)
		ws.freeListed -= bsz
		if rem := bsz - size; rem > 0 {
			ws.park(p+size, rem)
		}
		ws.inUse += size
		return p, nil
	}

	return 0, berrors.New(berrors.OutOfMemory)
}

// Free releases a block that was allocated for n bytes.
func (ws *Workspace) Free(p int, n int) {
	if p == Empty || n == 0 || p == 0 {
		return
	}
	_, size := binFor(n)
	ws.inUse -= size

	if p+size == ws.Vartop {
		ws.Vartop = p
		return
	}
	ws.park(p, size)
}

// park files a free block of a known aligned size under the right bin,
// or on the secondary list when no bin matches it exactly. Both lists
// stay sorted by ascending address so the next allocation reuses the
// lowest block and coalescing sees neighbours early.
func (ws *Workspace) park(p, size int) {
	for idx, sz := range binSizes {
		if sz != size {
			continue
		}
		ws.insertSorted(&ws.bins[idx], p)
		ws.binned += size
		return
	}
	ws.setBlockSize(p, size)
	ws.insertSorted(&ws.freelist, p)
	ws.freeListed += size
}

func (ws *Workspace) insertSorted(head *int, p int) {
	if *head == 0 || *head > p {
		ws.setLink(p, *head)
		*head = p
		return
	}
	q := *head
	for ws.link(q) != 0 && ws.link(q) < p {
		q = ws.link(q)
	}
	ws.setLink(p, ws.link(q))
	ws.setLink(q, p)
}

func (ws *Workspace) unlinkFree(prev, p int) {
	if prev == 0 {
		ws.freelist = ws.link(p)
	} else {
		ws.setLink(prev, ws.link(p))
	}
}

// free blocks thread their successor through their first 4 bytes;
// secondary-list blocks carry their size in the next 4.
func (ws *Workspace) link(p int) int {
	return int(binary.LittleEndian.Uint32(ws.Mem[p:]))
}

func (ws *Workspace) setLink(p, next int) {
	binary.LittleEndian.PutUint32(ws.Mem[p:], uint32(next))
}

func (ws *Workspace) blockSize(p int) int {
	return int(binary.LittleEndian.Uint32(ws.Mem[p+4:]))
}

func (ws *Workspace) setBlockSize(p, size int) {
	binary.LittleEndian.PutUint32(ws.Mem[p+4:], uint32(size))
}

// Resize grows or shrinks a string block, copying only when the size
// class changes. A shrink whose released tail lands exactly on a bin
// splits in place.
func (ws *Workspace) Resize(p int, oldn, newn int) (int, error) {
	oldIdx, oldSize := binFor(oldn)
	newIdx, newSize := binFor(newn)

	if p == Empty || oldn == 0 {
		return ws.Alloc(newn)
	}
	if newn == 0 {
		ws.Free(p, oldn)
		return Empty, nil
	}
	if oldIdx == newIdx && oldIdx >= 0 {
		return p, nil
	}

	if newSize < oldSize {
		tail := oldSize - newSize
		for _, sz := range binSizes {
			if sz == tail {
				ws.inUse -= tail
				ws.park(p+newSize, tail)
				return p, nil
			}
		}
	}

	np, err := ws.Alloc(newn)
	if err != nil {
		return 0, err
	}
	copy(ws.Mem[np:np+min(oldn, newn)], ws.Mem[p:p+min(oldn, newn)])
	ws.Free(p, oldn)
	return np, nil
}

type freeBlock struct {
	addr int
	size int
}

// Coalesce merges adjacent free blocks. The merged table is rebuilt
// into bins and the secondary list; a merged block ending at VARTOP is
// given back to the bump allocator.
func (ws *Workspace) Coalesce() {
	var blocks []freeBlock

	for idx, head := range ws.bins {
		for p := head; p != 0; p = ws.link(p) {
			blocks = append(blocks, freeBlock{p, binSizes[idx]})
		}
		ws.bins[idx] = 0
	}
	for p := ws.freelist; p != 0; p = ws.link(p) {
		blocks = append(blocks, freeBlock{p, ws.blockSize(p)})
	}
	ws.freelist = 0
	ws.binned = 0
	ws.freeListed = 0

	if len(blocks) == 0 {
		return
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].addr < blocks[j].addr })

	merged := blocks[:1]
	for _, b := range blocks[1:] {
		last := &merged[len(merged)-1]
		if last.addr+last.size == b.addr {
			last.size += b.size
		} else {
			merged = append(merged, b)
		}
	}

	last := merged[len(merged)-1]
	if last.addr+last.size == ws.Vartop {
		ws.Vartop = last.addr
		merged = merged[:len(merged)-1]
	}

	for _, b := range merged {
		ws.park(b.addr, b.size)
	}
}

// StackAlloc carves a byte block off the downward stack, for
// DIM ... LOCAL. The caller remembers the old Sp and restores it.
func (ws *Workspace) StackAlloc(n int) (int, error) {
	n = align(n)
	if ws.Sp-n < ws.Vartop+guardBytes {
		return 0, berrors.New(berrors.OutOfMemory)
	}
	ws.Sp -= n
	return ws.Sp, nil
}

// StackRestore rewinds the byte-block stack to a saved mark.
func (ws *Workspace) StackRestore(mark int) {
	ws.Sp = mark
}

// Checked accessors for the indirection operators. The unchecked
// variants exist for the interpreter's own bookkeeping where offsets
// are already known good.

func (ws *Workspace) Peek(off int) (byte, error) {
	if off < 0 || off >= len(ws.Mem) {
		return 0, berrors.New(berrors.Range)
	}
	return ws.Mem[off], nil
}

func (ws *Workspace) Poke(off int, b byte) error {
	if off < 0 || off >= len(ws.Mem) {
		return berrors.New(berrors.Range)
	}
	ws.Mem[off] = b
	return nil
}

func (ws *Workspace) PeekWord(off int) (int32, error) {
	if off < 0 || off+4 > len(ws.Mem) {
		return 0, berrors.New(berrors.Range)
	}
	return int32(binary.LittleEndian.Uint32(ws.Mem[off:])), nil
}

func (ws *Workspace) PokeWord(off int, v int32) error {
	if off < 0 || off+4 > len(ws.Mem) {
		return berrors.New(berrors.Range)
	}
	binary.LittleEndian.PutUint32(ws.Mem[off:], uint32(v))
	return nil
}

func (ws *Workspace) PeekLong(off int) (int64, error) {
	if off < 0 || off+8 > len(ws.Mem) {
		return 0, berrors.New(berrors.Range)
	}
	return int64(binary.LittleEndian.Uint64(ws.Mem[off:])), nil
}

func (ws *Workspace) PokeLong(off int, v int64) error {
	if off < 0 || off+8 > len(ws.Mem) {
		return berrors.New(berrors.Range)
	}
	binary.LittleEndian.PutUint64(ws.Mem[off:], uint64(v))
	return nil
}

func (ws *Workspace) PeekFloat(off int) (float64, error) {
	u, err := ws.PeekLong(off)
	return math.Float64frombits(uint64(u)), err
}

func (ws *Workspace) PokeFloat(off int, v float64) error {
	return ws.PokeLong(off, int64(math.Float64bits(v)))
}

// PeekString reads a CR-terminated string starting at off, for the $
// indirection operator.
func (ws *Workspace) PeekString(off int) (string, error) {
	if off < 0 || off >= len(ws.Mem) {
		return "", berrors.New(berrors.Range)
	}
	end := off
	for end < len(ws.Mem) && ws.Mem[end] != '\r' {
		end++
	}
	return string(ws.Mem[off:end]), nil
}

// PokeString writes a string plus terminating CR at off.
func (ws *Workspace) PokeString(off int, s string) error {
	if off < 0 || off+len(s)+1 > len(ws.Mem) {
		return berrors.New(berrors.Range)
	}
	copy(ws.Mem[off:], s)
	ws.Mem[off+len(s)] = '\r'
	return nil
}

// Copy moves bytes inside the workspace; ranges may overlap.
func (ws *Workspace) CopyBytes(dst, src, n int) {
	copy(ws.Mem[dst:dst+n], ws.Mem[src:src+n])
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
