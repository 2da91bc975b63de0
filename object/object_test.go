package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardot/MatrixBrandy-sub002/heap"
)

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b Kind
		exp  Kind
	}{
		{IntK, IntK, IntK},
		{Uint8K, IntK, IntK},
		{IntK, Int64K, Int64K},
		{Int64K, FloatK, FloatK},
		{FloatK, IntK, FloatK},
		{Uint8K, Uint8K, IntK},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.exp, Promote(tt.a, tt.b))
	}
}

func TestNarrowing(t *testing.T) {
	v := FloatVal(3.9)
	n, err := v.AsInt64()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n, "truncates toward zero")

	_, err = FloatVal(1e20).AsInt64()
	assert.Error(t, err)

	_, err = Int64Val(1 << 40).AsInt32()
	assert.Error(t, err)

	b, err := IntVal(255).AsUint8()
	require.NoError(t, err)
	assert.EqualValues(t, 255, b)

	_, err = IntVal(256).AsUint8()
	assert.Error(t, err)
	_, err = IntVal(-1).AsUint8()
	assert.Error(t, err)
}

func TestTruth(t *testing.T) {
	assert.True(t, IntVal(True).Truth())
	assert.True(t, FloatVal(0.5).Truth())
	assert.False(t, IntVal(0).Truth())
	assert.False(t, FloatVal(0).Truth())
}

func TestKindForName(t *testing.T) {
	tests := []struct {
		name  string
		array bool
		exp   VarKind
	}{
		{"count%", false, VarIntWord},
		{"big%%", false, VarIntLong},
		{"flag&", false, VarUint8},
		{"name$", false, VarStrDol},
		{"x", false, VarFloat},
		{"a%(", true, VarIntArray},
		{"w$(", true, VarStrArray},
		{"f(", true, VarFloatArray},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.exp, KindForName(tt.name, tt.array), tt.name)
	}
}

func TestArrayIndexing(t *testing.T) {
	a, err := NewArray(IntK, []int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 12, a.Count, "bounds are inclusive")

	i, err := a.Index([]int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 11, i)

	_, err = a.Index([]int{3, 0})
	assert.Error(t, err)
	_, err = a.Index([]int{0, -1})
	assert.Error(t, err)
	_, err = a.Index([]int{0})
	assert.Error(t, err, "wrong dimension count")
}

func TestArrayGetSet(t *testing.T) {
	ws := heap.New(heap.MinSize)
	a, err := NewArray(Uint8K, []int{3})
	require.NoError(t, err)

	require.NoError(t, a.SetNum(ws, 2, IntVal(200)))
	v, err := a.Get(ws, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 200, v.I)

	assert.Error(t, a.SetNum(ws, 2, IntVal(300)), "out of byte range")
	assert.Error(t, a.SetNum(ws, 9, IntVal(1)))
}

func TestBorrowedArray(t *testing.T) {
	ws := heap.New(heap.MinSize)
	base, err := ws.Alloc(10 * 4)
	require.NoError(t, err)

	a, err := NewBorrowedArray(IntK, []int{9}, base)
	require.NoError(t, err)
	require.NoError(t, a.SetNum(ws, 4, IntVal(77)))

	got, err := ws.PeekWord(base + 4*4)
	require.NoError(t, err)
	assert.EqualValues(t, 77, got)

	_, err = NewBorrowedArray(StringK, []int{3}, base)
	assert.Error(t, err)
}

func TestStackBalance(t *testing.T) {
	ws := heap.New(heap.MinSize)
	s := NewStack(ws)

	s.PushVal(IntVal(1))
	s.PushVal(IntVal(2))
	v, err := s.PopVal()
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.I)

	s.Push(&RepeatFrame{Body: 100})
	_, err = s.PopVal()
	assert.Error(t, err, "control frame is not an operand")
	assert.Equal(t, RepeatItem, s.TopTag(), "failed pop leaves the frame")
}

func TestEmptyToExposesFrame(t *testing.T) {
	s := NewStack(heap.New(heap.MinSize))
	s.Push(&ForFrame{Body: 10})
	s.Push(&RepeatFrame{Body: 20})
	s.PushVal(IntVal(9))

	require.True(t, s.EmptyTo(ForItem))
	assert.Equal(t, ForItem, s.TopTag(), "wanted frame stays on the stack")
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.EmptyTo(WhileItem))
	assert.Equal(t, 1, s.Len(), "failed search leaves the stack alone")
}

func TestUnwindLocalRestores(t *testing.T) {
	ws := heap.New(heap.MinSize)
	s := NewStack(ws)

	v := &Variable{Name: "n%", Kind: VarIntWord, Val: IntVal(99)}
	def := &FnProc{Name: "demo"}
	s.Push(&CallFrame{Def: def, Depth: 0})
	s.Push(&LocalSave{Var: v, Kind: VarIntWord, Val: IntVal(5)})
	v.Val = IntVal(42) // the routine's own value
	s.PushVal(IntVal(7))

	tag := s.UnwindLocal()
	assert.Equal(t, ProcItem, tag)
	assert.EqualValues(t, 5, v.Val.I, "saved value came back")
}

func TestPopSaves(t *testing.T) {
	ws := heap.New(heap.MinSize)
	s := NewStack(ws)

	a := &Variable{Name: "a", Kind: VarFloat, Val: FloatVal(1)}
	b := &Variable{Name: "b", Kind: VarFloat, Val: FloatVal(2)}
	s.Push(&LocalSave{Var: a, Kind: VarFloat, Val: FloatVal(10)})
	s.Push(&LocalSave{Var: b, Kind: VarFloat, Val: FloatVal(20)})
	a.Val, b.Val = FloatVal(0), FloatVal(0)

	s.PopSaves(2)
	assert.EqualValues(t, 10, a.Val.F)
	assert.EqualValues(t, 20, b.Val.F)
	assert.Equal(t, 0, s.Len())
}

func TestHasFrame(t *testing.T) {
	s := NewStack(heap.New(heap.MinSize))
	assert.False(t, s.HasFrame(GosubItem))
	s.Push(&GosubFrame{Ret: 5})
	s.PushVal(IntVal(1))
	assert.True(t, s.HasFrame(GosubItem))
}

func TestReleaseFreesTemp(t *testing.T) {
	ws := heap.New(heap.MinSize)
	s := NewStack(ws)

	p, err := ws.Alloc(8)
	require.NoError(t, err)
	before := ws.InUse()
	s.Release(TempStr(StrDesc{Ptr: p, Len: 8}))
	assert.Less(t, ws.InUse(), before, "temporary went back to the heap")
}
