package object

import (
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/heap"
)

// VarKind enumerates every kind of storage location an assignment can
// target: the scalar variables, the indirection forms, whole arrays,
// routine records and the pseudo-variables.
type VarKind int

const (
	VarIntWord VarKind = iota
	VarUint8
	VarIntLong
	VarFloat
	VarStrDol
	VarIntBytePtr // ?addr
	VarIntWordPtr // !addr
	VarInt64Ptr   // ]addr equivalent, via |addr here
	VarFloatPtr   // |addr
	VarDolStrPtr  // $addr
	VarIntArray
	VarUint8Array
	VarInt64Array
	VarFloatArray
	VarStrArray
	VarFn
	VarProc
	VarHimem
	VarLomem
	VarPage
	VarTime
	VarTimeDol
	VarFilepath
	VarFormat // @%

	NumVarKinds // 24
)

// ScalarKind maps a scalar variable kind to its value kind.
func (k VarKind) ScalarKind() Kind {
	switch k {
	case VarIntWord:
		return IntK
	case VarUint8:
		return Uint8K
	case VarIntLong:
		return Int64K
	case VarFloat:
		return FloatK
	}
	return StringK
}

// ArrayElemKind maps an array variable kind to its element kind.
func (k VarKind) ArrayElemKind() Kind {
	switch k {
	case VarIntArray:
		return IntK
	case VarUint8Array:
		return Uint8K
	case VarInt64Array:
		return Int64K
	case VarFloatArray:
		return FloatK
	}
	return StringK
}

// KindForName infers a variable's kind from the sigil its name ends in.
// An array flag picks the matching array kind.
func KindForName(name string, array bool) VarKind {
	name = strings.TrimSuffix(name, "(")
	scalar := VarFloat
	switch {
	case strings.HasSuffix(name, "%%"):
		scalar = VarIntLong
	case strings.HasSuffix(name, "%"):
		scalar = VarIntWord
	case strings.HasSuffix(name, "&"):
		scalar = VarUint8
	case strings.HasSuffix(name, "$"):
		scalar = VarStrDol
	}
	if !array {
		return scalar
	}
	switch scalar {
	case VarIntWord:
		return VarIntArray
	case VarUint8:
		return VarUint8Array
	case VarIntLong:
		return VarInt64Array
	case VarStrDol:
		return VarStrArray
	}
	return VarFloatArray
}

// Variable is one named record. The payload in use depends on Kind.
type Variable struct {
	Name string
	Kind VarKind
	Val  Value   // scalar payload, including the string descriptor
	Arr  *Array  // array descriptor
	Def  *FnProc // FN/PROC definition record
}

// FnProc is a cached DEF PROC / DEF FN definition.
type FnProc struct {
	Name     string // without the PROC/FN prefix
	IsFn     bool
	Parms    []*Variable // parameter variables, assigned on call
	Body     int         // token address of the first statement
	BodyLine int
}

// CaseArm is one WHEN expression and where its body starts.
type CaseArm struct {
	Expr int // token address of the match expression list entry
	Body int
}

// CaseTable is the branch table a CASE statement builds on first
// execution. MaxWhens bounds the scan.
type CaseTable struct {
	Arms    []CaseArm
	Default int // OTHERWISE body, or Exit if none
	Exit    int // token address just past ENDCASE
}

const MaxWhens = 500

// ArrayStorage distinguishes element vectors the descriptor owns from
// blocks borrowed from a caller-supplied address.
type ArrayStorage int

const (
	Owned ArrayStorage = iota
	Borrowed
)

// Array is a typed element array of up to 10 dimensions. Elements are
// stored row major; each dimension length is one more than its declared
// bound.
type Array struct {
	ElemKind Kind
	Dims     []int
	Count    int

	Storage ArrayStorage
	Base    int // workspace offset of element 0 when borrowed

	Ints   []int32
	Bytes  []byte
	Longs  []int64
	Floats []float64
	Strs   []StrDesc
}

const MaxDims = 10

// NewArray builds an owned array from declared upper bounds.
func NewArray(elem Kind, bounds []int) (*Array, error) {
	if len(bounds) < 1 || len(bounds) > MaxDims {
		return nil, berrors.New(berrors.BadDimension)
	}
	count := 1
	dims := make([]int, len(bounds))
	for i, b := range bounds {
		if b < 0 {
			return nil, berrors.New(berrors.BadDimension)
		}
		dims[i] = b + 1
		count *= dims[i]
	}
	a := &Array{ElemKind: elem, Dims: dims, Count: count}
	switch elem {
	case IntK:
		a.Ints = make([]int32, count)
	case Uint8K:
		a.Bytes = make([]byte, count)
	case Int64K:
		a.Longs = make([]int64, count)
	case FloatK:
		a.Floats = make([]float64, count)
	default:
		a.Strs = make([]StrDesc, count)
		for i := range a.Strs {
			a.Strs[i] = StrDesc{Ptr: heap.Empty}
		}
	}
	return a, nil
}

// NewBorrowedArray builds a numeric array whose elements live at a
// caller-supplied workspace address.
func NewBorrowedArray(elem Kind, bounds []int, base int) (*Array, error) {
	if elem == StringK {
		return nil, berrors.New(berrors.TypeMismatch)
	}
	a, err := NewArray(elem, bounds)
	if err != nil {
		return nil, err
	}
	a.Ints, a.Bytes, a.Longs, a.Floats = nil, nil, nil, nil
	a.Storage = Borrowed
	a.Base = base
	return a, nil
}

// ElemSize is the per-element byte width for borrowed storage.
func (a *Array) ElemSize() int {
	switch a.ElemKind {
	case Uint8K:
		return 1
	case IntK:
		return 4
	}
	return 8
}

// Index folds per-dimension subscripts into a flat element index,
// range checking each.
func (a *Array) Index(subs []int) (int, error) {
	if len(subs) != len(a.Dims) {
		return 0, berrors.New(berrors.SubscriptRange)
	}
	idx := 0
	for i, s := range subs {
		if s < 0 || s >= a.Dims[i] {
			return 0, berrors.New(berrors.SubscriptRange)
		}
		idx = idx*a.Dims[i] + s
	}
	return idx, nil
}

// Get reads one element. A workspace is needed for borrowed storage.
func (a *Array) Get(ws *heap.Workspace, i int) (Value, error) {
	if i < 0 || i >= a.Count {
		return Value{}, berrors.New(berrors.SubscriptRange)
	}
	if a.Storage == Borrowed {
		off := a.Base + i*a.ElemSize()
		switch a.ElemKind {
		case Uint8K:
			b, err := ws.Peek(off)
			return Uint8Val(b), err
		case IntK:
			n, err := ws.PeekWord(off)
			return IntVal(n), err
		case Int64K:
			n, err := ws.PeekLong(off)
			return Int64Val(n), err
		default:
			f, err := ws.PeekFloat(off)
			return FloatVal(f), err
		}
	}
	switch a.ElemKind {
	case IntK:
		return IntVal(a.Ints[i]), nil
	case Uint8K:
		return Uint8Val(a.Bytes[i]), nil
	case Int64K:
		return Int64Val(a.Longs[i]), nil
	case FloatK:
		return FloatVal(a.Floats[i]), nil
	}
	return StrVal(a.Strs[i]), nil
}

// SetNum stores a numeric value into one element, converting with the
// scalar narrowing rules.
func (a *Array) SetNum(ws *heap.Workspace, i int, v Value) error {
	if i < 0 || i >= a.Count {
		return berrors.New(berrors.SubscriptRange)
	}
	if a.Storage == Borrowed {
		off := a.Base + i*a.ElemSize()
		switch a.ElemKind {
		case Uint8K:
			b, err := v.AsUint8()
			if err != nil {
				return err
			}
			return ws.Poke(off, b)
		case IntK:
			n, err := v.AsInt32()
			if err != nil {
				return err
			}
			return ws.PokeWord(off, n)
		case Int64K:
			n, err := v.AsInt64()
			if err != nil {
				return err
			}
			return ws.PokeLong(off, n)
		default:
			return ws.PokeFloat(off, v.AsFloat())
		}
	}
	switch a.ElemKind {
	case IntK:
		n, err := v.AsInt32()
		if err != nil {
			return err
		}
		a.Ints[i] = n
	case Uint8K:
		b, err := v.AsUint8()
		if err != nil {
			return err
		}
		a.Bytes[i] = b
	case Int64K:
		n, err := v.AsInt64()
		if err != nil {
			return err
		}
		a.Longs[i] = n
	case FloatK:
		a.Floats[i] = v.AsFloat()
	default:
		return berrors.New(berrors.TypeNum)
	}
	return nil
}

// Lvalue describes one assignable location: its kind plus whichever of
// a variable, an array element, or a raw workspace offset it needs.
type Lvalue struct {
	Kind VarKind
	Var  *Variable
	Arr  *Array
	Elem int // flat element index; -1 when the target is the whole array
	Off  int // workspace offset for the indirection kinds
}
