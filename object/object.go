// Package object holds the values the interpreter computes with, the
// variable records they live in, and the typed stack that carries both
// operands and control state during execution.
package object

import (
	"fmt"
	"math"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
)

// MaxString is the hard limit on string length.
const MaxString = 65535

// Kind tags a scalar value.
type Kind byte

const (
	IntK     Kind = iota // 32 bit integer
	Uint8K               // unsigned byte
	Int64K               // 64 bit integer
	FloatK               // 64 bit float
	StringK              // borrowed string descriptor
	StrTempK             // owned temporary string, freed by its consumer
)

// StrDesc locates a string in the workspace.
type StrDesc struct {
	Ptr int // heap offset of the bytes
	Len int
}

// Value is one scalar. Numeric kinds use I or F; string kinds use S.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    StrDesc
}

func IntVal(v int32) Value     { return Value{Kind: IntK, I: int64(v)} }
func Uint8Val(v byte) Value    { return Value{Kind: Uint8K, I: int64(v)} }
func Int64Val(v int64) Value   { return Value{Kind: Int64K, I: v} }
func FloatVal(v float64) Value { return Value{Kind: FloatK, F: v} }
func StrVal(d StrDesc) Value   { return Value{Kind: StringK, S: d} }
func TempStr(d StrDesc) Value  { return Value{Kind: StrTempK, S: d} }

// IsNum reports whether the value is one of the numeric kinds.
func (v Value) IsNum() bool {
	return v.Kind != StringK && v.Kind != StrTempK
}

func (v Value) IsStr() bool {
	return v.Kind == StringK || v.Kind == StrTempK
}

// Promote gives the kind of a binary operation's result: float wins,
// then 64 bit, else 32 bit. Bytes take part as 32 bit integers.
func Promote(a, b Kind) Kind {
	if a == FloatK || b == FloatK {
		return FloatK
	}
	if a == Int64K || b == Int64K {
		return Int64K
	}
	return IntK
}

// AsFloat reads any numeric value as an f64.
func (v Value) AsFloat() float64 {
	if v.Kind == FloatK {
		return v.F
	}
	return float64(v.I)
}

// AsInt64 reads any numeric value as an i64, truncating floats toward
// zero. Out of range floats fail with the range error.
func (v Value) AsInt64() (int64, error) {
	if v.Kind != FloatK {
		return v.I, nil
	}
	if v.F >= math.MaxInt64 || v.F <= math.MinInt64 || math.IsNaN(v.F) {
		return 0, berrors.New(berrors.Range)
	}
	return int64(v.F), nil
}

// AsInt32 narrows to an i32 with a range check.
func (v Value) AsInt32() (int32, error) {
	n, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, berrors.New(berrors.Range)
	}
	return int32(n), nil
}

// AsUint8 narrows to a byte with a range check.
func (v Value) AsUint8() (byte, error) {
	n, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, berrors.New(berrors.Range)
	}
	return byte(n), nil
}

// True is the canonical BASIC truth value, all bits set.
const True = -1

// Truth reports whether a numeric value counts as true.
func (v Value) Truth() bool {
	if v.Kind == FloatK {
		return v.F != 0
	}
	return v.I != 0
}

// Inspect renders the value for diagnostics; PRINT has its own
// formatting driven by @%.
func (v Value) Inspect() string {
	switch v.Kind {
	case FloatK:
		return fmt.Sprintf("%g", v.F)
	case StringK, StrTempK:
		return fmt.Sprintf("<string %d:%d>", v.S.Ptr, v.S.Len)
	}
	return fmt.Sprintf("%d", v.I)
}
