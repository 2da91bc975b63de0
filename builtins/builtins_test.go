package builtins

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/mocks"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

func testEnv(t *testing.T) *object.Environment {
	t.Helper()
	return object.NewEnvironment(mocks.NewMockTerm(), heap.New(heap.MinSize))
}

func str(t *testing.T, env *object.Environment, s string) object.Value {
	t.Helper()
	d, err := env.StrStore(s)
	assert.NoError(t, err)
	return object.StrVal(d)
}

func call(t *testing.T, env *object.Environment, idx int, args ...object.Value) object.Value {
	t.Helper()
	v, err := Call(env, idx, args)
	assert.NoError(t, err)
	return v
}

func TestNumericFuncs(t *testing.T) {
	env := testEnv(t)

	v := call(t, env, token.FnAbs, object.IntVal(-5))
	assert.EqualValues(t, 5, v.I)

	v = call(t, env, token.FnSgn, object.FloatVal(-0.5))
	assert.EqualValues(t, -1, v.I)

	v = call(t, env, token.FnInt, object.FloatVal(-2.5))
	assert.Equal(t, object.IntK, v.Kind)
	assert.EqualValues(t, -3, v.I)

	v = call(t, env, token.FnSqr, object.IntVal(9))
	assert.InDelta(t, 3.0, v.F, 1e-12)

	v = call(t, env, token.FnPi)
	assert.InDelta(t, math.Pi, v.F, 1e-15)

	v = call(t, env, token.FnDeg, object.FloatVal(math.Pi))
	assert.InDelta(t, 180.0, v.F, 1e-9)
}

func TestDomainErrors(t *testing.T) {
	env := testEnv(t)

	_, err := Call(env, token.FnSqr, []object.Value{object.IntVal(-1)})
	assert.Error(t, err)
	assert.Equal(t, berrors.BadArith, err.(*berrors.BasicError).Code)

	_, err = Call(env, token.FnAcs, []object.Value{object.IntVal(2)})
	assert.Error(t, err)

	_, err = Call(env, token.FnLn, []object.Value{object.IntVal(0)})
	assert.Error(t, err)
}

func TestStringFuncs(t *testing.T) {
	env := testEnv(t)
	hello := str(t, env, "hello world")

	v := call(t, env, token.FnLen, hello)
	assert.EqualValues(t, 11, v.I)

	v = call(t, env, token.FnLeftDol, hello, object.IntVal(5))
	assert.Equal(t, "hello", env.StrFetch(v.S))
	assert.Equal(t, object.StrTempK, v.Kind)

	v = call(t, env, token.FnRightDol, hello, object.IntVal(5))
	assert.Equal(t, "world", env.StrFetch(v.S))

	v = call(t, env, token.FnMidDol, hello, object.IntVal(7), object.IntVal(3))
	assert.Equal(t, "wor", env.StrFetch(v.S))

	v = call(t, env, token.FnMidDol, hello, object.IntVal(7))
	assert.Equal(t, "world", env.StrFetch(v.S))

	v = call(t, env, token.FnInstr, hello, str(t, env, "o w"))
	assert.EqualValues(t, 5, v.I)

	v = call(t, env, token.FnInstr, hello, str(t, env, "o"), object.IntVal(6))
	assert.EqualValues(t, 8, v.I)

	v = call(t, env, token.FnInstr, hello, str(t, env, "zebra"))
	assert.EqualValues(t, 0, v.I)

	v = call(t, env, token.FnStringDol, object.IntVal(3), str(t, env, "ab"))
	assert.Equal(t, "ababab", env.StrFetch(v.S))

	v = call(t, env, token.FnChrDol, object.IntVal(65))
	assert.Equal(t, "A", env.StrFetch(v.S))

	v = call(t, env, token.FnAsc, str(t, env, "A"))
	assert.EqualValues(t, 65, v.I)

	v = call(t, env, token.FnAsc, str(t, env, ""))
	assert.EqualValues(t, -1, v.I)
}

func TestOutOfRangeSlices(t *testing.T) {
	env := testEnv(t)
	s := str(t, env, "abc")

	v := call(t, env, token.FnLeftDol, s, object.IntVal(99))
	assert.Equal(t, "abc", env.StrFetch(v.S))

	v = call(t, env, token.FnMidDol, s, object.IntVal(9), object.IntVal(2))
	assert.Equal(t, "", env.StrFetch(v.S))

	v = call(t, env, token.FnRightDol, s, object.IntVal(-1))
	assert.Equal(t, "", env.StrFetch(v.S))
}

func TestVal(t *testing.T) {
	env := testEnv(t)
	tests := []struct {
		in   string
		want float64
	}{
		{"42", 42},
		{"  -3.5xyz", -3.5},
		{"1E2", 100},
		{"&FF", 255},
		{"junk", 0},
		{"", 0},
	}
	for _, tt := range tests {
		v := call(t, env, token.FnVal, str(t, env, tt.in))
		assert.InDelta(t, tt.want, v.AsFloat(), 1e-12, tt.in)
	}
}

func TestRnd(t *testing.T) {
	env := testEnv(t)

	v := call(t, env, token.FnRnd, object.IntVal(1))
	assert.Equal(t, object.FloatK, v.Kind)
	assert.True(t, v.F >= 0 && v.F < 1)

	again := call(t, env, token.FnRnd, object.IntVal(0))
	assert.Equal(t, v.F, again.F)

	for i := 0; i < 20; i++ {
		v = call(t, env, token.FnRnd, object.IntVal(6))
		assert.True(t, v.I >= 1 && v.I <= 6)
	}

	v = call(t, env, token.FnRnd, object.IntVal(-7))
	assert.EqualValues(t, -7, v.I)
}

func TestErrFuncs(t *testing.T) {
	env := testEnv(t)

	v := call(t, env, token.FnErr)
	assert.EqualValues(t, 0, v.I)

	env.LastErr = &berrors.BasicError{Code: berrors.DivByZero, Line: 120}
	v = call(t, env, token.FnErr)
	assert.EqualValues(t, berrors.DivByZero, v.I)
	v = call(t, env, token.FnErl)
	assert.EqualValues(t, 120, v.I)

	v = call(t, env, token.FnReportDol)
	assert.Equal(t, berrors.TextForError(berrors.DivByZero), env.StrFetch(v.S))
}

func TestFileFuncs(t *testing.T) {
	env := testEnv(t)
	fs := mocks.NewMockFS()
	fs.Files["data"] = []byte{10, 20, 30}
	env.SetFS(fs)

	v := call(t, env, token.FnOpenin, str(t, env, "data"))
	h := v.I
	assert.NotZero(t, h)

	v = call(t, env, token.FnExt, object.IntVal(int32(h)))
	assert.EqualValues(t, 3, v.I)

	v = call(t, env, token.FnBget, object.IntVal(int32(h)))
	assert.EqualValues(t, 10, v.I)

	v = call(t, env, token.FnPtr, object.IntVal(int32(h)))
	assert.EqualValues(t, 1, v.I)

	v = call(t, env, token.FnEof, object.IntVal(int32(h)))
	assert.EqualValues(t, 0, v.I)

	// missing files open as channel 0
	v = call(t, env, token.FnOpenin, str(t, env, "absent"))
	assert.EqualValues(t, 0, v.I)
}

func TestGetAndInkey(t *testing.T) {
	env := testEnv(t)
	mt := env.Terminal().(*mocks.MockTerm)
	mt.FeedKeys("Q")

	v := call(t, env, token.FnGet)
	assert.EqualValues(t, 'Q', v.I)

	v = call(t, env, token.FnInkey, object.IntVal(10))
	assert.EqualValues(t, -1, v.I)

	mt.FeedKeys("z")
	v = call(t, env, token.FnInkeyDol, object.IntVal(10))
	assert.Equal(t, "z", env.StrFetch(v.S))
}

func TestSumArray(t *testing.T) {
	env := testEnv(t)

	a, err := object.NewArray(object.IntK, []int{4})
	assert.NoError(t, err)
	copy(a.Ints, []int32{1, 2, 3, 4, 5})
	v, err := SumArray(env, a)
	assert.NoError(t, err)
	assert.EqualValues(t, 15, v.I)

	s, err := object.NewArray(object.StringK, []int{1})
	assert.NoError(t, err)
	s.Strs[0], _ = env.StrStore("ab")
	s.Strs[1], _ = env.StrStore("cd")
	v, err = SumArray(env, s)
	assert.NoError(t, err)
	assert.Equal(t, "abcd", env.StrFetch(v.S))
}

func TestBadArgCount(t *testing.T) {
	env := testEnv(t)
	_, err := Call(env, token.FnLen, nil)
	assert.Error(t, err)
	assert.Equal(t, berrors.BadArgCount, err.(*berrors.BasicError).Code)
}

func TestFormatNum(t *testing.T) {
	tests := []struct {
		format int32
		v      object.Value
		want   string
	}{
		{defaultFormat, object.IntVal(42), "42"},
		{defaultFormat, object.FloatVal(2.5), "2.5"},
		{defaultFormat, object.FloatVal(1e20), "1E20"},
		{0x0002020A, object.FloatVal(2.5), "2.50"},
		{0x0001030A, object.FloatVal(1500), "1.50E3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNum(tt.format, tt.v), tt.want)
	}
}

func TestFormatHex(t *testing.T) {
	s, err := FormatHex(object.IntVal(255))
	assert.NoError(t, err)
	assert.Equal(t, "FF", s)

	s, err = FormatHex(object.IntVal(-1))
	assert.NoError(t, err)
	assert.Equal(t, "FFFFFFFF", s)
}

func TestWidth(t *testing.T) {
	assert.Equal(t, 10, Width(defaultFormat))
}
