// Package builtins implements the built-in functions, indexed by the
// token the tokeniser assigns each name.
package builtins

import (
	"math"
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// Handler evaluates one call. Argument temporaries still belong to the
// caller; results that are fresh strings come back as owned temps.
type Handler func(env *object.Environment, args []object.Value) (object.Value, error)

type entry struct {
	min, max int
	channel  bool // argument is a #channel
	fn       Handler
}

var table [token.NumFuncs]entry

func init() {
	table = [token.NumFuncs]entry{
		token.FnAbs:       {1, 1, false, fnAbs},
		token.FnAcs:       {1, 1, false, mathFn(math.Acos)},
		token.FnAsc:       {1, 1, false, fnAsc},
		token.FnAsn:       {1, 1, false, mathFn(math.Asin)},
		token.FnAtn:       {1, 1, false, mathFn(math.Atan)},
		token.FnBget:      {1, 1, true, fnBget},
		token.FnChrDol:    {1, 1, false, fnChrDol},
		token.FnCos:       {1, 1, false, mathFn(math.Cos)},
		token.FnDeg:       {1, 1, false, mathFn(func(f float64) float64 { return f * 180 / math.Pi })},
		token.FnEof:       {1, 1, true, fnEof},
		token.FnErl:       {0, 0, false, fnErl},
		token.FnErr:       {0, 0, false, fnErr},
		token.FnExp:       {1, 1, false, mathFn(math.Exp)},
		token.FnExt:       {1, 1, true, fnExt},
		token.FnGet:       {0, 0, false, fnGet},
		token.FnGetDol:    {0, 0, false, fnGetDol},
		token.FnInkey:     {1, 1, false, fnInkey},
		token.FnInkeyDol:  {1, 1, false, fnInkeyDol},
		token.FnInstr:     {2, 3, false, fnInstr},
		token.FnInt:       {1, 1, false, fnInt},
		token.FnLeftDol:   {2, 2, false, fnLeftDol},
		token.FnLen:       {1, 1, false, fnLen},
		token.FnLn:        {1, 1, false, mathFn(math.Log)},
		token.FnLog:       {1, 1, false, mathFn(math.Log10)},
		token.FnMidDol:    {2, 3, false, fnMidDol},
		token.FnOpenin:    {1, 1, false, fnOpenin},
		token.FnOpenout:   {1, 1, false, fnOpenout},
		token.FnOpenup:    {1, 1, false, fnOpenup},
		token.FnPi:        {0, 0, false, fnPi},
		token.FnPos:       {0, 0, false, fnPos},
		token.FnPtr:       {1, 1, true, fnPtr},
		token.FnRad:       {1, 1, false, mathFn(func(f float64) float64 { return f * math.Pi / 180 })},
		token.FnReportDol: {0, 0, false, fnReportDol},
		token.FnRightDol:  {2, 2, false, fnRightDol},
		token.FnRnd:       {0, 1, false, fnRnd},
		token.FnSgn:       {1, 1, false, fnSgn},
		token.FnSin:       {1, 1, false, mathFn(math.Sin)},
		token.FnSpc:       {1, 1, false, fnPrintOnly},
		token.FnSqr:       {1, 1, false, fnSqr},
		token.FnStrDol:    {1, 1, false, fnStrDol},
		token.FnStringDol: {2, 2, false, fnStringDol},
		token.FnSum:       {1, 1, false, fnPrintOnly},
		token.FnTan:       {1, 1, false, mathFn(math.Tan)},
		token.FnTab:       {1, 1, false, fnPrintOnly},
		token.FnVal:       {1, 1, false, fnVal},
		token.FnVpos:      {0, 0, false, fnVpos},
	}
}

// Args reports the argument count range of a builtin.
func Args(idx int) (int, int) {
	return table[idx].min, table[idx].max
}

// ChannelArg reports whether the builtin's argument is a file channel,
// written with a leading #.
func ChannelArg(idx int) bool {
	return table[idx].channel
}

// Call runs one builtin. The caller has already parsed the arguments.
func Call(env *object.Environment, idx int, args []object.Value) (object.Value, error) {
	e := table[idx]
	if len(args) < e.min || len(args) > e.max {
		return object.Value{}, berrors.New(berrors.BadArgCount)
	}
	return e.fn(env, args)
}

func needNum(v object.Value) error {
	if !v.IsNum() {
		return berrors.New(berrors.TypeNum)
	}
	return nil
}

func needStr(v object.Value) error {
	if !v.IsStr() {
		return berrors.New(berrors.TypeStr)
	}
	return nil
}

// mathFn wraps a float function, flagging domain faults.
func mathFn(f func(float64) float64) Handler {
	return func(env *object.Environment, args []object.Value) (object.Value, error) {
		if err := needNum(args[0]); err != nil {
			return object.Value{}, err
		}
		r := f(args[0].AsFloat())
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return object.Value{}, berrors.New(berrors.BadArith)
		}
		return object.FloatVal(r), nil
	}
}

func fnAbs(env *object.Environment, args []object.Value) (object.Value, error) {
	v := args[0]
	if err := needNum(v); err != nil {
		return object.Value{}, err
	}
	switch v.Kind {
	case object.FloatK:
		return object.FloatVal(math.Abs(v.F)), nil
	case object.Uint8K:
		return v, nil
	}
	if v.I < 0 {
		if v.I == math.MinInt64 {
			return object.Value{}, berrors.New(berrors.Overflow)
		}
		v.I = -v.I
	}
	return v, nil
}

// ASC of the empty string is -1, not an error.
func fnAsc(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needStr(args[0]); err != nil {
		return object.Value{}, err
	}
	s := env.StrFetch(args[0].S)
	if len(s) == 0 {
		return object.IntVal(-1), nil
	}
	return object.IntVal(int32(s[0])), nil
}

func fnBget(env *object.Environment, args []object.Value) (object.Value, error) {
	h, err := channel(args[0])
	if err != nil {
		return object.Value{}, err
	}
	b, err := env.FS().Bget(h)
	if err != nil {
		return object.Value{}, err
	}
	return object.IntVal(int32(b)), nil
}

func fnChrDol(env *object.Environment, args []object.Value) (object.Value, error) {
	b, err := args[0].AsUint8()
	if err != nil {
		return object.Value{}, err
	}
	return storeTemp(env, string([]byte{b}))
}

func fnEof(env *object.Environment, args []object.Value) (object.Value, error) {
	h, err := channel(args[0])
	if err != nil {
		return object.Value{}, err
	}
	at, err := env.FS().Eof(h)
	if err != nil {
		return object.Value{}, err
	}
	if at {
		return object.IntVal(object.True), nil
	}
	return object.IntVal(0), nil
}

func fnErl(env *object.Environment, args []object.Value) (object.Value, error) {
	if env.LastErr == nil || env.LastErr.Line < 0 {
		return object.IntVal(0), nil
	}
	return object.IntVal(int32(env.LastErr.Line)), nil
}

func fnErr(env *object.Environment, args []object.Value) (object.Value, error) {
	if env.LastErr == nil {
		return object.IntVal(0), nil
	}
	return object.IntVal(int32(env.LastErr.Code)), nil
}

func fnExt(env *object.Environment, args []object.Value) (object.Value, error) {
	h, err := channel(args[0])
	if err != nil {
		return object.Value{}, err
	}
	n, err := env.FS().Ext(h)
	if err != nil {
		return object.Value{}, err
	}
	return object.Int64Val(n), nil
}

func fnGet(env *object.Environment, args []object.Value) (object.Value, error) {
	b, ok := env.Terminal().ReadKey()
	if !ok {
		return object.Value{}, berrors.New(berrors.Escape)
	}
	return object.IntVal(int32(b)), nil
}

func fnGetDol(env *object.Environment, args []object.Value) (object.Value, error) {
	b, ok := env.Terminal().ReadKey()
	if !ok {
		return object.Value{}, berrors.New(berrors.Escape)
	}
	return storeTemp(env, string([]byte{b}))
}

// INKEY with a negative argument is a keyboard scan, which the console
// boundary cannot express.
func fnInkey(env *object.Environment, args []object.Value) (object.Value, error) {
	n, err := args[0].AsInt32()
	if err != nil {
		return object.Value{}, err
	}
	if n < 0 {
		return object.Value{}, berrors.New(berrors.Unsupported)
	}
	b, ok := env.Terminal().ReadKey()
	if !ok {
		return object.IntVal(-1), nil
	}
	return object.IntVal(int32(b)), nil
}

func fnInkeyDol(env *object.Environment, args []object.Value) (object.Value, error) {
	n, err := args[0].AsInt32()
	if err != nil {
		return object.Value{}, err
	}
	if n < 0 {
		return object.Value{}, berrors.New(berrors.Unsupported)
	}
	b, ok := env.Terminal().ReadKey()
	if !ok {
		return storeTemp(env, "")
	}
	return storeTemp(env, string([]byte{b}))
}

// INSTR returns the 1-based position of the needle, 0 when absent. An
// empty needle matches at the start position.
func fnInstr(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needStr(args[0]); err != nil {
		return object.Value{}, err
	}
	if err := needStr(args[1]); err != nil {
		return object.Value{}, err
	}
	hay := env.StrFetch(args[0].S)
	needle := env.StrFetch(args[1].S)
	start := 1
	if len(args) == 3 {
		n, err := args[2].AsInt32()
		if err != nil {
			return object.Value{}, err
		}
		start = int(n)
	}
	if start < 1 {
		start = 1
	}
	if start > len(hay) {
		return object.IntVal(0), nil
	}
	at := strings.Index(hay[start-1:], needle)
	if at < 0 {
		return object.IntVal(0), nil
	}
	return object.IntVal(int32(start + at)), nil
}

// INT is a floor, not a truncation.
func fnInt(env *object.Environment, args []object.Value) (object.Value, error) {
	v := args[0]
	if err := needNum(v); err != nil {
		return object.Value{}, err
	}
	if v.Kind != object.FloatK {
		return v, nil
	}
	f := math.Floor(v.F)
	if f >= math.MinInt64 && f <= math.MaxInt64 {
		n := int64(f)
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return object.IntVal(int32(n)), nil
		}
		return object.Int64Val(n), nil
	}
	return object.FloatVal(f), nil
}

func fnLeftDol(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needStr(args[0]); err != nil {
		return object.Value{}, err
	}
	s := env.StrFetch(args[0].S)
	n, err := args[1].AsInt32()
	if err != nil {
		return object.Value{}, err
	}
	if n < 0 {
		n = 0
	}
	if int(n) > len(s) {
		n = int32(len(s))
	}
	return storeTemp(env, s[:n])
}

func fnLen(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needStr(args[0]); err != nil {
		return object.Value{}, err
	}
	return object.IntVal(int32(args[0].S.Len)), nil
}

func fnMidDol(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needStr(args[0]); err != nil {
		return object.Value{}, err
	}
	s := env.StrFetch(args[0].S)
	start, err := args[1].AsInt32()
	if err != nil {
		return object.Value{}, err
	}
	count := int32(len(s))
	if len(args) == 3 {
		count, err = args[2].AsInt32()
		if err != nil {
			return object.Value{}, err
		}
	}
	if start < 1 {
		start = 1
	}
	if int(start) > len(s) || count <= 0 {
		return storeTemp(env, "")
	}
	end := int(start-1) + int(count)
	if end > len(s) {
		end = len(s)
	}
	return storeTemp(env, s[start-1:end])
}

func fnOpenin(env *object.Environment, args []object.Value) (object.Value, error) {
	return open(env, args[0], env.FS().OpenIn)
}

func fnOpenout(env *object.Environment, args []object.Value) (object.Value, error) {
	return open(env, args[0], env.FS().OpenOut)
}

func fnOpenup(env *object.Environment, args []object.Value) (object.Value, error) {
	return open(env, args[0], env.FS().OpenUp)
}

func open(env *object.Environment, name object.Value, f func(string) (int, error)) (object.Value, error) {
	if err := needStr(name); err != nil {
		return object.Value{}, err
	}
	h, err := f(env.StrFetch(name.S))
	if err != nil {
		return object.Value{}, err
	}
	return object.IntVal(int32(h)), nil
}

func fnPi(env *object.Environment, args []object.Value) (object.Value, error) {
	return object.FloatVal(math.Pi), nil
}

func fnPos(env *object.Environment, args []object.Value) (object.Value, error) {
	_, col := env.Terminal().GetCursor()
	return object.IntVal(int32(col)), nil
}

func fnPtr(env *object.Environment, args []object.Value) (object.Value, error) {
	h, err := channel(args[0])
	if err != nil {
		return object.Value{}, err
	}
	n, err := env.FS().Ptr(h)
	if err != nil {
		return object.Value{}, err
	}
	return object.Int64Val(n), nil
}

func fnReportDol(env *object.Environment, args []object.Value) (object.Value, error) {
	if env.LastErr == nil {
		return storeTemp(env, berrors.TextForError(0))
	}
	msg := env.LastErr.Msg
	if msg == "" {
		msg = berrors.TextForError(env.LastErr.Code)
	}
	return storeTemp(env, msg)
}

func fnRightDol(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needStr(args[0]); err != nil {
		return object.Value{}, err
	}
	s := env.StrFetch(args[0].S)
	n, err := args[1].AsInt32()
	if err != nil {
		return object.Value{}, err
	}
	if n < 0 {
		n = 0
	}
	if int(n) > len(s) {
		n = int32(len(s))
	}
	return storeTemp(env, s[len(s)-int(n):])
}

// RND forms: no argument draws a fresh 32 bit integer; RND(1) draws a
// float in [0,1); RND(0) repeats the last RND(1); RND(n) for n>1 draws
// 1..n; a negative argument reseeds and returns it.
func fnRnd(env *object.Environment, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.IntVal(int32(env.RandomInt(math.MaxInt32))), nil
	}
	n, err := args[0].AsInt32()
	if err != nil {
		return object.Value{}, err
	}
	switch {
	case n < 0:
		env.Randomize(int64(n))
		return object.IntVal(n), nil
	case n == 0:
		return object.FloatVal(env.Random(0)), nil
	case n == 1:
		return object.FloatVal(env.Random(1)), nil
	}
	return object.IntVal(env.RandomInt(n)), nil
}

func fnSgn(env *object.Environment, args []object.Value) (object.Value, error) {
	v := args[0]
	if err := needNum(v); err != nil {
		return object.Value{}, err
	}
	f := v.AsFloat()
	switch {
	case f > 0:
		return object.IntVal(1), nil
	case f < 0:
		return object.IntVal(-1), nil
	}
	return object.IntVal(0), nil
}

func fnSqr(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needNum(args[0]); err != nil {
		return object.Value{}, err
	}
	f := args[0].AsFloat()
	if f < 0 {
		return object.Value{}, berrors.New(berrors.BadArith)
	}
	return object.FloatVal(math.Sqrt(f)), nil
}

func fnStrDol(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needNum(args[0]); err != nil {
		return object.Value{}, err
	}
	format := int32(defaultFormat)
	if fw, err := env.FormatVar().Val.AsInt32(); err == nil && fw&strUsesFormat != 0 {
		format = fw
	}
	return storeTemp(env, FormatNum(format, args[0]))
}

func fnStringDol(env *object.Environment, args []object.Value) (object.Value, error) {
	n, err := args[0].AsInt32()
	if err != nil {
		return object.Value{}, err
	}
	if err := needStr(args[1]); err != nil {
		return object.Value{}, err
	}
	if n < 0 || int(n)*args[1].S.Len > object.MaxString {
		return object.Value{}, berrors.New(berrors.StringTooLong)
	}
	return storeTemp(env, strings.Repeat(env.StrFetch(args[1].S), int(n)))
}

// SumArray adds up a whole numeric array, or concatenates a string one.
// SUM is the one builtin whose argument is an array.
func SumArray(env *object.Environment, a *object.Array) (object.Value, error) {
	if a.ElemKind == object.StringK {
		var b strings.Builder
		for _, d := range a.Strs {
			b.WriteString(env.StrFetch(d))
			if b.Len() > object.MaxString {
				return object.Value{}, berrors.New(berrors.StringTooLong)
			}
		}
		return storeTemp(env, b.String())
	}
	if a.Storage == object.Borrowed {
		var f float64
		for i := 0; i < a.Count; i++ {
			v, err := a.Get(env.WS, i)
			if err != nil {
				return object.Value{}, err
			}
			f += v.AsFloat()
		}
		return object.FloatVal(f), nil
	}
	switch a.ElemKind {
	case object.FloatK:
		var f float64
		for _, v := range a.Floats {
			f += v
		}
		return object.FloatVal(f), nil
	case object.Int64K:
		var n int64
		for _, v := range a.Longs {
			n += v
		}
		return object.Int64Val(n), nil
	case object.Uint8K:
		var n int64
		for _, v := range a.Bytes {
			n += int64(v)
		}
		return object.Int64Val(n), nil
	}
	var n int64
	for _, v := range a.Ints {
		n += int64(v)
	}
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return object.IntVal(int32(n)), nil
	}
	return object.Int64Val(n), nil
}

// VAL reads a leading number out of a string, 0 when there is none.
// Hex and binary literals are accepted with their & and % prefixes.
func fnVal(env *object.Environment, args []object.Value) (object.Value, error) {
	if err := needStr(args[0]); err != nil {
		return object.Value{}, err
	}
	s := env.StrFetch(args[0].S)
	v, _ := ParseNum(s)
	return v, nil
}

func fnVpos(env *object.Environment, args []object.Value) (object.Value, error) {
	row, _ := env.Terminal().GetCursor()
	return object.IntVal(int32(row)), nil
}

// fnPrintOnly covers TAB, SPC and SUM, which the expression walker
// handles itself. Landing here means they appeared somewhere they
// cannot.
func fnPrintOnly(env *object.Environment, args []object.Value) (object.Value, error) {
	return object.Value{}, berrors.New(berrors.Syntax)
}

func channel(v object.Value) (int, error) {
	n, err := v.AsInt32()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func storeTemp(env *object.Environment, s string) (object.Value, error) {
	d, err := env.StrStore(s)
	if err != nil {
		return object.Value{}, err
	}
	return object.TempStr(d), nil
}
