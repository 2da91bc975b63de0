package evaluator

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/builtins"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// expr evaluates the expression at pos, leaving pos on the first token
// past it. Operator priorities follow the BASIC V manual: OR and EOR
// bind loosest, then AND, then the comparisons and shifts together,
// then + -, then * / DIV MOD, then ^, with unary operators tightest.
func (ex *Exec) expr() (object.Value, error) {
	return ex.exprOr()
}

func (ex *Exec) exprOr() (object.Value, error) {
	v, err := ex.exprAnd()
	if err != nil {
		return v, err
	}
	m := ex.ws.Mem
	for {
		op := m[ex.pos]
		if op != token.Or && op != token.Eor {
			return v, nil
		}
		ex.pos++
		rhs, err := ex.exprAnd()
		if err != nil {
			return v, err
		}
		v, err = ex.bitwise(op, v, rhs)
		if err != nil {
			return v, err
		}
	}
}

func (ex *Exec) exprAnd() (object.Value, error) {
	v, err := ex.exprCmp()
	if err != nil {
		return v, err
	}
	m := ex.ws.Mem
	for m[ex.pos] == token.And {
		ex.pos++
		rhs, err := ex.exprCmp()
		if err != nil {
			return v, err
		}
		v, err = ex.bitwise(token.And, v, rhs)
		if err != nil {
			return v, err
		}
	}
	return v, nil
}

func isCmpOp(t byte) bool {
	switch t {
	case token.Equal, token.NE, byte(token.Less), byte(token.Greater),
		token.LE, token.GE, token.Lsl, token.Asr, token.Lsr:
		return true
	}
	return false
}

func (ex *Exec) exprCmp() (object.Value, error) {
	v, err := ex.exprAdd()
	if err != nil {
		return v, err
	}
	m := ex.ws.Mem
	for isCmpOp(m[ex.pos]) {
		op := m[ex.pos]
		ex.pos++
		rhs, err := ex.exprAdd()
		if err != nil {
			return v, err
		}
		switch op {
		case token.Lsl, token.Asr, token.Lsr:
			v, err = ex.shift(op, v, rhs)
		default:
			v, err = ex.compare(op, v, rhs)
		}
		if err != nil {
			return v, err
		}
	}
	return v, nil
}

func (ex *Exec) exprAdd() (object.Value, error) {
	v, err := ex.exprMul()
	if err != nil {
		return v, err
	}
	m := ex.ws.Mem
	for {
		op := m[ex.pos]
		if op != byte(token.Plus) && op != byte(token.Minus) {
			return v, nil
		}
		ex.pos++
		rhs, err := ex.exprMul()
		if err != nil {
			return v, err
		}
		if op == byte(token.Plus) {
			v, err = ex.add(v, rhs)
		} else {
			v, err = ex.numeric2(v, rhs, subVals)
		}
		if err != nil {
			return v, err
		}
	}
}

func (ex *Exec) exprMul() (object.Value, error) {
	v, err := ex.unary()
	if err != nil {
		return v, err
	}
	m := ex.ws.Mem
	for {
		op := m[ex.pos]
		var f func(object.Value, object.Value) (object.Value, error)
		switch op {
		case byte(token.Star):
			f = mulVals
		case byte(token.Slash):
			f = divVals
		case token.Div:
			f = intDivVals
		case token.Mod:
			f = intModVals
		default:
			return v, nil
		}
		ex.pos++
		rhs, err := ex.unary()
		if err != nil {
			return v, err
		}
		v, err = ex.numeric2(v, rhs, f)
		if err != nil {
			return v, err
		}
	}
}

// unary handles the sign and NOT prefixes; they bind tighter than any
// binary operator except ^, so -2^2 is -(2^2).
func (ex *Exec) unary() (object.Value, error) {
	m := ex.ws.Mem
	switch m[ex.pos] {
	case byte(token.Minus):
		ex.pos++
		v, err := ex.unary()
		if err != nil {
			return v, err
		}
		return ex.negate(v)
	case byte(token.Plus):
		ex.pos++
		return ex.unary()
	case token.Not:
		ex.pos++
		v, err := ex.unary()
		if err != nil {
			return v, err
		}
		n, err := v.AsInt64()
		if err != nil {
			return v, err
		}
		if v.Kind == object.IntK || v.Kind == object.Uint8K {
			return object.IntVal(^int32(n)), nil
		}
		return object.Int64Val(^n), nil
	}
	return ex.power()
}

func (ex *Exec) power() (object.Value, error) {
	v, err := ex.factor()
	if err != nil {
		return v, err
	}
	m := ex.ws.Mem
	for m[ex.pos] == byte(token.Caret) {
		ex.pos++
		rhs, err := ex.unary()
		if err != nil {
			return v, err
		}
		v, err = ex.numeric2(v, rhs, powVals)
		if err != nil {
			return v, err
		}
	}
	return v, nil
}

func (ex *Exec) negate(v object.Value) (object.Value, error) {
	switch v.Kind {
	case object.FloatK:
		return object.FloatVal(-v.F), nil
	case object.StringK, object.StrTempK:
		return v, berrors.New(berrors.TypeNum)
	}
	if v.I == math.MinInt64 {
		return v, berrors.New(berrors.Overflow)
	}
	n := -v.I
	if v.Kind == object.Int64K || n > math.MaxInt32 || n < math.MinInt32 {
		return object.Int64Val(n), nil
	}
	return object.IntVal(int32(n)), nil
}

// factor reads one operand, then applies the dyadic indirection
// operators, which bind tighter than everything else.
func (ex *Exec) factor() (object.Value, error) {
	v, err := ex.primary()
	if err != nil {
		return v, err
	}
	m := ex.ws.Mem
	for {
		op := m[ex.pos]
		if op != byte(token.Query) && op != byte(token.Pling) {
			return v, nil
		}
		ex.pos++
		rhs, err := ex.primary()
		if err != nil {
			return v, err
		}
		base, err := v.AsInt64()
		if err != nil {
			return v, err
		}
		off, err := rhs.AsInt64()
		if err != nil {
			return v, err
		}
		v, err = ex.peekInd(op, int(base+off))
		if err != nil {
			return v, err
		}
	}
}

func (ex *Exec) peekInd(op byte, addr int) (object.Value, error) {
	switch op {
	case byte(token.Query):
		b, err := ex.ws.Peek(addr)
		return object.IntVal(int32(b)), err
	case byte(token.Pling):
		n, err := ex.ws.PeekWord(addr)
		return object.IntVal(n), err
	case byte(token.Bar):
		f, err := ex.ws.PeekFloat(addr)
		return object.FloatVal(f), err
	}
	s, err := ex.ws.PeekString(addr)
	if err != nil {
		return object.Value{}, err
	}
	d, err := ex.env.StrStore(s)
	if err != nil {
		return object.Value{}, err
	}
	return object.TempStr(d), nil
}

func (ex *Exec) primary() (object.Value, error) {
	m := ex.ws.Mem
	t := m[ex.pos]
	switch t {
	case token.SmallInt:
		v := object.IntVal(int32(m[ex.pos+1]))
		ex.pos += 2
		return v, nil
	case token.IntLit:
		v := object.IntVal(int32(binary.LittleEndian.Uint32(m[ex.pos+1:])))
		ex.pos += 5
		return v, nil
	case token.Int64Lit:
		v := object.Int64Val(int64(binary.LittleEndian.Uint64(m[ex.pos+1:])))
		ex.pos += 9
		return v, nil
	case token.FloatLit:
		v := object.FloatVal(math.Float64frombits(binary.LittleEndian.Uint64(m[ex.pos+1:])))
		ex.pos += 9
		return v, nil
	case token.StringLit:
		l := int(binary.LittleEndian.Uint16(m[ex.pos+1:]))
		s := string(m[ex.pos+3 : ex.pos+3+l])
		ex.pos += 3 + l
		d, err := ex.env.StrStore(s)
		if err != nil {
			return object.Value{}, err
		}
		return object.TempStr(d), nil
	case token.True:
		ex.pos++
		return object.IntVal(object.True), nil
	case token.False:
		ex.pos++
		return object.IntVal(0), nil
	case byte(token.LParen):
		ex.pos++
		v, err := ex.expr()
		if err != nil {
			return v, err
		}
		if m[ex.pos] != byte(token.RParen) {
			return v, berrors.New(berrors.MissingParen)
		}
		ex.pos++
		return v, nil
	case byte(token.Query), byte(token.Pling), byte(token.Bar), byte(token.Dollar):
		ex.pos++
		av, err := ex.primary()
		if err != nil {
			return av, err
		}
		addr, err := av.AsInt64()
		if err != nil {
			return av, err
		}
		return ex.peekInd(t, int(addr))
	case token.StaticVar:
		v := ex.env.Static(int(m[ex.pos+1]))
		ex.pos += 2
		return v.Val, nil
	case token.FuncTok:
		return ex.callBuiltin()
	case token.XVar, token.IntVar, token.Uint8Var, token.Int64Var,
		token.FloatVar, token.StrVar, token.ArrayVar:
		return ex.readVar()
	case token.XFnProcCall, token.FnProcCall:
		if !strings.HasPrefix(ex.prog.VarName(ex.pos), "FN") {
			return object.Value{}, berrors.New(berrors.Syntax)
		}
		return ex.callRoutine(true)
	case token.Time:
		ex.pos++
		if ex.env.Mos() == nil {
			return object.IntVal(0), nil
		}
		return object.Int64Val(ex.env.Mos().Time()), nil
	case token.TimeDol:
		ex.pos++
		s := ""
		if ex.env.Mos() != nil {
			s = ex.env.Mos().TimeDol()
		}
		d, err := ex.env.StrStore(s)
		if err != nil {
			return object.Value{}, err
		}
		return object.TempStr(d), nil
	case token.Himem:
		ex.pos++
		return object.IntVal(int32(ex.ws.Himem)), nil
	case token.Lomem:
		ex.pos++
		return object.IntVal(int32(ex.ws.Lomem)), nil
	case token.Page:
		ex.pos++
		return object.IntVal(int32(ex.ws.Page)), nil
	case token.Filepath:
		ex.pos++
		d, err := ex.env.StrStore(ex.env.Filepath)
		if err != nil {
			return object.Value{}, err
		}
		return object.TempStr(d), nil
	case token.BadLine:
		return object.Value{}, berrors.New(int(m[ex.pos+1]))
	}
	return object.Value{}, berrors.New(berrors.Syntax)
}

// lookupVar finds (or resolves) the variable record under pos. Missing
// variables error in read context and are created in write context.
func (ex *Exec) lookupVar(create bool) (*object.Variable, error) {
	m := ex.ws.Mem
	t := m[ex.pos]
	if t != token.XVar {
		idx := ex.prog.Payload(ex.pos)
		if idx < 0 || idx >= len(ex.env.Registry) {
			return nil, berrors.New(berrors.BadProgram)
		}
		ex.pos = ex.prog.Skip(ex.pos)
		return ex.env.Registry[idx], nil
	}

	name := ex.prog.VarName(ex.pos)
	isArray := m[ex.prog.Skip(ex.pos)] == byte(token.LParen)
	key := name
	if isArray {
		key += "("
	}
	v := ex.env.FindVariable(key)
	if v == nil {
		if !create {
			return nil, berrors.NewMsg(berrors.NoSuchVariable,
				"No such variable "+name)
		}
		v = ex.env.CreateVariable(key, isArray)
	}
	idx := ex.env.Register(v)
	ex.prog.Resolve(ex.pos, resolvedVarToken(v.Kind), idx)
	ex.pos = ex.prog.Skip(ex.pos)
	return v, nil
}

func resolvedVarToken(k object.VarKind) byte {
	switch k {
	case object.VarIntWord:
		return token.IntVar
	case object.VarUint8:
		return token.Uint8Var
	case object.VarIntLong:
		return token.Int64Var
	case object.VarFloat:
		return token.FloatVar
	case object.VarStrDol:
		return token.StrVar
	}
	return token.ArrayVar
}

// readVar loads a scalar variable or an array element.
func (ex *Exec) readVar() (object.Value, error) {
	v, err := ex.lookupVar(false)
	if err != nil {
		return object.Value{}, err
	}
	m := ex.ws.Mem
	if v.Arr == nil && m[ex.pos] != byte(token.LParen) {
		return v.Val, nil
	}
	if v.Arr == nil {
		return object.Value{}, berrors.New(berrors.BadDimension)
	}
	idx, whole, err := ex.subscripts(v.Arr)
	if err != nil {
		return object.Value{}, err
	}
	if whole {
		return object.Value{}, berrors.New(berrors.TypeMismatch)
	}
	return v.Arr.Get(ex.ws, idx)
}

// subscripts parses (i[,j...]) into a flat index. A bare () names the
// whole array.
func (ex *Exec) subscripts(a *object.Array) (int, bool, error) {
	m := ex.ws.Mem
	if m[ex.pos] != byte(token.LParen) {
		return 0, false, berrors.New(berrors.MissingParen)
	}
	ex.pos++
	if m[ex.pos] == byte(token.RParen) {
		ex.pos++
		return 0, true, nil
	}
	subs := make([]int, 0, len(a.Dims))
	for {
		v, err := ex.expr()
		if err != nil {
			return 0, false, err
		}
		n, err := v.AsInt32()
		if err != nil {
			return 0, false, err
		}
		subs = append(subs, int(n))
		if m[ex.pos] == byte(token.Comma) {
			ex.pos++
			continue
		}
		break
	}
	if m[ex.pos] != byte(token.RParen) {
		return 0, false, berrors.New(berrors.MissingParen)
	}
	ex.pos++
	idx, err := a.Index(subs)
	return idx, false, err
}

// arrayRef parses a whole-array reference like a() and returns its
// descriptor.
func (ex *Exec) arrayRef() (*object.Array, error) {
	m := ex.ws.Mem
	t := m[ex.pos]
	if !token.IsVarToken(t) {
		return nil, berrors.New(berrors.Syntax)
	}
	v, err := ex.lookupVar(false)
	if err != nil {
		return nil, err
	}
	if v.Arr == nil {
		return nil, berrors.New(berrors.BadDimension)
	}
	if m[ex.pos] != byte(token.LParen) || m[ex.pos+1] != byte(token.RParen) {
		return nil, berrors.New(berrors.MissingParen)
	}
	ex.pos += 2
	return v.Arr, nil
}

// callBuiltin parses and runs one built-in function reference.
func (ex *Exec) callBuiltin() (object.Value, error) {
	m := ex.ws.Mem
	idx := int(m[ex.pos+1])
	ex.pos += 2

	if idx == token.FnSum {
		return ex.callSum()
	}

	var args []object.Value
	defer func() {
		for _, a := range args {
			ex.env.Stack.Release(a)
		}
	}()

	switch {
	case builtins.ChannelArg(idx):
		if m[ex.pos] != byte(token.Hash) {
			return object.Value{}, berrors.New(berrors.MissingHash)
		}
		ex.pos++
		v, err := ex.primary()
		if err != nil {
			return object.Value{}, err
		}
		args = append(args, v)
	case token.FuncNeedsParen(idx) || m[ex.pos] == byte(token.LParen):
		min, max := builtins.Args(idx)
		if max > 0 {
			if m[ex.pos] != byte(token.LParen) {
				return object.Value{}, berrors.New(berrors.MissingParen)
			}
			ex.pos++
			for {
				v, err := ex.expr()
				if err != nil {
					return object.Value{}, err
				}
				args = append(args, v)
				if m[ex.pos] == byte(token.Comma) && len(args) < max {
					ex.pos++
					continue
				}
				break
			}
			if m[ex.pos] != byte(token.RParen) {
				return object.Value{}, berrors.New(berrors.MissingParen)
			}
			ex.pos++
		}
		_ = min
	default:
		min, _ := builtins.Args(idx)
		if min > 0 {
			v, err := ex.unary()
			if err != nil {
				return object.Value{}, err
			}
			args = append(args, v)
		}
	}
	return builtins.Call(ex.env, idx, args)
}

// SUM takes a whole array, the one builtin that does.
func (ex *Exec) callSum() (object.Value, error) {
	m := ex.ws.Mem
	paren := m[ex.pos] == byte(token.LParen)
	peek := ex.pos
	if paren && token.IsVarToken(m[ex.pos+1]) {
		ex.pos++
	} else if !token.IsVarToken(m[ex.pos]) {
		return object.Value{}, berrors.New(berrors.Syntax)
	} else {
		paren = false
	}
	a, err := ex.arrayRef()
	if err != nil {
		ex.pos = peek
		return object.Value{}, err
	}
	if paren {
		if m[ex.pos] != byte(token.RParen) {
			return object.Value{}, berrors.New(berrors.MissingParen)
		}
		ex.pos++
	}
	return builtins.SumArray(ex.env, a)
}

// add also concatenates strings.
func (ex *Exec) add(a, b object.Value) (object.Value, error) {
	if a.IsStr() || b.IsStr() {
		if !a.IsStr() || !b.IsStr() {
			return object.Value{}, berrors.New(berrors.TypeMismatch)
		}
		s := ex.env.StrFetch(a.S) + ex.env.StrFetch(b.S)
		ex.env.Stack.Release(a)
		ex.env.Stack.Release(b)
		if len(s) > object.MaxString {
			return object.Value{}, berrors.New(berrors.StringTooLong)
		}
		d, err := ex.env.StrStore(s)
		if err != nil {
			return object.Value{}, err
		}
		return object.TempStr(d), nil
	}
	return addVals(a, b)
}

// numeric2 applies a numeric binary op after type checking.
func (ex *Exec) numeric2(a, b object.Value, f func(object.Value, object.Value) (object.Value, error)) (object.Value, error) {
	if a.IsStr() || b.IsStr() {
		ex.env.Stack.Release(a)
		ex.env.Stack.Release(b)
		return object.Value{}, berrors.New(berrors.TypeNum)
	}
	return f(a, b)
}

func addVals(a, b object.Value) (object.Value, error) {
	if a.Kind == object.FloatK || b.Kind == object.FloatK {
		return object.FloatVal(a.AsFloat() + b.AsFloat()), nil
	}
	s := a.I + b.I
	if (a.I > 0 && b.I > 0 && s < 0) || (a.I < 0 && b.I < 0 && s >= 0) {
		return object.FloatVal(a.AsFloat() + b.AsFloat()), nil
	}
	return intResult(a, b, s), nil
}

func subVals(a, b object.Value) (object.Value, error) {
	if a.Kind == object.FloatK || b.Kind == object.FloatK {
		return object.FloatVal(a.AsFloat() - b.AsFloat()), nil
	}
	s := a.I - b.I
	if (a.I >= 0 && b.I < 0 && s < 0) || (a.I < 0 && b.I > 0 && s >= 0) {
		return object.FloatVal(a.AsFloat() - b.AsFloat()), nil
	}
	return intResult(a, b, s), nil
}

func mulVals(a, b object.Value) (object.Value, error) {
	if a.Kind == object.FloatK || b.Kind == object.FloatK {
		return object.FloatVal(a.AsFloat() * b.AsFloat()), nil
	}
	s := a.I * b.I
	if a.I != 0 && (s/a.I != b.I || (a.I == -1 && b.I == math.MinInt64)) {
		return object.FloatVal(a.AsFloat() * b.AsFloat()), nil
	}
	return intResult(a, b, s), nil
}

// intResult narrows an integer op back to i32 when both inputs were
// 32 bit and the value fits.
func intResult(a, b object.Value, s int64) object.Value {
	if object.Promote(a.Kind, b.Kind) == object.IntK &&
		s >= math.MinInt32 && s <= math.MaxInt32 {
		return object.IntVal(int32(s))
	}
	return object.Int64Val(s)
}

// divVals is the / operator, always a float.
func divVals(a, b object.Value) (object.Value, error) {
	d := b.AsFloat()
	if d == 0 {
		return object.Value{}, berrors.New(berrors.DivByZero)
	}
	return object.FloatVal(a.AsFloat() / d), nil
}

func intDivVals(a, b object.Value) (object.Value, error) {
	x, err := a.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	y, err := b.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	if y == 0 {
		return object.Value{}, berrors.New(berrors.DivByZero)
	}
	return intResult(a, b, x/y), nil
}

func intModVals(a, b object.Value) (object.Value, error) {
	x, err := a.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	y, err := b.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	if y == 0 {
		return object.Value{}, berrors.New(berrors.DivByZero)
	}
	return intResult(a, b, x%y), nil
}

func powVals(a, b object.Value) (object.Value, error) {
	f := math.Pow(a.AsFloat(), b.AsFloat())
	if math.IsInf(f, 0) {
		return object.Value{}, berrors.New(berrors.Overflow)
	}
	if math.IsNaN(f) {
		return object.Value{}, berrors.New(berrors.BadArith)
	}
	if a.Kind != object.FloatK && b.Kind != object.FloatK &&
		f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
		return object.IntVal(int32(f)), nil
	}
	return object.FloatVal(f), nil
}

// compare yields the BASIC truth values, -1 and 0. Strings compare
// byte by byte.
func (ex *Exec) compare(op byte, a, b object.Value) (object.Value, error) {
	var c int
	if a.IsStr() || b.IsStr() {
		if !a.IsStr() || !b.IsStr() {
			return object.Value{}, berrors.New(berrors.TypeMismatch)
		}
		c = strings.Compare(ex.env.StrFetch(a.S), ex.env.StrFetch(b.S))
		ex.env.Stack.Release(a)
		ex.env.Stack.Release(b)
	} else {
		x, y := a.AsFloat(), b.AsFloat()
		if a.Kind != object.FloatK && b.Kind != object.FloatK {
			switch {
			case a.I < b.I:
				c = -1
			case a.I > b.I:
				c = 1
			}
		} else {
			switch {
			case x < y:
				c = -1
			case x > y:
				c = 1
			}
		}
	}

	hit := false
	switch op {
	case byte(token.Equal):
		hit = c == 0
	case token.NE:
		hit = c != 0
	case byte(token.Less):
		hit = c < 0
	case byte(token.Greater):
		hit = c > 0
	case token.LE:
		hit = c <= 0
	case token.GE:
		hit = c >= 0
	}
	if hit {
		return object.IntVal(object.True), nil
	}
	return object.IntVal(0), nil
}

func (ex *Exec) shift(op byte, a, b object.Value) (object.Value, error) {
	x, err := a.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	nn, err := b.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	if nn < 0 || nn > 63 {
		return object.IntVal(0), nil
	}
	n := uint(nn)
	wide := object.Promote(a.Kind, b.Kind) == object.Int64K
	if !wide {
		w := int32(x)
		switch op {
		case token.Lsl:
			w <<= n
		case token.Asr:
			w >>= n
		case token.Lsr:
			w = int32(uint32(w) >> n)
		}
		return object.IntVal(w), nil
	}
	switch op {
	case token.Lsl:
		x <<= n
	case token.Asr:
		x >>= n
	case token.Lsr:
		x = int64(uint64(x) >> n)
	}
	return object.Int64Val(x), nil
}

func (ex *Exec) bitwise(op byte, a, b object.Value) (object.Value, error) {
	x, err := a.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	y, err := b.AsInt64()
	if err != nil {
		return object.Value{}, err
	}
	var r int64
	switch op {
	case token.And:
		r = x & y
	case token.Or:
		r = x | y
	case token.Eor:
		r = x ^ y
	}
	if object.Promote(a.Kind, b.Kind) != object.Int64K {
		return object.IntVal(int32(r)), nil
	}
	return object.Int64Val(r), nil
}
