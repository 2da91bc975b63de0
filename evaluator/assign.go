package evaluator

import (
	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// lvalue parses one assignable location. Missing variables are created
// when create is set, which is every write context.
func (ex *Exec) lvalue(create bool) (object.Lvalue, error) {
	m := ex.ws.Mem
	t := m[ex.pos]
	switch t {
	case token.StaticVar:
		idx := int(m[ex.pos+1])
		ex.pos += 2
		v := ex.env.Static(idx)
		return object.Lvalue{Kind: v.Kind, Var: v}, nil

	case byte(token.Query), byte(token.Pling), byte(token.Bar), byte(token.Dollar):
		ex.pos++
		av, err := ex.primary()
		if err != nil {
			return object.Lvalue{}, err
		}
		addr, err := av.AsInt64()
		if err != nil {
			return object.Lvalue{}, err
		}
		return object.Lvalue{Kind: indKind(t), Off: int(addr)}, nil

	case token.Time:
		ex.pos++
		return object.Lvalue{Kind: object.VarTime}, nil
	case token.TimeDol:
		ex.pos++
		return object.Lvalue{Kind: object.VarTimeDol}, nil
	case token.Himem:
		ex.pos++
		return object.Lvalue{Kind: object.VarHimem}, nil
	case token.Lomem:
		ex.pos++
		return object.Lvalue{Kind: object.VarLomem}, nil
	case token.Page:
		ex.pos++
		return object.Lvalue{Kind: object.VarPage}, nil
	case token.Filepath:
		ex.pos++
		return object.Lvalue{Kind: object.VarFilepath}, nil
	}

	if !token.IsVarToken(t) {
		return object.Lvalue{}, berrors.New(berrors.Syntax)
	}
	v, err := ex.lookupVar(create)
	if err != nil {
		return object.Lvalue{}, err
	}

	if v.Kind >= object.VarIntArray && v.Kind <= object.VarStrArray {
		if v.Arr == nil {
			// arrays must be DIMmed before they take assignments
			if m[ex.pos] == byte(token.LParen) && m[ex.pos+1] == byte(token.RParen) {
				ex.pos += 2
				return object.Lvalue{Kind: v.Kind, Var: v, Elem: -1}, nil
			}
			return object.Lvalue{}, berrors.New(berrors.BadDimension)
		}
		idx, whole, err := ex.subscripts(v.Arr)
		if err != nil {
			return object.Lvalue{}, err
		}
		if whole {
			return object.Lvalue{Kind: v.Kind, Var: v, Arr: v.Arr, Elem: -1}, nil
		}
		return object.Lvalue{Kind: v.Kind, Var: v, Arr: v.Arr, Elem: idx}, nil
	}

	// a scalar base followed by ? or ! is a dyadic indirection target
	if op := m[ex.pos]; op == byte(token.Query) || op == byte(token.Pling) {
		ex.pos++
		off, err := ex.primary()
		if err != nil {
			return object.Lvalue{}, err
		}
		base, err := v.Val.AsInt64()
		if err != nil {
			return object.Lvalue{}, err
		}
		n, err := off.AsInt64()
		if err != nil {
			return object.Lvalue{}, err
		}
		return object.Lvalue{Kind: indKind(op), Off: int(base + n)}, nil
	}

	return object.Lvalue{Kind: v.Kind, Var: v}, nil
}

func indKind(t byte) object.VarKind {
	switch t {
	case byte(token.Query):
		return object.VarIntBytePtr
	case byte(token.Pling):
		return object.VarIntWordPtr
	case byte(token.Bar):
		return object.VarFloatPtr
	}
	return object.VarDolStrPtr
}

// assignment handles "lvalue = expr" and the compound += and -= forms.
func (ex *Exec) assignment() error {
	lv, err := ex.lvalue(true)
	if err != nil {
		return err
	}
	m := ex.ws.Mem
	op := m[ex.pos]
	if op != byte(token.Equal) && op != token.PlusEq && op != token.MinusEq {
		return berrors.New(berrors.MissingEquals)
	}
	ex.pos++

	if lv.Elem == -1 {
		return ex.assignArray(lv, op)
	}

	v, err := ex.expr()
	if err != nil {
		return err
	}
	if op != byte(token.Equal) {
		old, err := ex.load(lv)
		if err != nil {
			return err
		}
		if op == token.PlusEq {
			v, err = ex.add(old, v)
		} else {
			v, err = ex.numeric2(old, v, subVals)
		}
		if err != nil {
			return err
		}
	}
	return ex.store(lv, v)
}

// load reads the current value of an lvalue, for the compound ops.
func (ex *Exec) load(lv object.Lvalue) (object.Value, error) {
	switch lv.Kind {
	case object.VarIntBytePtr, object.VarIntWordPtr,
		object.VarFloatPtr, object.VarDolStrPtr:
		return ex.peekInd(indTok(lv.Kind), lv.Off)
	case object.VarTime:
		if ex.env.Mos() == nil {
			return object.IntVal(0), nil
		}
		return object.Int64Val(ex.env.Mos().Time()), nil
	case object.VarHimem:
		return object.IntVal(int32(ex.ws.Himem)), nil
	case object.VarLomem:
		return object.IntVal(int32(ex.ws.Lomem)), nil
	case object.VarPage:
		return object.IntVal(int32(ex.ws.Page)), nil
	case object.VarTimeDol, object.VarFilepath:
		s := ex.env.Filepath
		if lv.Kind == object.VarTimeDol {
			s = ""
			if ex.env.Mos() != nil {
				s = ex.env.Mos().TimeDol()
			}
		}
		d, err := ex.env.StrStore(s)
		if err != nil {
			return object.Value{}, err
		}
		return object.TempStr(d), nil
	}
	if lv.Arr != nil {
		return lv.Arr.Get(ex.ws, lv.Elem)
	}
	return lv.Var.Val, nil
}

func indTok(k object.VarKind) byte {
	switch k {
	case object.VarIntBytePtr:
		return byte(token.Query)
	case object.VarIntWordPtr:
		return byte(token.Pling)
	case object.VarFloatPtr:
		return byte(token.Bar)
	}
	return byte(token.Dollar)
}

// store writes a value through an lvalue, applying the narrowing rule
// of the target's kind.
func (ex *Exec) store(lv object.Lvalue, v object.Value) error {
	switch lv.Kind {
	case object.VarIntWord, object.VarFormat:
		n, err := v.AsInt32()
		if err != nil {
			return err
		}
		lv.Var.Val = object.IntVal(n)
		return nil
	case object.VarUint8:
		b, err := v.AsUint8()
		if err != nil {
			return err
		}
		lv.Var.Val = object.Uint8Val(b)
		return nil
	case object.VarIntLong:
		n, err := v.AsInt64()
		if err != nil {
			return err
		}
		lv.Var.Val = object.Int64Val(n)
		return nil
	case object.VarFloat:
		if v.IsStr() {
			return berrors.New(berrors.TypeNum)
		}
		lv.Var.Val = object.FloatVal(v.AsFloat())
		return nil
	case object.VarStrDol:
		d, err := ex.storeString(lv.Var.Val.S, v)
		if err != nil {
			return err
		}
		lv.Var.Val = object.StrVal(d)
		return nil

	case object.VarIntBytePtr:
		b, err := v.AsUint8()
		if err != nil {
			return err
		}
		return ex.ws.Poke(lv.Off, b)
	case object.VarIntWordPtr:
		n, err := v.AsInt32()
		if err != nil {
			return err
		}
		return ex.ws.PokeWord(lv.Off, n)
	case object.VarInt64Ptr:
		n, err := v.AsInt64()
		if err != nil {
			return err
		}
		return ex.ws.PokeLong(lv.Off, n)
	case object.VarFloatPtr:
		if v.IsStr() {
			return berrors.New(berrors.TypeNum)
		}
		return ex.ws.PokeFloat(lv.Off, v.AsFloat())
	case object.VarDolStrPtr:
		if !v.IsStr() {
			return berrors.New(berrors.TypeStr)
		}
		s := ex.env.StrFetch(v.S)
		ex.env.Stack.Release(v)
		return ex.ws.PokeString(lv.Off, s)

	case object.VarIntArray, object.VarUint8Array,
		object.VarInt64Array, object.VarFloatArray:
		if v.IsStr() {
			return berrors.New(berrors.TypeNum)
		}
		return lv.Arr.SetNum(ex.ws, lv.Elem, v)
	case object.VarStrArray:
		if !v.IsStr() {
			return berrors.New(berrors.TypeStr)
		}
		d, err := ex.storeString(lv.Arr.Strs[lv.Elem], v)
		if err != nil {
			return err
		}
		lv.Arr.Strs[lv.Elem] = d
		return nil

	case object.VarTime:
		n, err := v.AsInt64()
		if err != nil {
			return err
		}
		if ex.env.Mos() != nil {
			ex.env.Mos().SetTime(n)
		}
		return nil
	case object.VarTimeDol:
		if !v.IsStr() {
			return berrors.New(berrors.TypeStr)
		}
		s := ex.env.StrFetch(v.S)
		ex.env.Stack.Release(v)
		if ex.env.Mos() == nil {
			return berrors.New(berrors.Unsupported)
		}
		return ex.env.Mos().SetTimeDol(s)
	case object.VarHimem:
		return ex.setHimem(v)
	case object.VarLomem:
		return ex.setLomem(v)
	case object.VarPage:
		return ex.setPage(v)
	case object.VarFilepath:
		if !v.IsStr() {
			return berrors.New(berrors.TypeStr)
		}
		ex.env.Filepath = ex.env.StrFetch(v.S)
		ex.env.Stack.Release(v)
		return nil
	}
	return berrors.New(berrors.TypeMismatch)
}

// storeString replaces a string slot's contents, reusing the old block
// through the heap's resize path when it can. An owned temporary on
// the right hand side donates its block outright.
func (ex *Exec) storeString(old object.StrDesc, v object.Value) (object.StrDesc, error) {
	if !v.IsStr() {
		return object.StrDesc{}, berrors.New(berrors.TypeStr)
	}
	if v.Kind == object.StrTempK {
		if old.Len > 0 {
			ex.ws.Free(old.Ptr, old.Len)
		}
		return v.S, nil
	}
	s := ex.env.StrFetch(v.S)
	if old.Len > 0 {
		p, err := ex.ws.Resize(old.Ptr, old.Len, len(s))
		if err != nil {
			return object.StrDesc{}, err
		}
		copy(ex.ws.Mem[p:], s)
		return object.StrDesc{Ptr: p, Len: len(s)}, nil
	}
	return ex.env.StrStore(s)
}

// assignArray is the whole-array form: a() = value fills, a() = b()
// copies, and a simple elementwise a() = b() + c() (or an array and a
// scalar) is supported for + - * /.
func (ex *Exec) assignArray(lv object.Lvalue, op byte) error {
	m := ex.ws.Mem
	dst := lv.Var.Arr

	// right side starts with an array?
	rhsIsArray := token.IsVarToken(m[ex.pos]) && ex.peeksArray()

	if !rhsIsArray {
		v, err := ex.expr()
		if err != nil {
			return err
		}
		if dst == nil {
			return berrors.New(berrors.BadDimension)
		}
		return ex.arrayFill(dst, op, v)
	}

	src, err := ex.arrayRef()
	if err != nil {
		return err
	}
	if dst == nil && op == byte(token.Equal) && m[ex.pos] != byte(token.Plus) &&
		m[ex.pos] != byte(token.Minus) && m[ex.pos] != byte(token.Star) &&
		m[ex.pos] != byte(token.Slash) {
		// a() = b() on an undimensioned target clones the shape
		clone, err := object.NewArray(src.ElemKind, boundsOf(src))
		if err != nil {
			return err
		}
		lv.Var.Arr = clone
		dst = clone
	}
	if dst == nil {
		return berrors.New(berrors.BadDimension)
	}
	if src.Count != dst.Count {
		return berrors.New(berrors.ArraySizeMismatch)
	}

	binop := m[ex.pos]
	switch binop {
	case byte(token.Plus), byte(token.Minus), byte(token.Star), byte(token.Slash):
		ex.pos++
		if token.IsVarToken(m[ex.pos]) && ex.peeksArray() {
			rhs, err := ex.arrayRef()
			if err != nil {
				return err
			}
			if rhs.Count != dst.Count {
				return berrors.New(berrors.ArraySizeMismatch)
			}
			return ex.arrayCombine(dst, src, binop, func(i int) (object.Value, error) {
				return rhs.Get(ex.ws, i)
			})
		}
		sv, err := ex.expr()
		if err != nil {
			return err
		}
		return ex.arrayCombine(dst, src, binop, func(int) (object.Value, error) {
			return sv, nil
		})
	}

	// plain copy, or compound with the source array
	if op == byte(token.Equal) {
		return ex.arrayCopy(dst, src)
	}
	bin := byte(token.Plus)
	if op == token.MinusEq {
		bin = byte(token.Minus)
	}
	return ex.arrayCombine(dst, dst, bin, func(i int) (object.Value, error) {
		return src.Get(ex.ws, i)
	})
}

// peeksArray reports whether the var token at pos is a whole-array
// reference, a name directly followed by ().
func (ex *Exec) peeksArray() bool {
	m := ex.ws.Mem
	after := ex.prog.Skip(ex.pos)
	return m[after] == byte(token.LParen) && m[after+1] == byte(token.RParen)
}

func boundsOf(a *object.Array) []int {
	b := make([]int, len(a.Dims))
	for i, d := range a.Dims {
		b[i] = d - 1
	}
	return b
}

func (ex *Exec) arrayFill(dst *object.Array, op byte, v object.Value) error {
	if dst.ElemKind == object.StringK {
		if !v.IsStr() {
			return berrors.New(berrors.TypeStr)
		}
		if op != byte(token.Equal) {
			return berrors.New(berrors.TypeMismatch)
		}
		s := ex.env.StrFetch(v.S)
		ex.env.Stack.Release(v)
		for i := range dst.Strs {
			nd, err := ex.env.StrStore(s)
			if err != nil {
				return err
			}
			if dst.Strs[i].Len > 0 {
				ex.ws.Free(dst.Strs[i].Ptr, dst.Strs[i].Len)
			}
			dst.Strs[i] = nd
		}
		return nil
	}
	if v.IsStr() {
		return berrors.New(berrors.TypeNum)
	}
	for i := 0; i < dst.Count; i++ {
		e := v
		if op != byte(token.Equal) {
			cur, err := dst.Get(ex.ws, i)
			if err != nil {
				return err
			}
			var err2 error
			if op == token.PlusEq {
				e, err2 = addVals(cur, v)
			} else {
				e, err2 = subVals(cur, v)
			}
			if err2 != nil {
				return err2
			}
		}
		if err := dst.SetNum(ex.ws, i, e); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Exec) arrayCopy(dst, src *object.Array) error {
	if dst.ElemKind == object.StringK || src.ElemKind == object.StringK {
		if dst.ElemKind != src.ElemKind {
			return berrors.New(berrors.TypeMismatch)
		}
		for i := range dst.Strs {
			s := ex.env.StrFetch(src.Strs[i])
			nd, err := ex.env.StrStore(s)
			if err != nil {
				return err
			}
			if dst.Strs[i].Len > 0 {
				ex.ws.Free(dst.Strs[i].Ptr, dst.Strs[i].Len)
			}
			dst.Strs[i] = nd
		}
		return nil
	}
	for i := 0; i < dst.Count; i++ {
		v, err := src.Get(ex.ws, i)
		if err != nil {
			return err
		}
		if err := dst.SetNum(ex.ws, i, v); err != nil {
			return err
		}
	}
	return nil
}

// arrayCombine stores src[i] op rhs(i) into dst elementwise.
func (ex *Exec) arrayCombine(dst, src *object.Array, op byte, rhs func(int) (object.Value, error)) error {
	if dst.ElemKind == object.StringK {
		return berrors.New(berrors.TypeMismatch)
	}
	for i := 0; i < dst.Count; i++ {
		a, err := src.Get(ex.ws, i)
		if err != nil {
			return err
		}
		b, err := rhs(i)
		if err != nil {
			return err
		}
		var v object.Value
		switch op {
		case byte(token.Plus):
			v, err = addVals(a, b)
		case byte(token.Minus):
			v, err = subVals(a, b)
		case byte(token.Star):
			v, err = mulVals(a, b)
		default:
			v, err = divVals(a, b)
		}
		if err != nil {
			return err
		}
		if err := dst.SetNum(ex.ws, i, v); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Exec) setHimem(v object.Value) error {
	n, err := v.AsInt32()
	if err != nil {
		return err
	}
	if ex.ws.Sp != ex.ws.Himem {
		// the byte stack is live, moving its base would strand blocks
		return berrors.New(berrors.Silly)
	}
	if int(n) <= ex.ws.Vartop+1024 || int(n) > len(ex.ws.Mem) {
		return berrors.New(berrors.Range)
	}
	ex.ws.Himem = int(n)
	ex.ws.Sp = int(n)
	return nil
}

func (ex *Exec) setLomem(v object.Value) error {
	n, err := v.AsInt32()
	if err != nil {
		return err
	}
	if int(n) < ex.ws.Top || int(n) >= ex.ws.Himem-1024 {
		return berrors.New(berrors.Range)
	}
	ex.ws.SetLomem(int(n))
	ex.env.Clear()
	return nil
}

// setPage moves the program area and throws the program away.
func (ex *Exec) setPage(v object.Value) error {
	n, err := v.AsInt32()
	if err != nil {
		return err
	}
	p := int(n) &^ 3
	if p < 16 || p >= ex.ws.Himem-4096 {
		return berrors.New(berrors.Range)
	}
	ex.ws.Page = p
	ex.env.Scrap()
	ex.prog.Erase()
	return nil
}

// stmtPseudoAssign is dispatch for TIME=, HIMEM= and friends at
// statement level.
func (ex *Exec) stmtPseudoAssign() error {
	return ex.assignment()
}

// stmtSwap exchanges two variables' contents. Kinds must match
// exactly; descriptors and array pointers swap wholesale.
func (ex *Exec) stmtSwap() error {
	a, err := ex.lvalue(false)
	if err != nil {
		return err
	}
	m := ex.ws.Mem
	if m[ex.pos] != byte(token.Comma) {
		return berrors.New(berrors.MissingComma)
	}
	ex.pos++
	b, err := ex.lvalue(false)
	if err != nil {
		return err
	}
	if a.Kind != b.Kind {
		return berrors.New(berrors.TypeMismatch)
	}
	switch {
	case a.Elem == -1 && b.Elem == -1:
		a.Var.Arr, b.Var.Arr = b.Var.Arr, a.Var.Arr
	case a.Var != nil && b.Var != nil && a.Arr == nil && b.Arr == nil:
		a.Var.Val, b.Var.Val = b.Var.Val, a.Var.Val
	default:
		av, err := ex.load(a)
		if err != nil {
			return err
		}
		bv, err := ex.load(b)
		if err != nil {
			return err
		}
		if err := ex.store(a, bv); err != nil {
			return err
		}
		return ex.store(b, av)
	}
	return nil
}

// stmtDim declares arrays and carves byte blocks.
func (ex *Exec) stmtDim() error {
	m := ex.ws.Mem
	for {
		if !token.IsVarToken(m[ex.pos]) && m[ex.pos] != token.StaticVar {
			return berrors.New(berrors.Syntax)
		}

		if m[ex.pos] == token.StaticVar || !ex.nextIsParen() {
			// DIM var size: a raw byte block
			lv, err := ex.lvalue(true)
			if err != nil {
				return err
			}
			sz, err := ex.expr()
			if err != nil {
				return err
			}
			n, err := sz.AsInt32()
			if err != nil {
				return err
			}
			if n < 0 {
				return berrors.New(berrors.BadDimension)
			}
			var p int
			if m[ex.pos] == token.Local {
				ex.pos++
				p, err = ex.ws.StackAlloc(int(n) + 1)
			} else {
				p, err = ex.ws.Alloc(int(n) + 1)
			}
			if err != nil {
				return err
			}
			if err := ex.store(lv, object.IntVal(int32(p))); err != nil {
				return err
			}
		} else {
			v, err := ex.lookupVar(true)
			if err != nil {
				return err
			}
			if v.Arr != nil {
				return berrors.New(berrors.DuplicateDim)
			}
			if m[ex.pos] != byte(token.LParen) {
				return berrors.New(berrors.MissingParen)
			}
			ex.pos++
			var bounds []int
			for {
				bv, err := ex.expr()
				if err != nil {
					return err
				}
				n, err := bv.AsInt32()
				if err != nil {
					return err
				}
				if n < 0 {
					return berrors.New(berrors.BadDimension)
				}
				bounds = append(bounds, int(n))
				if m[ex.pos] == byte(token.Comma) {
					ex.pos++
					continue
				}
				break
			}
			if m[ex.pos] != byte(token.RParen) {
				return berrors.New(berrors.MissingParen)
			}
			ex.pos++
			arr, err := object.NewArray(v.Kind.ArrayElemKind(), bounds)
			if err != nil {
				return err
			}
			v.Arr = arr
		}

		if m[ex.pos] != byte(token.Comma) {
			return nil
		}
		ex.pos++
	}
}

// nextIsParen looks past the var token under pos for a (.
func (ex *Exec) nextIsParen() bool {
	return ex.ws.Mem[ex.prog.Skip(ex.pos)] == byte(token.LParen)
}
