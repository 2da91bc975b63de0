package evaluator

import (
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/settings"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// stmtIf runs IF. The first execution classifies the statement as
// single line or block and caches the false branch address; after that
// a failed condition is a direct jump.
func (ex *Exec) stmtIf() error {
	m := ex.ws.Mem
	p := ex.pos
	if m[p] == token.XIf {
		if err := ex.resolveIf(p); err != nil {
			return err
		}
	}
	ex.pos = p + 1 + 2*token.AddrSize
	v, err := ex.expr()
	if err != nil {
		return err
	}
	if v.IsStr() {
		ex.env.Stack.Release(v)
		return berrors.New(berrors.TypeNum)
	}
	if v.Truth() {
		if m[ex.pos] == token.Then {
			ex.pos++
		}
		return nil
	}
	ex.jumpAddr(ex.prog.Payload(p))
	return nil
}

// resolveIf classifies an IF and fills in its payloads. The THEN of a
// block IF sits directly before the line end.
func (ex *Exec) resolveIf(p int) error {
	m := ex.ws.Mem
	q := p + 1 + 2*token.AddrSize
	thenAfter, block := 0, false
	for m[q] != token.EOL {
		if m[q] == token.Then && thenAfter == 0 {
			thenAfter = q + 1
			block = m[q+1] == token.EOL
		}
		q = ex.prog.Skip(q)
	}

	var falseAddr int
	if block {
		a, err := ex.scanBlockTail(q+1, true)
		if err != nil {
			return err
		}
		falseAddr = a
		m[p] = token.BlockIf
	} else {
		// a single line IF falls to its ELSE, or off the line end
		falseAddr = q
		depth := 0
		r := p + 1 + 2*token.AddrSize
		for m[r] != token.EOL {
			switch m[r] {
			case token.XIf, token.SingleIf, token.BlockIf:
				depth++
			case token.XElse, token.Else:
				if depth == 0 {
					falseAddr = r + 1 + token.AddrSize
					r = q // stop
					continue
				}
				depth--
			}
			r = ex.prog.Skip(r)
		}
		m[p] = token.SingleIf
	}
	ex.prog.SetPayload(p, falseAddr)
	ex.prog.SetPayload2(p, thenAfter)
	return nil
}

// scanBlockTail walks forward from an EOL boundary looking for the end
// of the enclosing block IF. With stopAtElse set it returns the
// address after a line-heading ELSE at the same depth; otherwise only
// ENDIF ends the scan.
func (ex *Exec) scanBlockTail(hdr int, stopAtElse bool) (int, error) {
	m := ex.ws.Mem
	depth := 0
	for {
		if ex.prog.IsEnd(hdr) {
			return 0, berrors.New(berrors.MissingEndif)
		}
		q := ex.prog.Tokens(hdr)
		for m[q] != token.EOL {
			switch m[q] {
			case token.Endif:
				if depth == 0 {
					return q + 1, nil
				}
				depth--
			case token.XLhElse, token.LhElse:
				if depth == 0 && stopAtElse {
					return q + 1 + token.AddrSize, nil
				}
			case token.XIf, token.SingleIf, token.BlockIf:
				if ex.opensBlock(q) {
					depth++
				}
			}
			q = ex.prog.Skip(q)
		}
		hdr = q + 1
	}
}

// opensBlock reports whether the IF at q ends its line with THEN.
func (ex *Exec) opensBlock(q int) bool {
	m := ex.ws.Mem
	if m[q] == token.BlockIf {
		return true
	}
	if m[q] == token.SingleIf {
		return false
	}
	for m[q] != token.EOL {
		if m[q] == token.Then {
			return m[q+1] == token.EOL
		}
		q = ex.prog.Skip(q)
	}
	return false
}

// stmtElse is an ELSE met in flow, which means the true branch of a
// single line IF just finished. The rest of the line belongs to the
// false branch and is skipped.
func (ex *Exec) stmtElse() error {
	m := ex.ws.Mem
	p := ex.pos
	if m[p] == token.XElse {
		ex.prog.Resolve(p, token.Else, ex.lineEnd())
	}
	ex.pos = ex.prog.Payload(p)
	return nil
}

// stmtLhElse is the ELSE line of a block IF met in flow: the THEN
// branch has run, so skip to after the matching ENDIF.
func (ex *Exec) stmtLhElse() error {
	m := ex.ws.Mem
	p := ex.pos
	if m[p] == token.XLhElse {
		// the ENDIF can close the block on the ELSE's own line
		target := 0
		q := p + 1 + token.AddrSize
		for m[q] != token.EOL {
			if m[q] == token.Endif {
				target = q + 1
				break
			}
			q = ex.prog.Skip(q)
		}
		if target == 0 {
			for m[q] != token.EOL {
				q = ex.prog.Skip(q)
			}
			t, err := ex.scanBlockTail(q+1, false)
			if err != nil {
				return err
			}
			target = t
		}
		ex.prog.Resolve(p, token.LhElse, target)
	}
	ex.jumpAddr(ex.prog.Payload(p))
	return nil
}

// stmtCase runs CASE ... OF. The branch table is built once and kept
// under a handle in the environment; matching evaluates each WHEN
// value list until one equals the selector.
func (ex *Exec) stmtCase() error {
	m := ex.ws.Mem
	p := ex.pos
	if m[p] == token.XCase {
		if ex.line < 0 {
			return berrors.New(berrors.Syntax)
		}
		ct, err := ex.buildCaseTable(p)
		if err != nil {
			return err
		}
		ex.prog.Resolve(p, token.Case, ex.env.RegisterCase(ct))
	}
	ct := ex.env.Cases[ex.prog.Payload(p)]

	ex.pos = p + 1 + token.AddrSize
	sel, err := ex.expr()
	if err != nil {
		return err
	}
	if m[ex.pos] != token.Of {
		ex.env.Stack.Release(sel)
		return berrors.New(berrors.MissingOf)
	}

	for _, arm := range ct.Arms {
		ex.pos = arm.Expr
		for {
			v, err := ex.expr()
			if err != nil {
				ex.env.Stack.Release(sel)
				return err
			}
			hit, err := ex.caseMatch(sel, v)
			if err != nil {
				ex.env.Stack.Release(sel)
				return err
			}
			if hit {
				ex.env.Stack.Release(sel)
				ex.jumpAddr(arm.Body)
				return nil
			}
			if m[ex.pos] == byte(token.Comma) {
				ex.pos++
				continue
			}
			break
		}
	}
	ex.env.Stack.Release(sel)
	if ct.Default != 0 {
		ex.jumpAddr(ct.Default)
	} else {
		ex.jumpAddr(ct.Exit)
	}
	return nil
}

// caseMatch compares a WHEN value against the selector without
// releasing the selector, which is reused across the table.
func (ex *Exec) caseMatch(sel, v object.Value) (bool, error) {
	if sel.IsStr() != v.IsStr() {
		ex.env.Stack.Release(v)
		return false, berrors.New(berrors.TypeMismatch)
	}
	if sel.IsStr() {
		a := ex.env.StrFetch(sel.S)
		b := ex.env.StrFetch(v.S)
		ex.env.Stack.Release(v)
		return a == b, nil
	}
	if sel.Kind == object.FloatK || v.Kind == object.FloatK {
		return sel.AsFloat() == v.AsFloat(), nil
	}
	return sel.I == v.I, nil
}

// buildCaseTable scans the lines after a CASE head for its WHEN arms,
// its OTHERWISE, and its ENDCASE, resolving the arm tokens to jump
// straight out of the structure when their bodies complete.
func (ex *Exec) buildCaseTable(p int) (*object.CaseTable, error) {
	m := ex.ws.Mem
	q := p
	for m[q] != token.EOL {
		q = ex.prog.Skip(q)
	}
	hdr := q + 1

	ct := &object.CaseTable{}
	var armToks []int
	depth := 0
	for {
		if ex.prog.IsEnd(hdr) {
			return nil, berrors.New(berrors.MissingEndcase)
		}
		q = ex.prog.Tokens(hdr)
		stmtStart := true
		for m[q] != token.EOL {
			t := m[q]
			switch {
			case (t == token.XWhen || t == token.When) && depth == 0 && stmtStart:
				if len(ct.Arms) >= object.MaxWhens {
					return nil, berrors.New(berrors.TooManyWhens)
				}
				exprAt := q + 1 + token.AddrSize
				body := ex.scanValueList(exprAt)
				ct.Arms = append(ct.Arms, object.CaseArm{Expr: exprAt, Body: body})
				armToks = append(armToks, q)
				q = body
				stmtStart = true
				continue
			case (t == token.XOtherwise || t == token.Otherwise) && depth == 0 && stmtStart:
				ct.Default = q + 1 + token.AddrSize
				armToks = append(armToks, q)
			case t == token.XCase || t == token.Case:
				depth++
			case t == token.Endcase:
				if depth == 0 {
					ct.Exit = q + 1
					for _, at := range armToks {
						rt := byte(token.When)
						if m[at] == token.XOtherwise || m[at] == token.Otherwise {
							rt = token.Otherwise
						}
						ex.prog.Resolve(at, rt, ct.Exit)
					}
					return ct, nil
				}
				depth--
			}
			stmtStart = t == byte(token.Colon)
			q = ex.prog.Skip(q)
		}
		hdr = q + 1
	}
}

// scanValueList steps over a WHEN's comma separated expressions,
// returning where the arm body starts.
func (ex *Exec) scanValueList(q int) int {
	m := ex.ws.Mem
	parens := 0
	for m[q] != token.EOL {
		switch m[q] {
		case byte(token.LParen):
			parens++
		case byte(token.RParen):
			parens--
		case byte(token.Colon):
			if parens == 0 {
				return q
			}
		}
		q = ex.prog.Skip(q)
	}
	return q
}

// stmtWhenSkip is a WHEN or OTHERWISE met in flow: the previous arm's
// body has finished, so leave the structure.
func (ex *Exec) stmtWhenSkip() error {
	m := ex.ws.Mem
	p := ex.pos
	if m[p] == token.XWhen || m[p] == token.XOtherwise {
		// falling into an arm whose CASE never ran
		return berrors.New(berrors.Syntax)
	}
	ex.jumpAddr(ex.prog.Payload(p))
	return nil
}

// stmtWhile both enters a loop and retests it. ENDWHILE jumps back to
// the WHILE token; the frame on top of the stack tells the two apart.
func (ex *Exec) stmtWhile() error {
	m := ex.ws.Mem
	p := ex.pos
	if m[p] == token.XWhile {
		target, err := ex.scanPastEndwhile(p)
		if err != nil {
			return err
		}
		ex.prog.Resolve(p, token.While, target)
	}
	cond := p + 1 + token.AddrSize

	wf, _ := ex.env.Stack.Top().(*object.WhileFrame)
	if wf == nil || wf.Cond != cond {
		ex.env.Stack.Push(&object.WhileFrame{Cond: cond, CondLine: ex.line})
	}
	ex.pos = cond
	v, err := ex.expr()
	if err != nil {
		return err
	}
	if v.IsStr() {
		ex.env.Stack.Release(v)
		return berrors.New(berrors.TypeNum)
	}
	if v.Truth() {
		return nil
	}
	ex.env.Stack.Pop()
	ex.jumpAddr(ex.prog.Payload(p))
	return nil
}

func (ex *Exec) scanPastEndwhile(p int) (int, error) {
	m := ex.ws.Mem
	depth := 0
	q := ex.prog.Skip(p)
	for {
		switch m[q] {
		case token.EOL:
			if ex.prog.IsEnd(q + 1) {
				return 0, berrors.New(berrors.MissingEndwhile)
			}
			q = ex.prog.Tokens(q + 1)
			continue
		case token.XWhile, token.While:
			depth++
		case token.Endwhile:
			if depth == 0 {
				return q + 1, nil
			}
			depth--
		}
		q = ex.prog.Skip(q)
	}
}

func (ex *Exec) stmtEndwhile() error {
	if !ex.env.Stack.EmptyTo(object.WhileItem) {
		return berrors.New(berrors.EndwhileWithoutWhile)
	}
	wf := ex.env.Stack.Top().(*object.WhileFrame)
	ex.pos = wf.Cond - 1 - token.AddrSize
	ex.line = wf.CondLine
	return nil
}

func (ex *Exec) stmtRepeat() error {
	ex.env.Stack.Push(&object.RepeatFrame{Body: ex.pos, BodyLine: ex.line})
	return nil
}

func (ex *Exec) stmtUntil() error {
	if !ex.env.Stack.EmptyTo(object.RepeatItem) {
		return berrors.New(berrors.UntilWithoutRepeat)
	}
	rf := ex.env.Stack.Top().(*object.RepeatFrame)
	v, err := ex.expr()
	if err != nil {
		return err
	}
	if v.IsStr() {
		ex.env.Stack.Release(v)
		return berrors.New(berrors.TypeNum)
	}
	if v.Truth() {
		ex.env.Stack.Pop()
		return nil
	}
	ex.pos = rf.Body
	ex.line = rf.BodyLine
	return nil
}

// stmtFor sets up a loop frame. The body always runs at least once;
// the test lives in NEXT.
func (ex *Exec) stmtFor() error {
	m := ex.ws.Mem
	lv, err := ex.lvalue(true)
	if err != nil {
		return err
	}
	if lv.Kind == object.VarStrDol || lv.Kind == object.VarStrArray ||
		lv.Kind == object.VarDolStrPtr {
		return berrors.New(berrors.TypeNum)
	}
	if m[ex.pos] != byte(token.Equal) {
		return berrors.New(berrors.MissingEquals)
	}
	ex.pos++
	start, err := ex.expr()
	if err != nil {
		return err
	}
	if err := ex.store(lv, start); err != nil {
		return err
	}
	if m[ex.pos] != token.To {
		return berrors.New(berrors.Syntax)
	}
	ex.pos++
	limit, err := ex.expr()
	if err != nil {
		return err
	}
	if limit.IsStr() {
		ex.env.Stack.Release(limit)
		return berrors.New(berrors.TypeNum)
	}
	step := object.IntVal(1)
	if m[ex.pos] == token.Step {
		ex.pos++
		step, err = ex.expr()
		if err != nil {
			return err
		}
		if step.IsStr() {
			ex.env.Stack.Release(step)
			return berrors.New(berrors.TypeNum)
		}
	}
	simple := lv.Kind == object.VarIntWord && lv.Var != nil && lv.Arr == nil &&
		limit.Kind == object.IntK && step.Kind == object.IntK && step.I == 1
	ex.env.Stack.Push(&object.ForFrame{
		Lv: lv, Body: ex.pos, BodyLine: ex.line,
		Limit: limit, Step: step, Simple: simple,
	})
	return nil
}

func (ex *Exec) stmtNext() error {
	m := ex.ws.Mem
	for {
		named := false
		var want object.Lvalue
		if t := m[ex.pos]; token.IsVarToken(t) || t == token.StaticVar {
			lv, err := ex.lvalue(false)
			if err != nil {
				return err
			}
			want = lv
			named = true
		}

		var f *object.ForFrame
		for {
			if !ex.env.Stack.EmptyTo(object.ForItem) {
				return berrors.New(berrors.NextWithoutFor)
			}
			f = ex.env.Stack.Top().(*object.ForFrame)
			if !named || sameIter(f.Lv, want) {
				break
			}
			// NEXT j closes any unfinished inner loops
			ex.env.Stack.Pop()
		}

		again, err := ex.bumpFor(f)
		if err != nil {
			return err
		}
		if again {
			ex.pos = f.Body
			ex.line = f.BodyLine
			return nil
		}
		ex.env.Stack.Pop()
		if m[ex.pos] == byte(token.Comma) {
			ex.pos++
			continue
		}
		return nil
	}
}

func sameIter(a, b object.Lvalue) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Var != nil || b.Var != nil {
		if a.Var != b.Var {
			return false
		}
		return a.Arr == b.Arr && a.Elem == b.Elem
	}
	return a.Off == b.Off
}

// bumpFor steps a loop iterator and reports whether the loop runs on.
func (ex *Exec) bumpFor(f *object.ForFrame) (bool, error) {
	if f.Simple {
		f.Lv.Var.Val.I++
		return f.Lv.Var.Val.I <= f.Limit.I, nil
	}
	cur, err := ex.load(f.Lv)
	if err != nil {
		return false, err
	}
	next, err := addVals(cur, f.Step)
	if err != nil {
		return false, err
	}
	if err := ex.store(f.Lv, next); err != nil {
		return false, err
	}
	if f.Step.AsFloat() >= 0 {
		return next.AsFloat() <= f.Limit.AsFloat(), nil
	}
	return next.AsFloat() >= f.Limit.AsFloat(), nil
}

// stmtExit leaves the innermost loop of the named kind, resuming after
// its terminator.
func (ex *Exec) stmtExit() error {
	m := ex.ws.Mem
	var tag object.ItemTag
	switch m[ex.pos] {
	case token.For:
		tag = object.ForItem
		ex.pos++
	case token.XWhile, token.While:
		tag = object.WhileItem
		ex.pos = ex.prog.Skip(ex.pos)
	case token.Repeat:
		tag = object.RepeatItem
		ex.pos++
	default:
		return berrors.New(berrors.Syntax)
	}
	if !ex.env.Stack.EmptyTo(tag) {
		return berrors.New(berrors.ExitWithoutLoop)
	}
	frame := ex.env.Stack.Pop()

	if tag == object.WhileItem {
		wf := frame.(*object.WhileFrame)
		wt := wf.Cond - 1 - token.AddrSize
		ex.jumpAddr(ex.prog.Payload(wt))
		return nil
	}

	opener, closer := byte(token.For), byte(token.Next)
	missing := berrors.MissingNext
	if tag == object.RepeatItem {
		opener, closer = token.Repeat, token.Until
		missing = berrors.MissingUntil
	}
	depth := 0
	q := ex.pos
	for {
		switch m[q] {
		case token.EOL:
			if ex.prog.IsEnd(q + 1) {
				return berrors.New(missing)
			}
			q = ex.prog.Tokens(q + 1)
			continue
		case opener:
			depth++
		case closer:
			if depth == 0 {
				// step past the NEXT's variables or UNTIL's condition
				ex.jumpAddr(skipExprTokens(ex, q+1))
				return nil
			}
			depth--
		}
		q = ex.prog.Skip(q)
	}
}

// stmtOn covers ON ERROR handler installation and computed
// ON expr GOTO/GOSUB jumps.
func (ex *Exec) stmtOn() error {
	m := ex.ws.Mem
	if m[ex.pos] == token.Error {
		ex.pos++
		switch m[ex.pos] {
		case token.Off:
			ex.pos++
			ex.env.Handler = object.ErrorHandler{}
			return nil
		case token.Local:
			ex.pos++
			ex.env.Stack.Push(&object.ErrorFrame{Saved: ex.env.Handler})
			ex.env.Handler = object.ErrorHandler{
				Installed: true, Local: true,
				Addr: ex.pos, Line: ex.line,
				Depth: ex.env.Stack.Len(),
			}
			ex.pos = ex.lineEnd()
			return nil
		default:
			ex.env.Handler = object.ErrorHandler{
				Installed: true, Addr: ex.pos, Line: ex.line,
			}
			ex.pos = ex.lineEnd()
			return nil
		}
	}

	v, err := ex.expr()
	if err != nil {
		return err
	}
	n, err := v.AsInt32()
	if err != nil {
		return err
	}
	mode := m[ex.pos]
	if mode != token.Goto && mode != token.Gosub {
		return berrors.New(berrors.Syntax)
	}
	ex.pos++

	hdr, idx := -1, 1
	for {
		if int32(idx) == n {
			hdr, err = ex.lineNumTarget()
			if err != nil {
				return err
			}
		} else {
			ex.skipOnEntry()
		}
		idx++
		if m[ex.pos] == byte(token.Comma) {
			ex.pos++
			continue
		}
		break
	}

	if hdr < 0 {
		// out of range: the ELSE clause catches it if there is one
		sawElse := false
		for m[ex.pos] != token.EOL && m[ex.pos] != byte(token.Colon) {
			if m[ex.pos] == token.XElse || m[ex.pos] == token.Else {
				ex.pos = ex.prog.Skip(ex.pos)
				sawElse = true
				break
			}
			ex.pos = ex.prog.Skip(ex.pos)
		}
		if !sawElse {
			return berrors.New(berrors.Range)
		}
		return nil
	}

	if mode == token.Gosub {
		// resume after the whole statement, ELSE clause included
		ret := ex.pos
		for m[ret] != token.EOL && m[ret] != byte(token.Colon) {
			if m[ret] == token.XElse || m[ret] == token.Else {
				ret = ex.lineEnd()
				break
			}
			ret = ex.prog.Skip(ret)
		}
		ex.env.Stack.Push(&object.GosubFrame{Ret: ret, RetLine: ex.line})
	}
	ex.enterLine(hdr)
	return nil
}

// skipOnEntry steps over one unselected entry of an ON list.
func (ex *Exec) skipOnEntry() {
	m := ex.ws.Mem
	parens := 0
	for {
		switch m[ex.pos] {
		case token.EOL, token.XElse, token.Else:
			return
		case byte(token.Comma), byte(token.Colon):
			if parens == 0 {
				return
			}
		case byte(token.LParen):
			parens++
		case byte(token.RParen):
			parens--
		}
		ex.pos = ex.prog.Skip(ex.pos)
	}
}

// stmtLocal shadows variables inside a PROC or FN, or saves the error
// handler or DATA cursor for restoration on exit.
func (ex *Exec) stmtLocal() error {
	m := ex.ws.Mem
	switch m[ex.pos] {
	case token.Error:
		ex.pos++
		ex.env.Stack.Push(&object.ErrorFrame{Saved: ex.env.Handler})
		return nil
	case token.Data:
		ex.pos = ex.prog.Skip(ex.pos)
		ex.env.Stack.Push(&object.DataFrame{Cur: ex.env.DataCur, Text: ex.env.DataText})
		return nil
	}
	if !ex.env.Stack.HasFrame(object.ProcItem) && !ex.env.Stack.HasFrame(object.FnItem) {
		return berrors.New(berrors.NotLocal)
	}
	for {
		lv, err := ex.lvalue(true)
		if err != nil {
			return err
		}
		if lv.Var == nil || (lv.Arr != nil && lv.Elem >= 0) {
			return berrors.New(berrors.NotLocal)
		}
		v := lv.Var
		ex.env.Stack.Push(&object.LocalSave{Var: v, Kind: v.Kind, Val: v.Val, Arr: v.Arr})
		resetVar(v)
		if m[ex.pos] != byte(token.Comma) {
			return nil
		}
		ex.pos++
	}
}

// resetVar gives a shadowed variable the empty value of its kind. The
// displaced contents are owned by the LocalSave above it.
func resetVar(v *object.Variable) {
	switch v.Kind {
	case object.VarStrDol:
		v.Val = object.StrVal(object.StrDesc{Ptr: heap.Empty})
	case object.VarUint8:
		v.Val = object.Uint8Val(0)
	case object.VarIntLong:
		v.Val = object.Int64Val(0)
	case object.VarFloat:
		v.Val = object.FloatVal(0)
	case object.VarIntArray, object.VarUint8Array, object.VarInt64Array,
		object.VarFloatArray, object.VarStrArray:
		v.Arr = nil
	default:
		v.Val = object.IntVal(0)
	}
}

func (ex *Exec) stmtProcCall() error {
	if strings.HasPrefix(ex.prog.VarName(ex.pos), "FN") {
		return berrors.New(berrors.Syntax)
	}
	_, err := ex.callRoutine(false)
	return err
}

// callRoutine invokes a PROC or FN. For an FN it runs a nested
// statement loop until the frame it pushed has been popped by the
// = return, then hands back the result.
func (ex *Exec) callRoutine(isFn bool) (object.Value, error) {
	var zero object.Value
	m := ex.ws.Mem
	p := ex.pos
	if m[p] == token.XFnProcCall {
		name := ex.prog.VarName(p)
		fn := strings.HasPrefix(name, "FN")
		base := strings.TrimPrefix(strings.TrimPrefix(name, "PROC"), "FN")
		idx := ex.env.FindDef(base, fn)
		if idx < 0 {
			if err := ex.scanDefs(); err != nil {
				return zero, err
			}
			idx = ex.env.FindDef(base, fn)
		}
		if idx < 0 {
			return zero, berrors.New(berrors.NoSuchFnProc)
		}
		ex.prog.Resolve(p, token.FnProcCall, idx)
	}
	def := ex.env.Defs[ex.prog.Payload(p)]
	if def.IsFn != isFn {
		return zero, berrors.New(berrors.NoSuchFnProc)
	}
	ex.pos = ex.prog.Skip(p)

	var args []object.Value
	if m[ex.pos] == byte(token.LParen) {
		ex.pos++
		if m[ex.pos] != byte(token.RParen) {
			for {
				v, err := ex.expr()
				if err != nil {
					return zero, err
				}
				args = append(args, v)
				if m[ex.pos] == byte(token.Comma) {
					ex.pos++
					continue
				}
				break
			}
		}
		if m[ex.pos] != byte(token.RParen) {
			return zero, berrors.New(berrors.MissingParen)
		}
		ex.pos++
	}
	if len(args) != len(def.Parms) {
		return zero, berrors.New(berrors.BadArgCount)
	}

	depthAtCall := ex.env.Stack.Len()
	spMark := ex.ws.Sp
	for i, pv := range def.Parms {
		ex.env.Stack.Push(&object.LocalSave{Var: pv, Kind: pv.Kind, Val: pv.Val, Arr: pv.Arr})
		resetVar(pv)
		if err := ex.store(object.Lvalue{Kind: pv.Kind, Var: pv}, args[i]); err != nil {
			ex.env.Stack.PopSaves(i + 1)
			return zero, err
		}
	}
	ex.env.Stack.Push(&object.CallFrame{
		Def: def, Ret: ex.pos, RetLine: ex.line,
		NParms: len(def.Parms), SpMark: spMark, Depth: depthAtCall,
	})
	ex.traceCall(def)
	ex.pos = def.Body
	ex.line = def.BodyLine

	if !isFn {
		return zero, nil
	}
	ex.fnDepth++
	for ex.env.Stack.Len() > depthAtCall {
		if err := ex.statement(); err != nil {
			return zero, err
		}
	}
	ex.fnDepth--
	return ex.fnResult, nil
}

func (ex *Exec) traceCall(def *object.FnProc) {
	if !ex.env.Settings().Bool(settings.TraceProc) {
		return
	}
	pfx := "PROC"
	if def.IsFn {
		pfx = "FN"
	}
	out := "[" + pfx + def.Name + "]"
	if ex.env.TraceSink != nil {
		ex.env.TraceSink.Write([]byte(out))
		return
	}
	ex.env.Terminal().Print(out)
}

// scanDefs walks the whole program caching every DEF it finds. First
// definition of a name wins.
func (ex *Exec) scanDefs() error {
	m := ex.ws.Mem
	ex.prog.Lines(func(off int) bool {
		q := ex.prog.Tokens(off)
		if m[q] != token.Def {
			return true
		}
		q++
		if m[q] != token.XFnProcCall && m[q] != token.FnProcCall {
			return true
		}
		name := ex.prog.VarName(q)
		fn := strings.HasPrefix(name, "FN")
		base := strings.TrimPrefix(strings.TrimPrefix(name, "PROC"), "FN")
		if ex.env.FindDef(base, fn) >= 0 {
			return true
		}
		q = ex.prog.Skip(q)

		var parms []*object.Variable
		if m[q] == byte(token.LParen) {
			q++
			for token.IsVarToken(m[q]) {
				pname := ex.prog.VarName(q)
				pv := ex.env.FindVariable(pname)
				if pv == nil {
					pv = ex.env.CreateVariable(pname, false)
				}
				parms = append(parms, pv)
				q = ex.prog.Skip(q)
				if m[q] != byte(token.Comma) {
					break
				}
				q++
			}
			if m[q] != byte(token.RParen) {
				return true // malformed header, leave it uncached
			}
			q++
		}
		ex.env.RegisterDef(&object.FnProc{
			Name: base, IsFn: fn, Parms: parms,
			Body: q, BodyLine: ex.prog.LineNo(off),
		})
		return true
	})
	return nil
}

// unwindRoutine pops the stack back to the enclosing PROC or FN frame,
// restoring shadowed variables and any saved handler or DATA cursor on
// the way out.
func (ex *Exec) unwindRoutine(tag object.ItemTag, missing int) (*object.CallFrame, error) {
	st := ex.env.Stack
	for {
		switch t := st.UnwindLocal(); t {
		case tag:
			return st.Pop().(*object.CallFrame), nil
		case object.ErrorItem:
			ef := st.Pop().(*object.ErrorFrame)
			ex.env.Handler = ef.Saved
		case object.DataItem:
			df := st.Pop().(*object.DataFrame)
			ex.env.DataCur = df.Cur
			ex.env.DataText = df.Text
		case object.ForItem, object.WhileItem, object.RepeatItem, object.GosubItem:
			st.Pop()
		default:
			return nil, berrors.New(missing)
		}
	}
}

func (ex *Exec) stmtEndproc() error {
	cf, err := ex.unwindRoutine(object.ProcItem, berrors.EndprocWithoutProc)
	if err != nil {
		return err
	}
	ex.env.Stack.PopSaves(cf.NParms)
	ex.ws.StackRestore(cf.SpMark)
	ex.pos = cf.Ret
	ex.line = cf.RetLine
	return nil
}

// stmtFnReturn is the = statement closing an FN body. A borrowed
// string result is copied before the locals restore under it.
func (ex *Exec) stmtFnReturn() error {
	if !ex.env.Stack.HasFrame(object.FnItem) {
		return berrors.New(berrors.ReturnOutsideFn)
	}
	v, err := ex.expr()
	if err != nil {
		return err
	}
	if v.Kind == object.StringK {
		d, err := ex.env.StrStore(ex.env.StrFetch(v.S))
		if err != nil {
			return err
		}
		v = object.TempStr(d)
	}
	cf, err := ex.unwindRoutine(object.FnItem, berrors.ReturnOutsideFn)
	if err != nil {
		return err
	}
	ex.env.Stack.PopSaves(cf.NParms)
	ex.ws.StackRestore(cf.SpMark)
	ex.fnResult = v
	ex.pos = cf.Ret
	ex.line = cf.RetLine
	return nil
}
