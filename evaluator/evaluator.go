// Package evaluator executes the tokenised program in place. Tokens
// resolve to their cached forms as they are first met, so loops run on
// direct addresses and indexes after the first pass.
package evaluator

import (
	"errors"
	"fmt"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/prog"
	"github.com/stardot/MatrixBrandy-sub002/settings"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// ErrQuit is how QUIT reaches the command loop.
var ErrQuit = errors.New("quit")

// errEnd stops the run loop without a report. END, STOP and falling
// off the program all come through here.
var errEnd = errors.New("end of run")

// errRestart asks the top loop to continue at ex.pos after an error
// handler has been installed as the new continuation.
var errRestart = errors.New("restart")

// Exec is one interpreter activation over an environment.
type Exec struct {
	env  *object.Environment
	ws   *heap.Workspace
	prog *prog.Program

	pos  int // address of the token being executed
	line int // current line number, -1 in immediate mode

	fnDepth  int
	fnResult object.Value
	immEnd   int // end sentinel address for an immediate line
}

func New(env *object.Environment) *Exec {
	return &Exec{env: env, ws: env.WS, prog: env.Prog}
}

// Run executes the stored program from its first line.
func (ex *Exec) Run() error {
	start := ex.prog.Start()
	if ex.prog.IsEnd(start) {
		return nil
	}
	ex.env.Clear()
	ex.pos = ex.prog.Tokens(start)
	ex.line = ex.prog.LineNo(start)
	ex.env.SetRun(true)
	defer ex.env.SetRun(false)
	return ex.loop()
}

// Immediate executes one unnumbered line. The tokens are copied into a
// stack block so resolved payloads never outlive the call.
func (ex *Exec) Immediate(line []byte) error {
	toks := line[prog.HeaderSize:]
	mark := ex.ws.Sp
	p, err := ex.ws.StackAlloc(len(toks))
	if err != nil {
		return err
	}
	copy(ex.ws.Mem[p:], toks)
	defer ex.ws.StackRestore(mark)

	savePos, saveLine, saveEnd := ex.pos, ex.line, ex.immEnd
	ex.pos = p
	ex.line = -1
	ex.immEnd = p + len(toks) - 1
	defer func() {
		ex.pos, ex.line, ex.immEnd = savePos, saveLine, saveEnd
	}()
	return ex.loop()
}

// loop is the top run loop: the only place errors meet the installed
// ON ERROR handler.
func (ex *Exec) loop() error {
	for {
		err := ex.statement()
		if err == nil {
			continue
		}
		if err == errEnd {
			return nil
		}
		if err == errRestart {
			continue
		}
		be, ok := err.(*berrors.BasicError)
		if !ok {
			return err
		}
		if be.Line < 0 {
			be.Line = ex.prog.LineForAddr(ex.pos)
		}
		ex.env.LastErr = be
		ex.fnDepth = 0
		h := ex.env.Handler
		if !h.Installed {
			ex.report(be)
			return err
		}
		if h.Local {
			ex.env.Stack.TruncateTo(h.Depth)
		} else {
			ex.env.Stack.Clear()
		}
		ex.pos = h.Addr
		ex.line = h.Line
	}
}

func (ex *Exec) report(be *berrors.BasicError) {
	msg := be.Msg
	if msg == "" {
		msg = berrors.TextForError(be.Code)
	}
	if be.Line >= 0 {
		msg = fmt.Sprintf("%s at line %d", msg, be.Line)
	}
	ex.env.Terminal().Println(msg)
}

// statement executes one statement and leaves pos at the next
// boundary. The escape key is polled here, between statements.
func (ex *Exec) statement() error {
	if ex.env.Terminal().BreakCheck() {
		return berrors.New(berrors.Escape)
	}

	m := ex.ws.Mem
	for m[ex.pos] == byte(token.Colon) {
		ex.pos++
	}
	if m[ex.pos] == token.EOL {
		return ex.endOfLine()
	}

	t := m[ex.pos]
	switch t {
	case token.Let:
		ex.pos++
		return ex.assignment()
	case token.XVar, token.IntVar, token.Uint8Var, token.Int64Var,
		token.FloatVar, token.StrVar, token.ArrayVar, token.StaticVar,
		token.Query, token.Pling, token.Bar, token.Dollar:
		return ex.assignment()
	case token.Print:
		ex.pos++
		return ex.stmtPrint()
	case token.XIf, token.SingleIf, token.BlockIf:
		return ex.stmtIf()
	case token.XElse, token.Else:
		return ex.stmtElse()
	case token.XLhElse, token.LhElse:
		return ex.stmtLhElse()
	case token.Endif:
		ex.pos++
		return nil
	case token.XCase, token.Case:
		return ex.stmtCase()
	case token.XWhen, token.When, token.XOtherwise, token.Otherwise:
		return ex.stmtWhenSkip()
	case token.Endcase:
		ex.pos++
		return nil
	case token.For:
		ex.pos++
		return ex.stmtFor()
	case token.Next:
		ex.pos++
		return ex.stmtNext()
	case token.XWhile, token.While:
		return ex.stmtWhile()
	case token.Endwhile:
		ex.pos++
		return ex.stmtEndwhile()
	case token.Repeat:
		ex.pos++
		return ex.stmtRepeat()
	case token.Until:
		ex.pos++
		return ex.stmtUntil()
	case token.Goto:
		ex.pos++
		return ex.stmtGoto()
	case token.Gosub:
		ex.pos++
		return ex.stmtGosub()
	case token.Return:
		ex.pos++
		return ex.stmtReturn()
	case token.On:
		ex.pos++
		return ex.stmtOn()
	case token.XFnProcCall, token.FnProcCall:
		return ex.stmtProcCall()
	case token.Endproc:
		ex.pos++
		return ex.stmtEndproc()
	case token.Equal:
		ex.pos++
		return ex.stmtFnReturn()
	case token.Def:
		return ex.skipDef()
	case token.Local:
		ex.pos++
		return ex.stmtLocal()
	case token.Exit:
		ex.pos++
		return ex.stmtExit()
	case token.Dim:
		ex.pos++
		return ex.stmtDim()
	case token.Data, token.Rem:
		ex.pos = ex.prog.Skip(ex.pos)
		return nil
	case token.Read:
		ex.pos++
		return ex.stmtRead()
	case token.Restore:
		ex.pos++
		return ex.stmtRestore()
	case token.Input:
		ex.pos++
		return ex.stmtInput()
	case token.Swap:
		ex.pos++
		return ex.stmtSwap()
	case token.Error:
		ex.pos++
		return ex.stmtError()
	case token.Report:
		ex.pos++
		return ex.stmtReport()
	case token.Stop:
		ex.pos++
		return ex.stmtStop()
	case token.End:
		ex.pos++
		return ex.stmtEnd()
	case token.Trace:
		ex.pos++
		return ex.stmtTrace()
	case token.Oscli:
		ex.pos++
		return ex.stmtOscli()
	case token.Star:
		return ex.stmtStarCommand()
	case token.Sys:
		ex.pos++
		return ex.stmtSys()
	case token.Wait:
		ex.pos++
		return ex.stmtWait()
	case token.Call:
		ex.pos++
		return ex.stmtCall()
	case token.Bput:
		ex.pos++
		return ex.stmtBput()
	case token.Close:
		ex.pos++
		return ex.stmtClose()
	case token.Clear:
		ex.pos++
		ex.env.Clear()
		return nil
	case token.Time, token.TimeDol, token.Himem, token.Lomem,
		token.Page, token.Filepath:
		return ex.stmtPseudoAssign()
	case token.List:
		ex.pos++
		return ex.stmtList()
	case token.New:
		ex.pos++
		return ex.stmtNew()
	case token.Run:
		ex.pos++
		return ex.stmtRun()
	case token.Load:
		ex.pos++
		return ex.stmtLoad()
	case token.Save:
		ex.pos++
		return ex.stmtSave()
	case token.Quit:
		return ErrQuit
	case token.BadLine:
		return berrors.New(int(m[ex.pos+1]))
	case token.XLineNum, token.LineNum:
		// a bare line number is an implicit GOTO after THEN or ELSE
		return ex.stmtGoto()
	}
	return berrors.New(berrors.Syntax)
}

// endOfLine steps over the line boundary into the next line.
func (ex *Exec) endOfLine() error {
	if ex.line < 0 {
		// immediate mode has no next line
		return errEnd
	}
	hdr := ex.pos + 1
	if ex.prog.IsEnd(hdr) {
		return errEnd
	}
	ex.enterLine(hdr)
	return nil
}

// enterLine moves execution to the start of the line at header hdr.
func (ex *Exec) enterLine(hdr int) {
	ex.line = ex.prog.LineNo(hdr)
	ex.pos = ex.prog.Tokens(hdr)
	ex.traceLine()
}

func (ex *Exec) traceLine() {
	if !ex.env.Settings().Bool(settings.TraceLine) {
		return
	}
	out := fmt.Sprintf("[%d]", ex.line)
	if ex.env.TraceSink != nil {
		fmt.Fprint(ex.env.TraceSink, out)
		return
	}
	ex.env.Terminal().Print(out)
}

// jumpAddr transfers to an arbitrary token address, refreshing the
// line number for traces and reports.
func (ex *Exec) jumpAddr(addr int) {
	ex.pos = addr
	if ex.line >= 0 {
		ex.line = ex.prog.LineForAddr(addr)
	}
}

// skipStatement moves pos past the current statement, to the next
// colon or line end. Nothing inside an expression can be a colon, so a
// token walk is enough.
func (ex *Exec) skipStatement() {
	m := ex.ws.Mem
	for m[ex.pos] != token.EOL && m[ex.pos] != byte(token.Colon) {
		ex.pos = ex.prog.Skip(ex.pos)
	}
}

// lineEnd returns the address of this line's EOL byte.
func (ex *Exec) lineEnd() int {
	m := ex.ws.Mem
	p := ex.pos
	for m[p] != token.EOL {
		p = ex.prog.Skip(p)
	}
	return p
}

// resolveLineNum turns an XLINENUM into its cached form and returns the
// header address of the target line.
func (ex *Exec) resolveLineNum() (int, error) {
	m := ex.ws.Mem
	if m[ex.pos] == token.LineNum {
		hdr := ex.prog.Payload(ex.pos)
		ex.pos = ex.prog.Skip(ex.pos)
		return hdr, nil
	}
	n := ex.prog.TokenLineNo(ex.pos)
	hdr, found := ex.prog.FindLine(n)
	if !found {
		return 0, berrors.New(berrors.UndefinedLineNumber)
	}
	if ex.line >= 0 {
		// cache only when the token lives in the program
		ex.prog.Resolve(ex.pos, token.LineNum, hdr)
	}
	ex.pos = ex.prog.Skip(ex.pos)
	return hdr, nil
}

// lineNumTarget reads either a literal line number token or a numeric
// expression as a jump target.
func (ex *Exec) lineNumTarget() (int, error) {
	m := ex.ws.Mem
	if m[ex.pos] == token.XLineNum || m[ex.pos] == token.LineNum {
		return ex.resolveLineNum()
	}
	v, err := ex.expr()
	if err != nil {
		return 0, err
	}
	n, err := v.AsInt32()
	if err != nil {
		return 0, err
	}
	hdr, found := ex.prog.FindLine(int(n))
	if !found {
		return 0, berrors.New(berrors.UndefinedLineNumber)
	}
	return hdr, nil
}

func (ex *Exec) stmtGoto() error {
	hdr, err := ex.lineNumTarget()
	if err != nil {
		return err
	}
	if ex.line < 0 {
		// jumping out of immediate mode into the program
		ex.env.SetRun(true)
	}
	ex.enterLine(hdr)
	return nil
}

func (ex *Exec) stmtGosub() error {
	hdr, err := ex.lineNumTarget()
	if err != nil {
		return err
	}
	ex.env.Stack.Push(&object.GosubFrame{Ret: ex.pos, RetLine: ex.line})
	ex.enterLine(hdr)
	return nil
}

func (ex *Exec) stmtReturn() error {
	if !ex.env.Stack.EmptyTo(object.GosubItem) {
		return berrors.New(berrors.ReturnWoGosub)
	}
	g := ex.env.Stack.Pop().(*object.GosubFrame)
	ex.pos = g.Ret
	ex.line = g.RetLine
	return nil
}

func (ex *Exec) stmtStop() error {
	ex.env.Terminal().Println("")
	be := berrors.New(berrors.StopRequest)
	be.Line = ex.line
	ex.env.LastErr = be
	ex.report(be)
	return errEnd
}

func (ex *Exec) stmtEnd() error {
	// END inside an expression context would strand frames; the run
	// just finishes
	return errEnd
}

func (ex *Exec) stmtReport() error {
	ex.env.Terminal().Println("")
	if ex.env.LastErr == nil {
		return nil
	}
	msg := ex.env.LastErr.Msg
	if msg == "" {
		msg = berrors.TextForError(ex.env.LastErr.Code)
	}
	ex.env.Terminal().Print(msg)
	return nil
}

// ERROR n, msg$ raises a user error as if the interpreter had found
// one. ERROR EXT n, msg$ is fatal even under a handler.
func (ex *Exec) stmtError() error {
	m := ex.ws.Mem
	fatal := false
	if m[ex.pos] == token.FuncTok && m[ex.pos+1] == byte(token.FnExt) {
		// ERROR EXT is fatal, handler or not
		fatal = true
		ex.pos += 2
	}
	v, err := ex.expr()
	if err != nil {
		return err
	}
	code, err := v.AsInt32()
	if err != nil {
		return err
	}
	msg := ""
	if m[ex.pos] == byte(token.Comma) {
		ex.pos++
		sv, err := ex.expr()
		if err != nil {
			return err
		}
		if !sv.IsStr() {
			return berrors.New(berrors.TypeStr)
		}
		msg = ex.env.StrFetch(sv.S)
		ex.env.Stack.Release(sv)
	}
	be := berrors.NewMsg(int(code), msg)
	if fatal {
		be.Line = ex.line
		ex.env.LastErr = be
		ex.report(be)
		return errEnd
	}
	return be
}

// skipDef steps over a DEF PROC/FN body met in the normal flow of
// execution. A PROC body ends at ENDPROC; an FN body ends at the
// statement that starts with =, or at the = on the def line itself.
func (ex *Exec) skipDef() error {
	m := ex.ws.Mem
	p := ex.pos + 1 // past DEF
	if m[p] != token.XFnProcCall && m[p] != token.FnProcCall {
		return berrors.New(berrors.Syntax)
	}
	isFn := ex.prog.VarName(p)[0] == 'F'

	if !isFn {
		for {
			if m[p] == token.EOL {
				if ex.prog.IsEnd(p + 1) {
					return berrors.New(berrors.BadProgram)
				}
				p = ex.prog.Tokens(p + 1)
				continue
			}
			if m[p] == token.Endproc {
				ex.jumpAddr(p + 1)
				return nil
			}
			p = ex.prog.Skip(p)
		}
	}

	// a single line DEF FN carries its = on the def line
	for m[p] != token.EOL {
		if m[p] == byte(token.Equal) {
			ex.jumpAddr(skipExprTokens(ex, p+1))
			return nil
		}
		p = ex.prog.Skip(p)
	}
	for {
		if ex.prog.IsEnd(p + 1) {
			return berrors.New(berrors.BadProgram)
		}
		p = ex.prog.Tokens(p + 1)
		stmtStart := true
		for m[p] != token.EOL {
			if stmtStart && m[p] == byte(token.Equal) {
				ex.jumpAddr(skipExprTokens(ex, p+1))
				return nil
			}
			stmtStart = m[p] == byte(token.Colon)
			p = ex.prog.Skip(p)
		}
	}
}

// skipExprTokens walks to the end of the statement starting at p.
func skipExprTokens(ex *Exec, p int) int {
	m := ex.ws.Mem
	for m[p] != token.EOL && m[p] != byte(token.Colon) {
		p = ex.prog.Skip(p)
	}
	return p
}

func (ex *Exec) stmtTrace() error {
	m := ex.ws.Mem
	st := ex.env.Settings()
	switch m[ex.pos] {
	case token.On:
		ex.pos++
		st.SetBool(settings.TraceLine, true)
	case token.Off:
		ex.pos++
		st.SetBool(settings.TraceLine, false)
		st.SetBool(settings.TraceProc, false)
	case token.XFnProcCall, token.FnProcCall:
		// TRACE PROC: the tokeniser reads the word as a call head
		if ex.prog.VarName(ex.pos) == "PROC" {
			ex.pos = ex.prog.Skip(ex.pos)
			st.SetBool(settings.TraceProc, true)
			return nil
		}
		return berrors.New(berrors.Syntax)
	case token.Step:
		ex.pos++
		st.SetBool(settings.TraceStep, true)
		st.SetBool(settings.TraceLine, true)
	default:
		// TRACE n: trace lines below n; treated as TRACE ON
		_, err := ex.expr()
		if err != nil {
			return err
		}
		st.SetBool(settings.TraceLine, true)
	}
	return nil
}

func (ex *Exec) stmtOscli() error {
	v, err := ex.expr()
	if err != nil {
		return err
	}
	if !v.IsStr() {
		return berrors.New(berrors.TypeStr)
	}
	cmd := ex.env.StrFetch(v.S)
	ex.env.Stack.Release(v)
	return ex.oscli(cmd)
}

func (ex *Exec) stmtStarCommand() error {
	m := ex.ws.Mem
	ex.pos++ // the *
	start := ex.pos
	for m[ex.pos] != token.EOL {
		ex.pos++
	}
	return ex.oscli(string(m[start:ex.pos]))
}

func (ex *Exec) oscli(cmd string) error {
	if ex.env.Mos() == nil {
		return berrors.New(berrors.Unsupported)
	}
	return ex.env.Mos().Oscli(cmd)
}

// SYS num, in... [TO out...]
func (ex *Exec) stmtSys() error {
	if ex.env.Mos() == nil {
		return berrors.New(berrors.Unsupported)
	}
	m := ex.ws.Mem
	v, err := ex.expr()
	if err != nil {
		return err
	}
	num, err := v.AsInt64()
	if err != nil {
		return err
	}
	var in, out [10]int64
	n := 0
	for m[ex.pos] == byte(token.Comma) && n < len(in) {
		ex.pos++
		av, err := ex.expr()
		if err != nil {
			return err
		}
		in[n], err = av.AsInt64()
		if err != nil {
			return err
		}
		n++
	}
	ret, err := ex.env.Mos().Sys(num, in, &out)
	if err != nil {
		return err
	}
	if m[ex.pos] == token.To {
		ex.pos++
		i := 0
		for {
			lv, err := ex.lvalue(true)
			if err != nil {
				return err
			}
			val := object.Int64Val(ret)
			if i > 0 && i <= len(out) {
				val = object.Int64Val(out[i-1])
			}
			if err := ex.store(lv, val); err != nil {
				return err
			}
			i++
			if m[ex.pos] != byte(token.Comma) {
				break
			}
			ex.pos++
		}
	}
	return nil
}

func (ex *Exec) stmtWait() error {
	m := ex.ws.Mem
	cs := 0
	if m[ex.pos] != token.EOL && m[ex.pos] != byte(token.Colon) {
		v, err := ex.expr()
		if err != nil {
			return err
		}
		n, err := v.AsInt32()
		if err != nil {
			return err
		}
		cs = int(n)
	}
	if ex.env.Mos() != nil {
		ex.env.Mos().Wait(cs)
	}
	return nil
}

// CALL needs machine code to jump to, which there is none of.
func (ex *Exec) stmtCall() error {
	if _, err := ex.expr(); err != nil {
		return err
	}
	return berrors.New(berrors.Unsupported)
}

func (ex *Exec) stmtBput() error {
	m := ex.ws.Mem
	if m[ex.pos] != byte(token.Hash) {
		return berrors.New(berrors.MissingHash)
	}
	ex.pos++
	hv, err := ex.expr()
	if err != nil {
		return err
	}
	h, err := hv.AsInt32()
	if err != nil {
		return err
	}
	if m[ex.pos] != byte(token.Comma) {
		return berrors.New(berrors.MissingComma)
	}
	ex.pos++
	v, err := ex.expr()
	if err != nil {
		return err
	}
	if ex.env.FS() == nil {
		return berrors.New(berrors.Unsupported)
	}
	if v.IsStr() {
		// BPUT#h,a$ writes the bytes, then a newline unless ; follows
		s := ex.env.StrFetch(v.S)
		ex.env.Stack.Release(v)
		for i := 0; i < len(s); i++ {
			if err := ex.env.FS().Bput(int(h), s[i]); err != nil {
				return err
			}
		}
		if m[ex.pos] == byte(token.Semicolon) {
			ex.pos++
			return nil
		}
		return ex.env.FS().Bput(int(h), '\n')
	}
	b, err := v.AsUint8()
	if err != nil {
		return err
	}
	return ex.env.FS().Bput(int(h), b)
}

func (ex *Exec) stmtClose() error {
	m := ex.ws.Mem
	if m[ex.pos] != byte(token.Hash) {
		return berrors.New(berrors.MissingHash)
	}
	ex.pos++
	hv, err := ex.expr()
	if err != nil {
		return err
	}
	h, err := hv.AsInt32()
	if err != nil {
		return err
	}
	if ex.env.FS() == nil {
		return berrors.New(berrors.Unsupported)
	}
	if h == 0 {
		ex.env.FS().CloseAll()
		return nil
	}
	return ex.env.FS().Close(int(h))
}
