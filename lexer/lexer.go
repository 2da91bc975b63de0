// Package lexer turns source lines into tokenised line blocks and back.
package lexer

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/prog"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// Lexer carries the scan state for one source line.
type Lexer struct {
	input      string
	pos        int
	out        []byte
	lineNumCtx bool // numbers are line number targets here
	stmtStart  bool // a statement can begin at this token
	lineStart  bool // nothing emitted yet on this line
	bad        bool // a BadLine marker was planted, stop scanning
}

// Tokenise converts one source line into a complete line block:
// length, line number, tokens, terminator. numbered reports whether the
// text began with its own line number; otherwise defaultLine is used.
func Tokenise(src string, defaultLine int) (line []byte, numbered bool, err error) {
	text := src
	n := 0
	for n < len(text) && text[n] == ' ' {
		n++
	}
	d := n
	for d < len(text) && text[d] >= '0' && text[d] <= '9' {
		d++
	}
	lineno := defaultLine
	if d > n {
		v, perr := strconv.Atoi(text[n:d])
		if perr != nil || v > prog.MaxLineNo {
			return nil, false, berrors.New(berrors.Range)
		}
		lineno = v
		numbered = true
		text = text[d:]
	} else {
		text = text[n:]
	}

	toks := scan(text)
	total := prog.HeaderSize + len(toks)
	if total > prog.MaxLineLen {
		return nil, numbered, berrors.New(berrors.LineTooLong)
	}

	line = make([]byte, prog.HeaderSize, total)
	binary.LittleEndian.PutUint16(line, uint16(total))
	binary.LittleEndian.PutUint16(line[2:], uint16(lineno))
	line = append(line, toks...)
	return line, numbered, nil
}

// TokeniseExpr tokenises bare expression text, as READ does for each
// DATA field. The result is a terminated token stream with no header.
func TokeniseExpr(src string) []byte {
	return scan(src)
}

func scan(text string) []byte {
	l := &Lexer{input: text, stmtStart: true, lineStart: true}
	l.run()
	return append(l.out, token.EOL)
}

func (l *Lexer) run() {
	for !l.bad {
		l.skipSpace()
		ch := l.cur()
		if ch == 0 {
			return
		}

		switch {
		case ch == '"':
			l.readString()
		case ch >= '0' && ch <= '9':
			l.readNumber()
		case ch == '.' && l.peekAt(1) >= '0' && l.peekAt(1) <= '9':
			l.readNumber()
		case ch == '&' && isHexDigit(l.peekAt(1)):
			l.readHex()
		case ch == '&':
			l.plant(berrors.BadHexConstant)
		case ch == '%' && (l.peekAt(1) == '0' || l.peekAt(1) == '1'):
			l.readBinary()
		case ch == '*' && l.stmtStart:
			l.emit(token.Star)
			l.pos++
			l.rawRest()
			return
		case ch == '@' && l.peekAt(1) == '%':
			l.pos += 2
			l.emit(token.StaticVar, 26)
			l.afterToken()
		case isNameStart(ch):
			l.readWord()
		default:
			l.readOperator()
		}
	}
}

func (l *Lexer) cur() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) skipSpace() {
	for l.cur() == ' ' || l.cur() == '\t' {
		l.pos++
	}
}

func (l *Lexer) emit(bs ...byte) {
	l.out = append(l.out, bs...)
}

func (l *Lexer) afterToken() {
	l.stmtStart = false
	l.lineStart = false
	l.lineNumCtx = false
}

// plant drops a BadLine marker carrying the error code and abandons
// the rest of the line. The error surfaces when the line runs.
func (l *Lexer) plant(code int) {
	l.emit(token.BadLine, byte(code))
	l.bad = true
}

func (l *Lexer) readString() {
	l.pos++ // opening quote
	var b strings.Builder
	for {
		ch := l.cur()
		if ch == 0 {
			l.plant(berrors.MissingQuote)
			return
		}
		if ch == '"' {
			if l.peekAt(1) == '"' {
				b.WriteByte('"')
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		b.WriteByte(ch)
		l.pos++
	}
	s := b.String()
	l.emit(token.StringLit, byte(len(s)), byte(len(s)>>8))
	l.emit([]byte(s)...)
	l.afterToken()
}

func (l *Lexer) readNumber() {
	start := l.pos
	for isDigit(l.cur()) {
		l.pos++
	}
	isFloat := false
	if l.cur() == '.' {
		isFloat = true
		l.pos++
		for isDigit(l.cur()) {
			l.pos++
		}
	}
	if l.cur() == 'E' || l.cur() == 'e' {
		save := l.pos
		l.pos++
		if l.cur() == '+' || l.cur() == '-' {
			l.pos++
		}
		if isDigit(l.cur()) {
			isFloat = true
			for isDigit(l.cur()) {
				l.pos++
			}
		} else {
			l.pos = save // the E belongs to something else
		}
	}
	text := l.input[start:l.pos]

	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			if l.lineNumCtx && n <= prog.MaxLineNo {
				l.emitLineNum(int(n))
				l.stmtStart = false
				l.lineStart = false
				return // keep the context for ON ... GOTO lists
			}
			l.emitInt(n)
			l.afterToken()
			return
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) {
		l.plant(berrors.Overflow)
		return
	}
	l.emitFloat(f)
	l.afterToken()
}

func (l *Lexer) emitInt(n int64) {
	switch {
	case n >= 0 && n <= 255:
		l.emit(token.SmallInt, byte(n))
	case n >= math.MinInt32 && n <= math.MaxInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(n)))
		l.emit(token.IntLit)
		l.emit(b[:]...)
	default:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(n))
		l.emit(token.Int64Lit)
		l.emit(b[:]...)
	}
}

func (l *Lexer) emitFloat(f float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	l.emit(token.FloatLit)
	l.emit(b[:]...)
}

func (l *Lexer) emitLineNum(n int) {
	l.emit(token.XLineNum, byte(n), byte(n>>8), byte(n>>16))
	l.emit(0, 0, 0, 0)
}

// hex constants may fill all 32 bits; longer ones go to 64.
func (l *Lexer) readHex() {
	l.pos++ // &
	start := l.pos
	for isHexDigit(l.cur()) {
		l.pos++
	}
	text := l.input[start:l.pos]
	if len(text) > 16 {
		l.plant(berrors.BadHexConstant)
		return
	}
	u, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		l.plant(berrors.BadHexConstant)
		return
	}
	if len(text) <= 8 {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(u))
		l.emit(token.IntLit)
		l.emit(b[:]...)
	} else {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], u)
		l.emit(token.Int64Lit)
		l.emit(b[:]...)
	}
	l.afterToken()
}

func (l *Lexer) readBinary() {
	l.pos++ // %
	start := l.pos
	for l.cur() == '0' || l.cur() == '1' {
		l.pos++
	}
	text := l.input[start:l.pos]
	if len(text) > 64 {
		l.plant(berrors.BadBinConstant)
		return
	}
	u, err := strconv.ParseUint(text, 2, 64)
	if err != nil {
		l.plant(berrors.BadBinConstant)
		return
	}
	if len(text) <= 32 {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(u))
		l.emit(token.IntLit)
		l.emit(b[:]...)
	} else {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], u)
		l.emit(token.Int64Lit)
		l.emit(b[:]...)
	}
	l.afterToken()
}

func (l *Lexer) readOperator() {
	two := l.input[l.pos:]
	switch {
	case strings.HasPrefix(two, ">>>"):
		l.emit(token.Lsr)
		l.pos += 3
	case strings.HasPrefix(two, "<="):
		l.emit(token.LE)
		l.pos += 2
	case strings.HasPrefix(two, ">="):
		l.emit(token.GE)
		l.pos += 2
	case strings.HasPrefix(two, "<>"):
		l.emit(token.NE)
		l.pos += 2
	case strings.HasPrefix(two, "<<"):
		l.emit(token.Lsl)
		l.pos += 2
	case strings.HasPrefix(two, ">>"):
		l.emit(token.Asr)
		l.pos += 2
	case strings.HasPrefix(two, "+="):
		l.emit(token.PlusEq)
		l.pos += 2
	case strings.HasPrefix(two, "-="):
		l.emit(token.MinusEq)
		l.pos += 2
	default:
		ch := l.cur()
		l.emit(ch)
		l.pos++
		if ch == ':' {
			l.stmtStart = true
			l.lineNumCtx = false
			l.lineStart = false
			return
		}
		if ch == ',' && l.lineNumCtx {
			return // stay in the line number list
		}
	}
	l.afterToken()
}

// readWord handles PROC/FN calls, reserved words, builtin functions
// and plain identifiers, in that order of preference.
func (l *Lexer) readWord() {
	rest := l.input[l.pos:]

	if n, ok := matchCallPrefix(rest); ok {
		name := rest[:n]
		l.pos += n
		l.emit(token.XFnProcCall, 0, 0, 0, 0, byte(len(name)))
		l.emit([]byte(name)...)
		l.afterToken()
		return
	}

	// longest reserved word, rejected when glued to further letters
	word := l.pos
	for word < len(l.input) && (isLetter(l.input[word]) || l.input[word] == '$') {
		word++
	}
	w := l.input[l.pos:word]
	for n := len(w); n >= 1; n-- {
		t := token.LookupKeyword(w[:n])
		if t == 0 {
			continue
		}
		if n < len(w) && isLetter(w[n]) {
			continue
		}
		l.pos += n
		l.emitKeyword(t)
		return
	}

	for n := len(w); n >= 1; n-- {
		idx, ok := token.LookupFunc(w[:n])
		if !ok {
			continue
		}
		if n < len(w) && isLetter(w[n]) {
			continue
		}
		if token.FuncNeedsParen(idx) && l.peekAt(n) != '(' {
			continue
		}
		l.pos += n
		l.emit(token.FuncTok, byte(idx))
		l.afterToken()
		return
	}

	l.readIdent()
}

func (l *Lexer) emitKeyword(t byte) {
	switch t {
	case token.XElse:
		if l.lineStart {
			t = token.XLhElse
		}
	case token.Rem, token.Data:
		l.emit(t)
		if l.cur() == ' ' {
			l.pos++
		}
		l.rawRest()
		return
	}

	l.emit(t)
	for i := 0; i < token.OperandLen(t); i++ {
		l.emit(0)
	}

	l.stmtStart = false
	l.lineStart = false
	switch t {
	case token.Goto, token.Gosub, token.Restore, token.Then,
		token.XElse, token.XLhElse, token.List:
		l.lineNumCtx = true
	default:
		l.lineNumCtx = false
	}
	if t == token.Then || t == token.XElse || t == token.XLhElse {
		l.stmtStart = true
	}
}

// rawRest copies the remaining source verbatim, for REM, DATA and
// star commands. READ re-tokenises DATA text at run time.
func (l *Lexer) rawRest() {
	for l.pos < len(l.input) {
		l.emit(l.input[l.pos])
		l.pos++
	}
}

func (l *Lexer) readIdent() {
	start := l.pos
	for isNamePart(l.cur()) {
		l.pos++
	}
	// trailing sigil decides the kind at resolution
	switch {
	case l.cur() == '%' && l.peekAt(1) == '%':
		l.pos += 2
	case l.cur() == '%' || l.cur() == '&' || l.cur() == '$':
		l.pos++
	}
	name := l.input[start:l.pos]

	if len(name) == 2 && name[1] == '%' && name[0] >= 'A' && name[0] <= 'Z' {
		l.emit(token.StaticVar, name[0]-'A')
		l.afterToken()
		return
	}

	l.emit(token.XVar, 0, 0, 0, 0, byte(len(name)))
	l.emit([]byte(name)...)
	l.afterToken()
}

// matchCallPrefix recognises PROCname / FNname and returns the length
// of the whole call name.
func matchCallPrefix(s string) (int, bool) {
	up := strings.ToUpper(s)
	n := 0
	if strings.HasPrefix(up, "PROC") {
		n = 4
	} else if strings.HasPrefix(up, "FN") {
		n = 2
	} else {
		return 0, false
	}
	if n >= len(s) || !isNamePart(s[n]) {
		return 0, false
	}
	for n < len(s) && isNamePart(s[n]) {
		n++
	}
	return n, true
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'A' && ch <= 'F') || (ch >= 'a' && ch <= 'f')
}

func isLetter(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}

func isNameStart(ch byte) bool {
	return isLetter(ch) || ch == '_' || ch == '`'
}

func isNamePart(ch byte) bool {
	return isNameStart(ch) || isDigit(ch)
}
