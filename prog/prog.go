// Package prog manages the program area: tokenised lines stored back to
// back in the low end of the workspace, each a length/lineno header and
// a zero-terminated token stream.
package prog

import (
	"encoding/binary"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

const (
	HeaderSize = 4    // u16 length, u16 line number
	MaxLineLen = 1024 // tokenised bytes, header included
	MaxLineNo  = 65279
	EndLine    = 65280 // line number of the end-of-program marker
)

// Program walks and edits the tokenised lines between PAGE and TOP.
type Program struct {
	ws *heap.Workspace
}

// New lays down an empty program, just the end marker.
func New(ws *heap.Workspace) *Program {
	p := &Program{ws: ws}
	p.Erase()
	return p
}

// Erase resets the program area to empty.
func (p *Program) Erase() {
	off := p.ws.Page
	binary.LittleEndian.PutUint16(p.ws.Mem[off:], HeaderSize+1)
	binary.LittleEndian.PutUint16(p.ws.Mem[off+2:], EndLine)
	p.ws.Mem[off+HeaderSize] = token.EOL
	p.ws.Top = off + HeaderSize + 1
	p.ws.SetLomem(p.ws.Top)
}

// Start returns the offset of the first line.
func (p *Program) Start() int { return p.ws.Page }

// LineLen is the total byte length of the line at off.
func (p *Program) LineLen(off int) int {
	return int(binary.LittleEndian.Uint16(p.ws.Mem[off:]))
}

// LineNo is the BASIC line number of the line at off.
func (p *Program) LineNo(off int) int {
	return int(binary.LittleEndian.Uint16(p.ws.Mem[off+2:]))
}

// Tokens returns the offset of the first token of the line at off.
func (p *Program) Tokens(off int) int { return off + HeaderSize }

// IsEnd reports whether off is the end-of-program marker.
func (p *Program) IsEnd(off int) bool { return p.LineNo(off) == EndLine }

// NextLine steps to the following line header.
func (p *Program) NextLine(off int) int { return off + p.LineLen(off) }

// FindLine locates a line by number. found is false when absent, with
// off left at the first line past it.
func (p *Program) FindLine(n int) (off int, found bool) {
	for off = p.Start(); !p.IsEnd(off); off = p.NextLine(off) {
		ln := p.LineNo(off)
		if ln == n {
			return off, true
		}
		if ln > n {
			return off, false
		}
	}
	return off, false
}

// LineForAddr maps a token address back to the line containing it, for
// error reports and traces. Returns -1 when the address is outside the
// program.
func (p *Program) LineForAddr(addr int) int {
	for off := p.Start(); !p.IsEnd(off); off = p.NextLine(off) {
		if addr >= off && addr < p.NextLine(off) {
			return p.LineNo(off)
		}
	}
	return -1
}

// Insert files a complete tokenised line block, replacing any line with
// the same number. An empty token stream (just the terminator) deletes
// instead. The heap is reset because LOMEM moves.
func (p *Program) Insert(line []byte) error {
	if len(line) > MaxLineLen {
		return berrors.New(berrors.LineTooLong)
	}
	n := int(binary.LittleEndian.Uint16(line[2:]))
	if n > MaxLineNo {
		return berrors.New(berrors.Range)
	}

	empty := len(line) == HeaderSize+1

	off, found := p.FindLine(n)
	if found {
		p.cut(off)
	}
	if empty {
		p.ws.SetLomem(p.ws.Top)
		return nil
	}

	off, _ = p.FindLine(n)
	if p.ws.Top+len(line) >= p.ws.Himem-4096 {
		return berrors.New(berrors.OutOfMemory)
	}
	p.ws.CopyBytes(off+len(line), off, p.ws.Top-off)
	copy(p.ws.Mem[off:], line)
	p.ws.Top += len(line)
	p.ws.SetLomem(p.ws.Top)
	return nil
}

// Delete removes one line if present.
func (p *Program) Delete(n int) bool {
	off, found := p.FindLine(n)
	if !found {
		return false
	}
	p.cut(off)
	p.ws.SetLomem(p.ws.Top)
	return true
}

func (p *Program) cut(off int) {
	l := p.LineLen(off)
	p.ws.CopyBytes(off, off+l, p.ws.Top-(off+l))
	p.ws.Top -= l
}

// Skip steps over the token at pos and its operands, returning the
// position of the next token. REM and DATA swallow the rest of the
// line as raw text.
func (p *Program) Skip(pos int) int {
	t := p.ws.Mem[pos]
	switch t {
	case token.Rem, token.Data:
		for p.ws.Mem[pos] != token.EOL {
			pos++
		}
		return pos
	case token.StringLit:
		l := int(binary.LittleEndian.Uint16(p.ws.Mem[pos+1:]))
		return pos + 3 + l
	}
	pos += 1 + token.OperandLen(t)
	switch t {
	case token.XVar, token.IntVar, token.Uint8Var, token.Int64Var,
		token.FloatVar, token.StrVar, token.ArrayVar,
		token.XFnProcCall, token.FnProcCall:
		pos += int(p.ws.Mem[pos-1]) // name trails the fixed operand
	}
	return pos
}

// Payload reads the 4 byte resolved payload of the token at pos.
func (p *Program) Payload(pos int) int {
	return int(binary.LittleEndian.Uint32(p.ws.Mem[pos+payloadOff(p.ws.Mem[pos]):]))
}

// SetPayload writes the resolved payload of the token at pos.
func (p *Program) SetPayload(pos int, v int) {
	binary.LittleEndian.PutUint32(p.ws.Mem[pos+payloadOff(p.ws.Mem[pos]):], uint32(v))
}

// Payload2 reads the second address operand of an IF token.
func (p *Program) Payload2(pos int) int {
	return int(binary.LittleEndian.Uint32(p.ws.Mem[pos+1+token.AddrSize:]))
}

func (p *Program) SetPayload2(pos int, v int) {
	binary.LittleEndian.PutUint32(p.ws.Mem[pos+1+token.AddrSize:], uint32(v))
}

func payloadOff(t byte) int {
	if t == token.XLineNum || t == token.LineNum {
		return 1 + token.LineNumSize
	}
	return 1
}

// TokenLineNo reads the 3 byte encoded line number of an XLINENUM or
// LINENUM token at pos.
func (p *Program) TokenLineNo(pos int) int {
	m := p.ws.Mem
	return int(m[pos+1]) | int(m[pos+2])<<8 | int(m[pos+3])<<16
}

// VarName reads the embedded name of a variable or call token at pos.
func (p *Program) VarName(pos int) string {
	l := int(p.ws.Mem[pos+1+token.AddrSize])
	start := pos + 2 + token.AddrSize
	return string(p.ws.Mem[start : start+l])
}

// Resolve flips the token at pos to its resolved form and stores the
// payload. The program buffer is the cache: later executions dispatch
// straight off the resolved byte.
func (p *Program) Resolve(pos int, resolved byte, payload int) {
	p.ws.Mem[pos] = resolved
	p.SetPayload(pos, payload)
}

// ClearRefs undoes every resolved token, for use after an edit moves
// lines and stales the cached addresses. NEW does not need it; erasing
// the program throws the tokens away wholesale.
func (p *Program) ClearRefs() {
	for off := p.Start(); !p.IsEnd(off); off = p.NextLine(off) {
		end := p.NextLine(off) - 1 // the EOL byte
		for pos := p.Tokens(off); pos < end; {
			t := p.ws.Mem[pos]
			if u := token.Unresolve(t); u != t {
				p.ws.Mem[pos] = u
				p.SetPayload(pos, 0)
				if u == token.XIf {
					p.SetPayload2(pos, 0)
				}
			}
			pos = p.Skip(pos)
		}
	}
}

// Lines calls fn with each line's offset, in storage order.
func (p *Program) Lines(fn func(off int) bool) {
	for off := p.Start(); !p.IsEnd(off); off = p.NextLine(off) {
		if !fn(off) {
			return
		}
	}
}
