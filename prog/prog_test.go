package prog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

func testProg() *Program {
	return New(heap.New(heap.MinSize))
}

// handLine builds a line block by hand: header, the given tokens, EOL.
func handLine(n int, toks ...byte) []byte {
	l := HeaderSize + len(toks) + 1
	line := make([]byte, 0, l)
	line = append(line, byte(l), byte(l>>8), byte(n), byte(n>>8))
	line = append(line, toks...)
	return append(line, token.EOL)
}

func lineNumbers(p *Program) []int {
	var ns []int
	p.Lines(func(off int) bool {
		ns = append(ns, p.LineNo(off))
		return true
	})
	return ns
}

func TestEmptyProgram(t *testing.T) {
	p := testProg()
	assert.True(t, p.IsEnd(p.Start()))
	assert.Nil(t, lineNumbers(p))
}

func TestInsertKeepsOrder(t *testing.T) {
	p := testProg()
	require.NoError(t, p.Insert(handLine(20, token.Stop)))
	require.NoError(t, p.Insert(handLine(10, token.Stop)))
	require.NoError(t, p.Insert(handLine(30, token.Stop)))
	assert.Equal(t, []int{10, 20, 30}, lineNumbers(p))
}

func TestInsertReplacesSameNumber(t *testing.T) {
	p := testProg()
	require.NoError(t, p.Insert(handLine(10, token.Stop)))
	require.NoError(t, p.Insert(handLine(10, token.End)))
	assert.Equal(t, []int{10}, lineNumbers(p))

	off, found := p.FindLine(10)
	require.True(t, found)
	assert.Equal(t, byte(token.End), p.ws.Mem[p.Tokens(off)])
}

func TestEmptyLineDeletes(t *testing.T) {
	p := testProg()
	require.NoError(t, p.Insert(handLine(10, token.Stop)))
	require.NoError(t, p.Insert(handLine(20, token.Stop)))
	require.NoError(t, p.Insert(handLine(10)))
	assert.Equal(t, []int{20}, lineNumbers(p))
}

func TestDelete(t *testing.T) {
	p := testProg()
	require.NoError(t, p.Insert(handLine(10, token.Stop)))
	assert.True(t, p.Delete(10))
	assert.False(t, p.Delete(10))
	assert.True(t, p.IsEnd(p.Start()))
}

func TestFindLineStopsAtGap(t *testing.T) {
	p := testProg()
	require.NoError(t, p.Insert(handLine(10, token.Stop)))
	require.NoError(t, p.Insert(handLine(30, token.Stop)))

	off, found := p.FindLine(20)
	assert.False(t, found)
	assert.Equal(t, 30, p.LineNo(off))
}

func TestLineForAddr(t *testing.T) {
	p := testProg()
	require.NoError(t, p.Insert(handLine(10, token.Stop)))
	require.NoError(t, p.Insert(handLine(20, token.Stop)))

	off, _ := p.FindLine(20)
	assert.Equal(t, 20, p.LineForAddr(p.Tokens(off)))
	assert.Equal(t, -1, p.LineForAddr(p.ws.Top+100))
}

func TestLineNumberLimit(t *testing.T) {
	p := testProg()
	assert.Error(t, p.Insert(handLine(MaxLineNo+1, token.Stop)))
	assert.NoError(t, p.Insert(handLine(MaxLineNo, token.Stop)))
}

func TestLineLengthLimit(t *testing.T) {
	p := testProg()
	long := make([]byte, MaxLineLen+1)
	assert.Error(t, p.Insert(long))
}

func TestSkipOverOperands(t *testing.T) {
	p := testProg()
	// GOTO 100 REM rest of the line
	toks := []byte{token.Goto, token.XLineNum, 100, 0, 0, 0, 0, 0, 0, token.Rem, 'h', 'i'}
	require.NoError(t, p.Insert(handLine(10, toks...)))

	off, _ := p.FindLine(10)
	pos := p.Tokens(off)
	pos = p.Skip(pos) // Goto
	assert.Equal(t, byte(token.XLineNum), p.ws.Mem[pos])
	pos = p.Skip(pos) // line number and its payload
	assert.Equal(t, byte(token.Rem), p.ws.Mem[pos])
	pos = p.Skip(pos) // REM swallows the rest
	assert.Equal(t, byte(token.EOL), p.ws.Mem[pos])
}

func TestResolveAndClearRefs(t *testing.T) {
	p := testProg()
	toks := []byte{token.Goto, token.XLineNum, 100, 0, 0, 0, 0, 0, 0}
	require.NoError(t, p.Insert(handLine(10, toks...)))

	off, _ := p.FindLine(10)
	pos := p.Tokens(off) + 1 // the XLineNum
	p.Resolve(pos, token.LineNum, 12345)
	assert.Equal(t, byte(token.LineNum), p.ws.Mem[pos])
	assert.Equal(t, 12345, p.Payload(pos))

	p.ClearRefs()
	assert.Equal(t, byte(token.XLineNum), p.ws.Mem[pos])
	assert.Equal(t, 0, p.Payload(pos))
}

func TestTokenLineNo(t *testing.T) {
	p := testProg()
	toks := []byte{token.Goto, token.XLineNum, 0x40, 0xE2, 0x01, 0, 0, 0, 0}
	require.NoError(t, p.Insert(handLine(10, toks...)))

	off, _ := p.FindLine(10)
	assert.Equal(t, 123456, p.TokenLineNo(p.Tokens(off)+1))
}
