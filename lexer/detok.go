package lexer

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/token"
)

// Detokenise renders the token stream starting at off back to source
// text. off points at the first token, past any line header. The line
// number itself is not included.
func Detokenise(mem []byte, off int) string {
	var b strings.Builder
	prevAlnum := false

	put := func(s string, keyword bool) {
		if s == "" {
			return
		}
		if b.Len() > 0 && keyword && prevAlnum {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		last := s[len(s)-1]
		prevAlnum = isNamePart(last) || last == '$' || last == '%' || last == '&'
	}

	pos := off
	for mem[pos] != token.EOL {
		t := mem[pos]
		switch t {
		case token.SmallInt:
			put(strconv.Itoa(int(mem[pos+1])), true)
			pos += 2
		case token.IntLit:
			n := int32(binary.LittleEndian.Uint32(mem[pos+1:]))
			put(strconv.FormatInt(int64(n), 10), true)
			pos += 5
		case token.Int64Lit:
			n := int64(binary.LittleEndian.Uint64(mem[pos+1:]))
			put(strconv.FormatInt(n, 10), true)
			pos += 9
		case token.FloatLit:
			f := math.Float64frombits(binary.LittleEndian.Uint64(mem[pos+1:]))
			put(formatFloatSrc(f), true)
			pos += 9
		case token.StringLit:
			n := int(binary.LittleEndian.Uint16(mem[pos+1:]))
			s := string(mem[pos+3 : pos+3+n])
			put(`"`+strings.ReplaceAll(s, `"`, `""`)+`"`, false)
			pos += 3 + n
		case token.StaticVar:
			if mem[pos+1] == 26 {
				put("@%", true)
			} else {
				put(string(rune('A'+mem[pos+1]))+"%", true)
			}
			pos += 2
		case token.FuncTok:
			put(token.FuncName(int(mem[pos+1])), true)
			pos += 2
		case token.BadLine:
			put(fmt.Sprintf("<bad line: error %d>", mem[pos+1]), true)
			pos += 2
		case token.XVar, token.IntVar, token.Uint8Var, token.Int64Var,
			token.FloatVar, token.StrVar, token.ArrayVar,
			token.XFnProcCall, token.FnProcCall:
			nameLen := int(mem[pos+1+token.AddrSize])
			name := string(mem[pos+2+token.AddrSize : pos+2+token.AddrSize+nameLen])
			put(name, true)
			pos += 2 + token.AddrSize + nameLen
		case token.XLineNum, token.LineNum:
			n := int(mem[pos+1]) | int(mem[pos+2])<<8 | int(mem[pos+3])<<16
			put(strconv.Itoa(n), true)
			pos += 1 + token.LineNumSize + token.AddrSize
		case token.Rem, token.Data:
			put(token.Name(t), true)
			pos++
			start := pos
			for mem[pos] != token.EOL {
				pos++
			}
			if pos > start {
				b.WriteByte(' ')
				b.WriteString(string(mem[start:pos]))
				prevAlnum = true
			}
		default:
			name := token.Name(t)
			if name == "" {
				name = string(rune(t)) // self representing punctuation
			}
			put(name, isLetter(name[0]))
			pos += 1 + token.OperandLen(t)
			if t == token.Star {
				// star command text runs to end of line
				start := pos
				for mem[pos] != token.EOL {
					pos++
				}
				b.WriteString(string(mem[start:pos]))
				prevAlnum = true
			}
		}
	}
	return b.String()
}

// formatFloatSrc prints a float in a shape the tokeniser reads back as
// a float, not an integer.
func formatFloatSrc(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	// Go writes e+06, BASIC writes E6
	s = strings.ToUpper(s)
	s = strings.Replace(s, "E+", "E", 1)
	return s
}
