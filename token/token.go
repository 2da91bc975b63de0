// Package token defines the byte alphabet a tokenised program is written in.
//
// Every token is a single byte. Values 0x20..0x7E are the printable ASCII
// punctuation characters standing for themselves, low values carry literal
// payloads, 0x80..0xDF are the reserved words and 0xE0..0xFF are the
// resolvable forms that get patched in place the first time they execute.
package token

import "strings"

// End of line. A tokenised line contains no other zero byte.
const EOL byte = 0x00

// Literal and payload-bearing tokens. The operand layout is fixed per
// token so a line can be walked without understanding it.
const (
	SmallInt  byte = 0x01 // one byte, value 0..255
	IntLit    byte = 0x02 // 4 bytes, little endian i32 (hex/binary may set the top bit)
	Int64Lit  byte = 0x03 // 8 bytes, little endian i64
	FloatLit  byte = 0x04 // 8 bytes, IEEE-754 f64
	StringLit byte = 0x05 // 2 byte length then the bytes, quotes already unescaped
	StaticVar byte = 0x06 // one byte index, 0..25 = A%..Z%, 26 = @%
	FuncTok   byte = 0x07 // one byte builtin function index
	BadLine   byte = 0x08 // one byte error code, planted by the tokeniser
)

// Single character tokens keep their ASCII values.
const (
	Plus      byte = '+'
	Minus     byte = '-'
	Star      byte = '*'
	Slash     byte = '/'
	Caret     byte = '^'
	Equal     byte = '='
	Less      byte = '<'
	Greater   byte = '>'
	LParen    byte = '('
	RParen    byte = ')'
	Comma     byte = ','
	Semicolon byte = ';'
	Colon     byte = ':'
	Apostrope byte = '\''
	Query     byte = '?'
	Pling     byte = '!'
	Bar       byte = '|'
	Dollar    byte = '$'
	Hash      byte = '#'
	Tilde     byte = '~'
)

// Multi character operators.
const (
	LE      byte = 0xC0 // <=
	GE      byte = 0xC1 // >=
	NE      byte = 0xC2 // <>
	PlusEq  byte = 0xC3 // +=
	MinusEq byte = 0xC4 // -=
	Lsl     byte = 0xC5 // <<
	Asr     byte = 0xC6 // >>
	Lsr     byte = 0xC7 // >>>
)

// Reserved words.
const (
	And      byte = 0x80
	Bput     byte = 0x81
	Call     byte = 0x82
	Clear    byte = 0x83
	Close    byte = 0x84
	Data     byte = 0x85
	Def      byte = 0x86
	Dim      byte = 0x87
	Div      byte = 0x88
	End      byte = 0x89
	Endcase  byte = 0x8A
	Endif    byte = 0x8B
	Endproc  byte = 0x8C
	Endwhile byte = 0x8D
	Eor      byte = 0x8E
	Error    byte = 0x8F
	Exit     byte = 0x90
	False    byte = 0x91
	For      byte = 0x92
	Gosub    byte = 0x93
	Goto     byte = 0x94
	Himem    byte = 0x95
	Input    byte = 0x96
	Let      byte = 0x97
	List     byte = 0x98
	Load     byte = 0x99
	Local    byte = 0x9A
	Lomem    byte = 0x9B
	Mod      byte = 0x9C
	New      byte = 0x9D
	Next     byte = 0x9E
	Not      byte = 0x9F
	Of       byte = 0xA0
	Off      byte = 0xA1
	On       byte = 0xA2
	Or       byte = 0xA3
	Oscli    byte = 0xA4
	Page     byte = 0xA5
	Point    byte = 0xA6
	Print    byte = 0xA7
	Quit     byte = 0xA8
	Read     byte = 0xA9
	Rem      byte = 0xAA
	Repeat   byte = 0xAB
	Report   byte = 0xAC
	Restore  byte = 0xAD
	Return   byte = 0xAE
	Run      byte = 0xAF
	Save     byte = 0xB0
	Step     byte = 0xB1
	Stop     byte = 0xB2
	Swap     byte = 0xB3
	Sys      byte = 0xB4
	Then     byte = 0xB5
	Time     byte = 0xB6
	TimeDol  byte = 0xB7
	To       byte = 0xB8
	Trace    byte = 0xB9
	True     byte = 0xBA
	Until    byte = 0xBB
	Wait     byte = 0xBC
	Filepath byte = 0xBD
)

// Resolvable tokens. The unresolved X form and its resolved partner have
// identical operand layouts so resolution only ever flips the token byte
// and fills the payload.
const (
	XVar        byte = 0xE0 // 4 byte payload, 1 byte name length, name bytes
	IntVar      byte = 0xE1 // payload = variable registry index
	Uint8Var    byte = 0xE2
	Int64Var    byte = 0xE3
	FloatVar    byte = 0xE4
	StrVar      byte = 0xE5
	ArrayVar    byte = 0xE6
	XFnProcCall byte = 0xE7 // same layout as XVar, name keeps its PROC/FN prefix
	FnProcCall  byte = 0xE8 // payload = definition registry index
	XLineNum    byte = 0xE9 // 3 byte line number then 4 byte payload
	LineNum     byte = 0xEA // payload = byte offset of the destination line
	XIf         byte = 0xEB // two 4 byte payloads: THEN address, ELSE address
	SingleIf    byte = 0xEC
	BlockIf     byte = 0xED
	XElse       byte = 0xEE // 4 byte payload: forward skip address
	Else        byte = 0xEF
	XLhElse     byte = 0xF0 // ELSE opening a line of a block IF
	LhElse      byte = 0xF1
	XCase       byte = 0xF2 // 4 byte payload: case table handle
	Case        byte = 0xF3
	XWhen       byte = 0xF4 // 4 byte payload: address after ENDCASE
	When        byte = 0xF5
	XOtherwise  byte = 0xF6
	Otherwise   byte = 0xF7
	XWhile      byte = 0xF8 // 4 byte payload: address after ENDWHILE
	While       byte = 0xF9
)

// Payload widths.
const (
	AddrSize    = 4 // resolved payloads are 4 byte little endian offsets
	LineNumSize = 3 // encoded line number inside a token stream
)

var keywords = map[string]byte{
	"AND":       And,
	"BPUT":      Bput,
	"CALL":      Call,
	"CASE":      XCase,
	"CLEAR":     Clear,
	"CLOSE":     Close,
	"DATA":      Data,
	"DEF":       Def,
	"DIM":       Dim,
	"DIV":       Div,
	"ELSE":      XElse,
	"END":       End,
	"ENDCASE":   Endcase,
	"ENDIF":     Endif,
	"ENDPROC":   Endproc,
	"ENDWHILE":  Endwhile,
	"EOR":       Eor,
	"ERROR":     Error,
	"EXIT":      Exit,
	"FALSE":     False,
	"FILEPATH$": Filepath,
	"FOR":       For,
	"GOSUB":     Gosub,
	"GOTO":      Goto,
	"HIMEM":     Himem,
	"IF":        XIf,
	"INPUT":     Input,
	"LET":       Let,
	"LIST":      List,
	"LOAD":      Load,
	"LOCAL":     Local,
	"LOMEM":     Lomem,
	"MOD":       Mod,
	"NEW":       New,
	"NEXT":      Next,
	"NOT":       Not,
	"OF":        Of,
	"OFF":       Off,
	"ON":        On,
	"OR":        Or,
	"OSCLI":     Oscli,
	"OTHERWISE": XOtherwise,
	"PAGE":      Page,
	"POINT":     Point,
	"PRINT":     Print,
	"QUIT":      Quit,
	"READ":      Read,
	"REM":       Rem,
	"REPEAT":    Repeat,
	"REPORT":    Report,
	"RESTORE":   Restore,
	"RETURN":    Return,
	"RUN":       Run,
	"SAVE":      Save,
	"STEP":      Step,
	"STOP":      Stop,
	"SWAP":      Swap,
	"SYS":       Sys,
	"THEN":      Then,
	"TIME":      Time,
	"TIME$":     TimeDol,
	"TO":        To,
	"TRACE":     Trace,
	"TRUE":      True,
	"UNTIL":     Until,
	"WAIT":      Wait,
	"WHEN":      XWhen,
	"WHILE":     XWhile,
}

var names map[byte]string

func init() {
	names = make(map[byte]string, len(keywords))
	for n, t := range keywords {
		names[t] = n
	}
	// the resolved forms list under their source spelling
	names[SingleIf] = "IF"
	names[BlockIf] = "IF"
	names[Else] = "ELSE"
	names[LhElse] = "ELSE"
	names[XLhElse] = "ELSE"
	names[Case] = "CASE"
	names[When] = "WHEN"
	names[Otherwise] = "OTHERWISE"
	names[While] = "WHILE"
	names[LE] = "<="
	names[GE] = ">="
	names[NE] = "<>"
	names[PlusEq] = "+="
	names[MinusEq] = "-="
	names[Lsl] = "<<"
	names[Asr] = ">>"
	names[Lsr] = ">>>"
}

// LookupKeyword finds the token for a reserved word, matched without
// regard to case. Returns 0 when the word is not reserved.
func LookupKeyword(word string) byte {
	t, ok := keywords[strings.ToUpper(word)]
	if !ok {
		return 0
	}
	return t
}

// Name returns the canonical spelling of a reserved word or operator
// token, or "" for tokens that carry their own text.
func Name(t byte) string {
	return names[t]
}

// IsKeyword reports whether t is a reserved word token.
func IsKeyword(t byte) bool {
	return t >= 0x80 && t < LE
}

// OperandLen returns the number of fixed operand bytes following token t.
// StringLit and the named X forms carry variable trailers on top of this;
// the walker has to read the fixed part to know how far to skip.
func OperandLen(t byte) int {
	switch t {
	case SmallInt, StaticVar, FuncTok, BadLine:
		return 1
	case IntLit:
		return 4
	case Int64Lit, FloatLit:
		return 8
	case StringLit:
		return 2
	case XVar, IntVar, Uint8Var, Int64Var, FloatVar, StrVar, ArrayVar,
		XFnProcCall, FnProcCall:
		return AddrSize + 1
	case XLineNum, LineNum:
		return LineNumSize + AddrSize
	case XIf, SingleIf, BlockIf:
		return 2 * AddrSize
	case XElse, Else, XLhElse, LhElse, XCase, Case, XWhen, When,
		XOtherwise, Otherwise, XWhile, While:
		return AddrSize
	}
	return 0
}

// IsVarToken reports whether t is an unresolved or resolved variable
// reference.
func IsVarToken(t byte) bool {
	return t >= XVar && t <= ArrayVar
}

// Unresolve maps a resolved token back to its X form, for use when an
// edit invalidates cached addresses. Tokens with no X partner map to
// themselves.
func Unresolve(t byte) byte {
	switch t {
	case IntVar, Uint8Var, Int64Var, FloatVar, StrVar, ArrayVar:
		return XVar
	case FnProcCall:
		return XFnProcCall
	case LineNum:
		return XLineNum
	case SingleIf, BlockIf:
		return XIf
	case Else:
		return XElse
	case LhElse:
		return XLhElse
	case Case:
		return XCase
	case When:
		return XWhen
	case Otherwise:
		return XOtherwise
	case While:
		return XWhile
	}
	return t
}
