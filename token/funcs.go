package token

import "strings"

// Builtin function indices, carried in the byte after a FuncTok. The
// builtins package keeps its handler table in the same order.
const (
	FnAbs = iota
	FnAcs
	FnAsc
	FnAsn
	FnAtn
	FnBget
	FnChrDol
	FnCos
	FnDeg
	FnEof
	FnErl
	FnErr
	FnExp
	FnExt
	FnGet
	FnGetDol
	FnInkey
	FnInkeyDol
	FnInstr
	FnInt
	FnLeftDol
	FnLen
	FnLn
	FnLog
	FnMidDol
	FnOpenin
	FnOpenout
	FnOpenup
	FnPi
	FnPos
	FnPtr
	FnRad
	FnReportDol
	FnRightDol
	FnRnd
	FnSgn
	FnSin
	FnSpc
	FnSqr
	FnStrDol
	FnStringDol
	FnSum
	FnTan
	FnTab
	FnVal
	FnVpos

	NumFuncs
)

type funcDef struct {
	name  string
	paren bool // only recognised when a ( follows
}

var funcDefs = [NumFuncs]funcDef{
	FnAbs:       {"ABS", false},
	FnAcs:       {"ACS", false},
	FnAsc:       {"ASC", false},
	FnAsn:       {"ASN", false},
	FnAtn:       {"ATN", false},
	FnBget:      {"BGET", false},
	FnChrDol:    {"CHR$", false},
	FnCos:       {"COS", false},
	FnDeg:       {"DEG", false},
	FnEof:       {"EOF", false},
	FnErl:       {"ERL", false},
	FnErr:       {"ERR", false},
	FnExp:       {"EXP", false},
	FnExt:       {"EXT", false},
	FnGet:       {"GET", false},
	FnGetDol:    {"GET$", false},
	FnInkey:     {"INKEY", false},
	FnInkeyDol:  {"INKEY$", false},
	FnInstr:     {"INSTR", true},
	FnInt:       {"INT", false},
	FnLeftDol:   {"LEFT$", true},
	FnLen:       {"LEN", false},
	FnLn:        {"LN", false},
	FnLog:       {"LOG", false},
	FnMidDol:    {"MID$", true},
	FnOpenin:    {"OPENIN", false},
	FnOpenout:   {"OPENOUT", false},
	FnOpenup:    {"OPENUP", false},
	FnPi:        {"PI", false},
	FnPos:       {"POS", false},
	FnPtr:       {"PTR", false},
	FnRad:       {"RAD", false},
	FnReportDol: {"REPORT$", false},
	FnRightDol:  {"RIGHT$", true},
	FnRnd:       {"RND", false},
	FnSgn:       {"SGN", false},
	FnSin:       {"SIN", false},
	FnSpc:       {"SPC", false},
	FnSqr:       {"SQR", false},
	FnStrDol:    {"STR$", false},
	FnStringDol: {"STRING$", true},
	FnSum:       {"SUM", false},
	FnTan:       {"TAN", false},
	FnTab:       {"TAB", true},
	FnVal:       {"VAL", false},
	FnVpos:      {"VPOS", false},
}

// FuncName returns the spelling of a builtin function index.
func FuncName(idx int) string {
	if idx < 0 || idx >= NumFuncs {
		return ""
	}
	return funcDefs[idx].name
}

// FuncNeedsParen reports whether a function name is only reserved when
// a ( follows, which keeps LEFT$ usable as the head of an lvalue form.
func FuncNeedsParen(idx int) bool {
	return funcDefs[idx].paren
}

// LookupFunc finds a builtin by name, matched without regard to case.
func LookupFunc(name string) (int, bool) {
	up := strings.ToUpper(name)
	for i, d := range funcDefs {
		if d.name == up {
			return i, true
		}
	}
	return 0, false
}
